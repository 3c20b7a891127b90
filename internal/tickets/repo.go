package tickets

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
)

// Repository manages persistence for ticket purchases.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, purchase *models.TicketPurchase) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.TicketPurchase, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.TicketPurchase, error)
	FindEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	FindTicket(ctx context.Context, id uuid.UUID) (*models.EventTicket, error)
	FindOrganizerIntegration(ctx context.Context, organizerID uuid.UUID) (*models.OrganizerIntegration, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, current enums.TicketPurchaseStatus, updates map[string]interface{}) (int64, error)
	StampUsed(ctx context.Context, id uuid.UUID) (int64, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.TicketPurchase, error)
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID, limit int) ([]models.TicketPurchase, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a tickets repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, purchase *models.TicketPurchase) error {
	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.TicketPurchase, error) {
	var purchase models.TicketPurchase
	if err := r.db.WithContext(ctx).First(&purchase, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.TicketPurchase, error) {
	var purchase models.TicketPurchase
	if err := r.db.WithContext(ctx).
		First(&purchase, "stripe_session_id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

func (r *repository) FindEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) FindTicket(ctx context.Context, id uuid.UUID) (*models.EventTicket, error) {
	var ticket models.EventTicket
	if err := r.db.WithContext(ctx).First(&ticket, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *repository) FindOrganizerIntegration(ctx context.Context, organizerID uuid.UUID) (*models.OrganizerIntegration, error) {
	var integration models.OrganizerIntegration
	if err := r.db.WithContext(ctx).
		First(&integration, "organizer_id = ? AND provider = ?", organizerID, enums.PaymentSourceStripe).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, current enums.TicketPurchaseStatus, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TicketPurchase{}).
		Where("id = ? AND status = ?", id, current).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// StampUsed sets used_at once. A row already stamped never matches again.
func (r *repository) StampUsed(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TicketPurchase{}).
		Where("id = ? AND used_at IS NULL AND status = ?", id, enums.TicketPurchaseStatusCompleted).
		Update("used_at", gorm.Expr("CURRENT_TIMESTAMP"))
	return res.RowsAffected, res.Error
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.TicketPurchase, error) {
	return r.list(ctx, "customer_id = ?", customerID, limit)
}

func (r *repository) ListByOrganizer(ctx context.Context, organizerID uuid.UUID, limit int) ([]models.TicketPurchase, error) {
	return r.list(ctx, "organizer_id = ?", organizerID, limit)
}

func (r *repository) list(ctx context.Context, cond string, id uuid.UUID, limit int) ([]models.TicketPurchase, error) {
	if limit <= 0 {
		limit = 50
	}
	var found []models.TicketPurchase
	if err := r.db.WithContext(ctx).
		Where(cond, id).
		Order("created_at DESC").
		Limit(limit).
		Find(&found).Error; err != nil {
		return nil, err
	}
	return found, nil
}
