package preorders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
)

// Repository manages persistence for Connect-routed preorders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, preorder *models.Preorder) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Preorder, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Preorder, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, current enums.PreorderStatus, updates map[string]interface{}) (int64, error)
	FindConnectAccountID(ctx context.Context, vendorID uuid.UUID) (string, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Preorder, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Preorder, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a preorders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, preorder *models.Preorder) error {
	if preorder.ID == uuid.Nil {
		preorder.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(preorder).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Preorder, error) {
	var preorder models.Preorder
	if err := r.db.WithContext(ctx).First(&preorder, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &preorder, nil
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Preorder, error) {
	var preorder models.Preorder
	if err := r.db.WithContext(ctx).
		First(&preorder, "stripe_payment_intent_id = ?", paymentIntentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &preorder, nil
}

func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, current enums.PreorderStatus, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Preorder{}).
		Where("id = ? AND status = ?", id, current).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// FindConnectAccountID resolves the vendor's Stripe Connect account. Returns
// empty when the vendor never onboarded or charges are still disabled, which
// callers surface as a not-connected conflict.
func (r *repository) FindConnectAccountID(ctx context.Context, vendorID uuid.UUID) (string, error) {
	var integration models.OrganizerIntegration
	err := r.db.WithContext(ctx).
		First(&integration, "organizer_id = ? AND provider = ?", vendorID, enums.PaymentSourceStripe).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	if integration.StripeAccountID == nil || !integration.ChargesEnabled {
		return "", nil
	}
	return *integration.StripeAccountID, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Preorder, error) {
	return r.list(ctx, "customer_id = ?", customerID, limit)
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Preorder, error) {
	return r.list(ctx, "vendor_id = ?", vendorID, limit)
}

func (r *repository) list(ctx context.Context, cond string, id uuid.UUID, limit int) ([]models.Preorder, error) {
	if limit <= 0 {
		limit = 50
	}
	var found []models.Preorder
	if err := r.db.WithContext(ctx).
		Where(cond, id).
		Order("created_at DESC").
		Limit(limit).
		Find(&found).Error; err != nil {
		return nil, err
	}
	return found, nil
}
