package applications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
)

// Repository manages persistence for vendor applications and the market
// slot counter they consume.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, application *models.VendorApplication) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.VendorApplication, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.VendorApplication, error)
	FindMarket(ctx context.Context, id uuid.UUID) (*models.Market, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, current enums.ApplicationStatus, updates map[string]interface{}) (int64, error)
	DecrementMarketSpots(ctx context.Context, marketID uuid.UUID) (int64, error)
	ListExpiredApprovals(ctx context.Context, cutoff time.Time, limit int) ([]models.VendorApplication, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.VendorApplication, error)
	ListByMarket(ctx context.Context, marketID uuid.UUID, limit int) ([]models.VendorApplication, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an applications repository bound to the provided
// database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, application *models.VendorApplication) error {
	if application.ID == uuid.Nil {
		application.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(application).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VendorApplication, error) {
	var application models.VendorApplication
	if err := r.db.WithContext(ctx).First(&application, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &application, nil
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.VendorApplication, error) {
	var application models.VendorApplication
	if err := r.db.WithContext(ctx).
		First(&application, "stripe_payment_intent_id = ?", paymentIntentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &application, nil
}

func (r *repository) FindMarket(ctx context.Context, id uuid.UUID) (*models.Market, error) {
	var market models.Market
	if err := r.db.WithContext(ctx).First(&market, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &market, nil
}

func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, current enums.ApplicationStatus, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorApplication{}).
		Where("id = ? AND status = ?", id, current).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// DecrementMarketSpots takes one booth slot, refusing to go below zero.
func (r *repository) DecrementMarketSpots(ctx context.Context, marketID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Market{}).
		Where("id = ? AND vendor_spots_available > 0", marketID).
		Update("vendor_spots_available", gorm.Expr("vendor_spots_available - 1"))
	return res.RowsAffected, res.Error
}

func (r *repository) ListExpiredApprovals(ctx context.Context, cutoff time.Time, limit int) ([]models.VendorApplication, error) {
	if limit <= 0 {
		limit = 100
	}
	var found []models.VendorApplication
	if err := r.db.WithContext(ctx).
		Where("status = ? AND approval_expires_at IS NOT NULL AND approval_expires_at < ?", enums.ApplicationStatusApproved, cutoff).
		Order("approval_expires_at ASC").
		Limit(limit).
		Find(&found).Error; err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.VendorApplication, error) {
	return r.list(ctx, "vendor_id = ?", vendorID, limit)
}

func (r *repository) ListByMarket(ctx context.Context, marketID uuid.UUID, limit int) ([]models.VendorApplication, error) {
	return r.list(ctx, "market_id = ?", marketID, limit)
}

func (r *repository) list(ctx context.Context, cond string, id uuid.UUID, limit int) ([]models.VendorApplication, error) {
	if limit <= 0 {
		limit = 50
	}
	var found []models.VendorApplication
	if err := r.db.WithContext(ctx).
		Where(cond, id).
		Order("created_at DESC").
		Limit(limit).
		Find(&found).Error; err != nil {
		return nil, err
	}
	return found, nil
}
