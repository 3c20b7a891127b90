package squaresync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
)

// Repository manages Square integrations and the popup schedule used for
// market attribution.
type Repository interface {
	ListActiveIntegrations(ctx context.Context, limit int) ([]models.VendorIntegration, error)
	FindIntegrationByVendorID(ctx context.Context, vendorID uuid.UUID) (*models.VendorIntegration, error)
	UpdateSyncCursor(ctx context.Context, id uuid.UUID, cursor time.Time) error
	ListPopupsOn(ctx context.Context, vendorID uuid.UUID, day time.Time) ([]models.VendorPopup, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a squaresync repository bound to the provided
// database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListActiveIntegrations(ctx context.Context, limit int) ([]models.VendorIntegration, error) {
	if limit <= 0 {
		limit = 200
	}
	var found []models.VendorIntegration
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND active = ? AND access_token IS NOT NULL", enums.PaymentSourceSquare, true).
		Order("created_at ASC").
		Limit(limit).
		Find(&found).Error; err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repository) FindIntegrationByVendorID(ctx context.Context, vendorID uuid.UUID) (*models.VendorIntegration, error) {
	var integration models.VendorIntegration
	if err := r.db.WithContext(ctx).
		First(&integration, "vendor_id = ? AND provider = ?", vendorID, enums.PaymentSourceSquare).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func (r *repository) UpdateSyncCursor(ctx context.Context, id uuid.UUID, cursor time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.VendorIntegration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_cursor":    cursor,
			"last_synced_at": time.Now().UTC(),
		}).Error
}

func (r *repository) ListPopupsOn(ctx context.Context, vendorID uuid.UUID, day time.Time) ([]models.VendorPopup, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	var found []models.VendorPopup
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND date >= ? AND date < ?", vendorID, dayStart, dayEnd).
		Find(&found).Error; err != nil {
		return nil, err
	}
	return found, nil
}
