package sales

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketloop/marketloop-backend/pkg/db/models"
)

// Repository manages the unified vendor_sales ledger. Writes are upserts
// keyed on the deterministic {vendor_id}_{payment_id} primary key, so
// re-syncing a window or replaying a webhook never duplicates a row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, sale *models.VendorSale) error
	FindByID(ctx context.Context, id string) (*models.VendorSale, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, from, to time.Time) ([]models.VendorSale, error)
	ListUnassigned(ctx context.Context, vendorID uuid.UUID) ([]models.VendorSale, error)
	AssignMarket(ctx context.Context, id string, marketID uuid.UUID, marketName string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a sales repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Upsert(ctx context.Context, sale *models.VendorSale) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"amount_cents",
				"currency",
				"status",
				"occurred_at",
				"market_id",
				"market_name",
				"line_items",
				"is_preorder",
				"is_assigned",
				"synced_at",
			}),
		}).
		Create(sale).Error
}

func (r *repository) FindByID(ctx context.Context, id string) (*models.VendorSale, error) {
	var sale models.VendorSale
	if err := r.db.WithContext(ctx).First(&sale, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sale, nil
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, from, to time.Time) ([]models.VendorSale, error) {
	q := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID)
	if !from.IsZero() {
		q = q.Where("occurred_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("occurred_at < ?", to)
	}
	var sales []models.VendorSale
	if err := q.Order("occurred_at DESC").Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *repository) ListUnassigned(ctx context.Context, vendorID uuid.UUID) ([]models.VendorSale, error) {
	var sales []models.VendorSale
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND is_assigned = ?", vendorID, false).
		Order("occurred_at DESC").
		Find(&sales).Error; err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *repository) AssignMarket(ctx context.Context, id string, marketID uuid.UUID, marketName string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorSale{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"market_id":   marketID,
			"market_name": marketName,
			"is_assigned": true,
		})
	return res.RowsAffected, res.Error
}
