package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/pkg/db/models"
)

// Repository applies stock movements with conditional updates so concurrent
// checkouts can never oversell. Every mutation reports rows affected; zero
// rows means the guard condition rejected the movement.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindTicket(ctx context.Context, id uuid.UUID) (*models.EventTicket, error)
	DecrementProduct(ctx context.Context, id uuid.UUID, quantity int64) (int64, error)
	IncrementProduct(ctx context.Context, id uuid.UUID, quantity int64) (int64, error)
	ReserveTickets(ctx context.Context, id uuid.UUID, quantity int64) (int64, error)
	ReleaseTickets(ctx context.Context, id uuid.UUID, quantity int64) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
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

// DecrementProduct lowers tracked stock, flooring at zero when the deduction
// exceeds what is on hand. Untracked rows (NULL quantity_available) never
// match. The CASE expression runs unchanged on postgres and sqlite.
func (r *repository) DecrementProduct(ctx context.Context, id uuid.UUID, quantity int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND quantity_available IS NOT NULL", id).
		Update("quantity_available", gorm.Expr(
			"CASE WHEN quantity_available > ? THEN quantity_available - ? ELSE 0 END",
			quantity, quantity,
		))
	return res.RowsAffected, res.Error
}

func (r *repository) IncrementProduct(ctx context.Context, id uuid.UUID, quantity int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND quantity_available IS NOT NULL", id).
		Update("quantity_available", gorm.Expr("quantity_available + ?", quantity))
	return res.RowsAffected, res.Error
}

func (r *repository) ReserveTickets(ctx context.Context, id uuid.UUID, quantity int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EventTicket{}).
		Where("id = ? AND total_quantity - sold_quantity >= ?", id, quantity).
		Update("sold_quantity", gorm.Expr("sold_quantity + ?", quantity))
	return res.RowsAffected, res.Error
}

func (r *repository) ReleaseTickets(ctx context.Context, id uuid.UUID, quantity int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EventTicket{}).
		Where("id = ? AND sold_quantity >= ?", id, quantity).
		Update("sold_quantity", gorm.Expr("sold_quantity - ?", quantity))
	return res.RowsAffected, res.Error
}
