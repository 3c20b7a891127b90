package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
)

// Item is one line of a stock movement.
type Item struct {
	ID       uuid.UUID
	Quantity int64
}

// Service adjusts product stock and ticket capacity for paid and refunded
// purchases. Movements for untracked products are skipped, not failed.
type Service interface {
	WithTx(tx *gorm.DB) Service
	DeductProducts(ctx context.Context, items []Item) error
	RestockProducts(ctx context.Context, items []Item) error
	ReserveTickets(ctx context.Context, ticketID uuid.UUID, quantity int64) error
	ReleaseTickets(ctx context.Context, ticketID uuid.UUID, quantity int64) error
	TicketsRemaining(ctx context.Context, ticketID uuid.UUID) (int64, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires an inventory service with the provided repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), logg: s.logg}
}

// DeductProducts decrements tracked stock for each line item. A product with
// untracked inventory is left alone; a tracked product without enough stock
// is floored at zero, since payment already succeeded and the sale stands.
func (s *service) DeductProducts(ctx context.Context, items []Item) error {
	for _, item := range items {
		if err := validateItem(item); err != nil {
			return err
		}
		product, err := s.repo.FindProduct(ctx, item.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
		}
		if product == nil {
			s.warn(ctx, "product missing during stock deduction", item.ID)
			continue
		}
		if product.QuantityAvailable == nil {
			continue
		}
		rows, err := s.repo.DecrementProduct(ctx, item.ID, item.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deduct product stock")
		}
		if rows == 0 {
			s.warn(ctx, "product vanished before stock deduction", item.ID)
		}
	}
	return nil
}

// RestockProducts reverses a prior deduction after a refund.
func (s *service) RestockProducts(ctx context.Context, items []Item) error {
	for _, item := range items {
		if err := validateItem(item); err != nil {
			return err
		}
		if _, err := s.repo.IncrementProduct(ctx, item.ID, item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restock product")
		}
	}
	return nil
}

// ReserveTickets claims capacity, failing with a conflict when the remaining
// capacity cannot cover the request.
func (s *service) ReserveTickets(ctx context.Context, ticketID uuid.UUID, quantity int64) error {
	if err := validateItem(Item{ID: ticketID, Quantity: quantity}); err != nil {
		return err
	}
	rows, err := s.repo.ReserveTickets(ctx, ticketID, quantity)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve tickets")
	}
	if rows == 0 {
		ticket, findErr := s.repo.FindTicket(ctx, ticketID)
		if findErr == nil && ticket == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "not enough tickets remaining")
	}
	return nil
}

// ReleaseTickets returns capacity after a refund. Releasing more than was
// sold is rejected so sold_quantity never goes negative.
func (s *service) ReleaseTickets(ctx context.Context, ticketID uuid.UUID, quantity int64) error {
	if err := validateItem(Item{ID: ticketID, Quantity: quantity}); err != nil {
		return err
	}
	rows, err := s.repo.ReleaseTickets(ctx, ticketID, quantity)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release tickets")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "release exceeds sold quantity")
	}
	return nil
}

func (s *service) TicketsRemaining(ctx context.Context, ticketID uuid.UUID) (int64, error) {
	ticket, err := s.repo.FindTicket(ctx, ticketID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ticket")
	}
	if ticket == nil {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}
	return ticket.TotalQuantity - ticket.SoldQuantity, nil
}

func validateItem(item Item) error {
	if item.ID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id is required")
	}
	if item.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}

func (s *service) warn(ctx context.Context, msg string, id uuid.UUID) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "item_id", id.String()), msg)
}
