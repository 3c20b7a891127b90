package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

// Service is the write and read surface over the unified vendor sales
// ledger. Platform payments land here from the webhook pipeline and Square
// payments from the sync job; both converge on the same upsert.
type Service interface {
	WithTx(tx *gorm.DB) Service
	RecordSale(ctx context.Context, input RecordSaleInput) (*models.VendorSale, error)
	AssignMarket(ctx context.Context, saleID string, marketID uuid.UUID, marketName string) error
	ListByVendor(ctx context.Context, vendorID uuid.UUID, from, to time.Time) ([]models.VendorSale, error)
	ListUnassigned(ctx context.Context, vendorID uuid.UUID) ([]models.VendorSale, error)
	Summary(ctx context.Context, vendorID uuid.UUID, from, to time.Time) (SalesSummary, error)
}

// RecordSaleInput captures one settled external payment.
type RecordSaleInput struct {
	VendorID    uuid.UUID
	PaymentID   string
	Source      enums.PaymentSource
	AmountCents int64
	Currency    enums.Currency
	Status      string
	OccurredAt  time.Time
	MarketID    *uuid.UUID
	MarketName  *string
	LineItems   types.LineItems
	IsPreorder  bool
}

// SalesSummary aggregates a vendor's ledger over a window.
type SalesSummary struct {
	SaleCount       int64 `json:"sale_count"`
	GrossCents      int64 `json:"gross_cents"`
	PreorderCount   int64 `json:"preorder_count"`
	UnassignedCount int64 `json:"unassigned_count"`
}

type service struct {
	repo Repository
}

// NewService wires a sales service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sales repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) RecordSale(ctx context.Context, input RecordSaleInput) (*models.VendorSale, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if input.PaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment source")
	}
	if input.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	lineItems := input.LineItems
	if lineItems == nil {
		lineItems = types.LineItems{}
	}

	sale := &models.VendorSale{
		ID:          models.VendorSaleID(input.VendorID, input.PaymentID),
		VendorID:    input.VendorID,
		PaymentID:   input.PaymentID,
		Source:      input.Source,
		AmountCents: input.AmountCents,
		Currency:    currency,
		Status:      input.Status,
		OccurredAt:  occurredAt,
		MarketID:    input.MarketID,
		MarketName:  input.MarketName,
		LineItems:   lineItems,
		IsPreorder:  input.IsPreorder,
		IsAssigned:  input.MarketID != nil,
		SyncedAt:    time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, sale); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record vendor sale")
	}
	return sale, nil
}

func (s *service) AssignMarket(ctx context.Context, saleID string, marketID uuid.UUID, marketName string) error {
	if saleID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale id is required")
	}
	if marketID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "market id is required")
	}
	rows, err := s.repo.AssignMarket(ctx, saleID, marketID, marketName)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assign market")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
	}
	return nil
}

func (s *service) ListByVendor(ctx context.Context, vendorID uuid.UUID, from, to time.Time) ([]models.VendorSale, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	return s.repo.ListByVendor(ctx, vendorID, from, to)
}

func (s *service) ListUnassigned(ctx context.Context, vendorID uuid.UUID) ([]models.VendorSale, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	return s.repo.ListUnassigned(ctx, vendorID)
}

func (s *service) Summary(ctx context.Context, vendorID uuid.UUID, from, to time.Time) (SalesSummary, error) {
	salesRows, err := s.ListByVendor(ctx, vendorID, from, to)
	if err != nil {
		return SalesSummary{}, err
	}
	var summary SalesSummary
	for _, sale := range salesRows {
		summary.SaleCount++
		summary.GrossCents += sale.AmountCents
		if sale.IsPreorder {
			summary.PreorderCount++
		}
		if !sale.IsAssigned {
			summary.UnassignedCount++
		}
	}
	return summary, nil
}
