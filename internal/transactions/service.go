package transactions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/internal/fees"
	"github.com/marketloop/marketloop-backend/pkg/db"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
)

// Service records payment lifecycle changes in the transactions ledger.
// Rows are created pending alongside the provider intent and moved to a
// terminal status exactly once; repeat webhook deliveries are no-ops.
type Service interface {
	WithTx(tx *gorm.DB) Service
	CreatePending(ctx context.Context, input CreatePendingInput) (*models.Transaction, error)
	Complete(ctx context.Context, input CompleteInput) (*models.Transaction, error)
	Fail(ctx context.Context, orderType enums.OrderType, referenceID uuid.UUID) error
	Refund(ctx context.Context, externalPaymentID string) (*models.Transaction, error)
	AttachTransfer(ctx context.Context, id uuid.UUID, externalTransferID string) error
	FindByReference(ctx context.Context, orderType enums.OrderType, referenceID uuid.UUID) (*models.Transaction, error)
	ListByVendorID(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Transaction, error)
}

type service struct {
	repo Repository
}

// CreatePendingInput captures the immutable data a pending transaction requires.
type CreatePendingInput struct {
	Type              enums.OrderType
	Source            enums.PaymentSource
	ReferenceID       uuid.UUID
	CustomerID        *uuid.UUID
	VendorID          *uuid.UUID
	Breakdown         fees.Breakdown
	Currency          enums.Currency
	ExternalPaymentID string
}

// CompleteInput identifies the row to complete and the settlement details.
type CompleteInput struct {
	Type               enums.OrderType
	ReferenceID        uuid.UUID
	ExternalPaymentID  string
	ExternalTransferID string
}

// NewService wires a transactions service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) CreatePending(ctx context.Context, input CreatePendingInput) (*models.Transaction, error) {
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order type")
	}
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment source")
	}
	if input.ReferenceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency")
	}

	txn := &models.Transaction{
		Type:             input.Type,
		Source:           input.Source,
		Status:           enums.TransactionStatusPending,
		ReferenceID:      input.ReferenceID,
		CustomerID:       input.CustomerID,
		VendorID:         input.VendorID,
		AmountCents:      input.Breakdown.TotalCents,
		PlatformFeeCents: input.Breakdown.PlatformFeeCents,
		PayoutCents:      input.Breakdown.PayoutCents,
		Currency:         currency,
	}
	if input.ExternalPaymentID != "" {
		txn.ExternalPaymentID = &input.ExternalPaymentID
	}

	if err := s.repo.Create(ctx, txn); err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, findErr := s.repo.FindByExternalPaymentID(ctx, input.ExternalPaymentID)
			if findErr == nil && existing != nil {
				return existing, nil
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create transaction")
	}
	return txn, nil
}

// Complete moves a pending transaction to completed. A row already in a
// terminal status is returned unchanged so webhook redelivery stays safe.
func (s *service) Complete(ctx context.Context, input CompleteInput) (*models.Transaction, error) {
	txn, err := s.repo.FindByReference(ctx, input.Type, input.ReferenceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if txn.Status != enums.TransactionStatusPending {
		return txn, nil
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       enums.TransactionStatusCompleted,
		"completed_at": now,
	}
	if input.ExternalPaymentID != "" {
		updates["external_payment_id"] = input.ExternalPaymentID
	}
	if input.ExternalTransferID != "" {
		updates["external_transfer_id"] = input.ExternalTransferID
	}
	if err := s.repo.UpdateStatus(ctx, txn.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "complete transaction")
	}

	txn.Status = enums.TransactionStatusCompleted
	txn.CompletedAt = &now
	if input.ExternalPaymentID != "" {
		txn.ExternalPaymentID = &input.ExternalPaymentID
	}
	if input.ExternalTransferID != "" {
		txn.ExternalTransferID = &input.ExternalTransferID
	}
	return txn, nil
}

func (s *service) Fail(ctx context.Context, orderType enums.OrderType, referenceID uuid.UUID) error {
	txn, err := s.repo.FindByReference(ctx, orderType, referenceID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
	}
	if txn == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if txn.Status != enums.TransactionStatusPending {
		return nil
	}
	return s.repo.UpdateStatus(ctx, txn.ID, map[string]interface{}{
		"status": enums.TransactionStatusFailed,
	})
}

// Refund flips a completed transaction to refunded, keyed by the provider
// payment id because refund webhooks carry no internal reference.
func (s *service) Refund(ctx context.Context, externalPaymentID string) (*models.Transaction, error) {
	if externalPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external payment id is required")
	}
	txn, err := s.repo.FindByExternalPaymentID(ctx, externalPaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load transaction")
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if txn.Status == enums.TransactionStatusRefunded {
		return txn, nil
	}
	if err := s.repo.UpdateStatus(ctx, txn.ID, map[string]interface{}{
		"status": enums.TransactionStatusRefunded,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refund transaction")
	}
	txn.Status = enums.TransactionStatusRefunded
	return txn, nil
}

func (s *service) AttachTransfer(ctx context.Context, id uuid.UUID, externalTransferID string) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if externalTransferID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "external transfer id is required")
	}
	return s.repo.UpdateStatus(ctx, id, map[string]interface{}{
		"external_transfer_id": externalTransferID,
	})
}

func (s *service) FindByReference(ctx context.Context, orderType enums.OrderType, referenceID uuid.UUID) (*models.Transaction, error) {
	return s.repo.FindByReference(ctx, orderType, referenceID)
}

func (s *service) ListByVendorID(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Transaction, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	return s.repo.ListByVendorID(ctx, vendorID, limit)
}
