package preorders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/internal/fees"
	"github.com/marketloop/marketloop-backend/internal/sales"
	"github.com/marketloop/marketloop-backend/internal/transactions"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/outbox/payloads"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the preorder service.
type ServiceParams struct {
	Repo              Repository
	Transactions      transactions.Service
	Sales             sales.Service
	Outbox            *outbox.Service
	Fees              *fees.Calculator
	Stripe            StripeConnectClient
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service owns the preorder lifecycle. The platform charges the shopper
// directly and then transfers the vendor payout to the connected account;
// a charge that lands without its transfer is parked in transfer-failed
// rather than paid so an operator can retry the payout.
type Service struct {
	repo         Repository
	transactions transactions.Service
	sales        sales.Service
	outbox       *outbox.Service
	fees         *fees.Calculator
	stripe       StripeConnectClient
	txRunner     txRunner
	logg         *logger.Logger
}

// CreatePreorderInput is the checkout request for a Connect-routed order.
type CreatePreorderInput struct {
	CustomerID      uuid.UUID
	VendorID        uuid.UUID
	MarketID        *uuid.UUID
	Items           types.LineItems
	Currency        enums.Currency
	StripeAccountID string
}

// CreatePreorderResult carries the pending preorder and the client secret.
type CreatePreorderResult struct {
	Preorder     *models.Preorder
	ClientSecret string
}

// NewService builds a preorder service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "preorders repo required")
	}
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions service required")
	}
	if params.Sales == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "sales service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.Fees == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fee calculator required")
	}
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		repo:         params.Repo,
		transactions: params.Transactions,
		sales:        params.Sales,
		outbox:       params.Outbox,
		fees:         params.Fees,
		stripe:       params.Stripe,
		txRunner:     params.TransactionRunner,
		logg:         params.Logger,
	}, nil
}

// Create prices the preorder fee-on-top and persists it pending alongside
// the payment intent and ledger row. The vendor's connected account must be
// captured up front; without it the payout transfer can never run.
func (s *Service) Create(ctx context.Context, input CreatePreorderInput) (*CreatePreorderResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	if input.StripeAccountID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "vendor payout account is not connected")
	}

	breakdown, err := s.fees.Purchase(input.Items.SubtotalCents())
	if err != nil {
		return nil, err
	}
	if breakdown.TotalCents == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "preorder total must be positive")
	}

	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}

	preorder := &models.Preorder{
		ID:                uuid.New(),
		CustomerID:        input.CustomerID,
		VendorID:          input.VendorID,
		MarketID:          input.MarketID,
		Status:            enums.PreorderStatusPendingPayment,
		Items:             input.Items,
		SubtotalCents:     breakdown.SubtotalCents,
		PlatformFeeCents:  breakdown.PlatformFeeCents,
		TotalCents:        breakdown.TotalCents,
		VendorPayoutCents: breakdown.PayoutCents,
		Currency:          currency,
		StripeAccountID:   &input.StripeAccountID,
	}

	intent, err := s.stripe.CreatePaymentIntent(ctx, &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(breakdown.TotalCents),
		Currency: stripe.String(currency.String()),
		Metadata: map[string]string{
			types.MetadataKeyOrderType:   enums.OrderTypePreorder.String(),
			types.MetadataKeyReferenceID: preorder.ID.String(),
			types.MetadataKeyCustomerID:  preorder.CustomerID.String(),
			types.MetadataKeyVendorID:    preorder.VendorID.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	preorder.StripePaymentIntentID = &intent.ID

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, preorder); err != nil {
			return err
		}
		_, err := s.transactions.WithTx(tx).CreatePending(ctx, transactions.CreatePendingInput{
			Type:              enums.OrderTypePreorder,
			Source:            enums.PaymentSourceStripe,
			ReferenceID:       preorder.ID,
			CustomerID:        &preorder.CustomerID,
			VendorID:          &preorder.VendorID,
			Breakdown:         breakdown,
			Currency:          currency,
			ExternalPaymentID: intent.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &CreatePreorderResult{Preorder: preorder, ClientSecret: intent.ClientSecret}, nil
}

// HandlePaymentSucceeded runs the charge-then-transfer reconciliation. The
// transfer happens before the status write: if it fails, the preorder is
// parked in transfer-failed with the reason recorded, and the charge stays
// settled so support can re-run the payout manually.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, paymentIntentID string) error {
	if paymentIntentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	preorder, err := s.repo.FindByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load preorder")
	}
	if preorder == nil {
		s.warnf(ctx, "preorder not found for payment intent", paymentIntentID)
		return nil
	}
	if preorder.Status != enums.PreorderStatusPendingPayment {
		return nil
	}

	now := time.Now().UTC()
	transferOut, transferErr := s.stripe.CreateTransfer(ctx, &stripe.TransferParams{
		Amount:      stripe.Int64(preorder.VendorPayoutCents),
		Currency:    stripe.String(preorder.Currency.String()),
		Destination: preorder.StripeAccountID,
		Metadata: map[string]string{
			types.MetadataKeyOrderType:   enums.OrderTypePreorder.String(),
			types.MetadataKeyReferenceID: preorder.ID.String(),
		},
	})
	if transferErr != nil {
		return s.markTransferFailed(ctx, preorder, paymentIntentID, transferErr)
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, preorder.ID, enums.PreorderStatusPendingPayment, map[string]interface{}{
			"status":      enums.PreorderStatusPaid,
			"transfer_id": transferOut.ID,
			"paid_at":     now,
		})
		if err != nil || rows == 0 {
			return err
		}
		if _, err := s.transactions.WithTx(tx).Complete(ctx, transactions.CompleteInput{
			Type:               enums.OrderTypePreorder,
			ReferenceID:        preorder.ID,
			ExternalPaymentID:  paymentIntentID,
			ExternalTransferID: transferOut.ID,
		}); err != nil {
			return err
		}
		if _, err := s.sales.WithTx(tx).RecordSale(ctx, sales.RecordSaleInput{
			VendorID:    preorder.VendorID,
			PaymentID:   paymentIntentID,
			Source:      enums.PaymentSourceStripe,
			AmountCents: preorder.TotalCents,
			Currency:    preorder.Currency,
			Status:      "completed",
			OccurredAt:  now,
			MarketID:    preorder.MarketID,
			LineItems:   preorder.Items,
			IsPreorder:  true,
		}); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPreorderPaid,
			AggregateType: enums.AggregatePreorder,
			AggregateID:   preorder.ID,
			Data: payloads.PreorderPaidEvent{
				PreorderID:        preorder.ID,
				CustomerID:        preorder.CustomerID,
				VendorID:          preorder.VendorID,
				AmountCents:       preorder.TotalCents,
				VendorPayoutCents: preorder.VendorPayoutCents,
				PaymentIntentID:   paymentIntentID,
				TransferID:        transferOut.ID,
				PaidAt:            now,
			},
		})
	})
}

func (s *Service) markTransferFailed(ctx context.Context, preorder *models.Preorder, paymentIntentID string, cause error) error {
	reason := cause.Error()
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, preorder.ID, enums.PreorderStatusPendingPayment, map[string]interface{}{
			"status":         enums.PreorderStatusTransferFailed,
			"failure_reason": reason,
		})
		if err != nil || rows == 0 {
			return err
		}
		// the charge itself landed, so the ledger row completes without a transfer
		if _, err := s.transactions.WithTx(tx).Complete(ctx, transactions.CompleteInput{
			Type:              enums.OrderTypePreorder,
			ReferenceID:       preorder.ID,
			ExternalPaymentID: paymentIntentID,
		}); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPreorderTransferFailed,
			AggregateType: enums.AggregatePreorder,
			AggregateID:   preorder.ID,
			Data: payloads.PreorderTransferFailedEvent{
				PreorderID:      preorder.ID,
				VendorID:        preorder.VendorID,
				PaymentIntentID: paymentIntentID,
				Reason:          reason,
			},
		})
	})
}

// HandlePaymentFailed records a failed charge attempt.
func (s *Service) HandlePaymentFailed(ctx context.Context, paymentIntentID, reason string) error {
	preorder, err := s.repo.FindByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load preorder")
	}
	if preorder == nil {
		s.warnf(ctx, "preorder not found for failed payment", paymentIntentID)
		return nil
	}
	if preorder.Status != enums.PreorderStatusPendingPayment {
		return nil
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, preorder.ID, enums.PreorderStatusPendingPayment, map[string]interface{}{
			"status":         enums.PreorderStatusPaymentFailed,
			"failure_reason": reason,
		})
		if err != nil || rows == 0 {
			return err
		}
		return s.transactions.WithTx(tx).Fail(ctx, enums.OrderTypePreorder, preorder.ID)
	})
}

// Refund reverses a paid preorder. The vendor payout has already been
// transferred by the time a preorder is paid, so refunds require the
// transfer to be reversed with the charge.
func (s *Service) Refund(ctx context.Context, preorderID uuid.UUID, actor *outbox.ActorRef) (*models.Preorder, error) {
	preorder, err := s.repo.FindByID(ctx, preorderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load preorder")
	}
	if preorder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "preorder not found")
	}
	if preorder.Status == enums.PreorderStatusRefunded {
		return preorder, nil
	}
	if preorder.Status != enums.PreorderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paid preorders can be refunded")
	}

	if _, err := s.stripe.CreateRefund(ctx, &stripe.RefundParams{
		PaymentIntent:        preorder.StripePaymentIntentID,
		ReverseTransfer:      stripe.Bool(true),
		RefundApplicationFee: stripe.Bool(false),
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}

	now := time.Now().UTC()
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, preorder.ID, enums.PreorderStatusPaid, map[string]interface{}{
			"status":      enums.PreorderStatusRefunded,
			"refunded_at": now,
		})
		if err != nil || rows == 0 {
			return err
		}
		if preorder.StripePaymentIntentID != nil {
			if _, err := s.transactions.WithTx(tx).Refund(ctx, *preorder.StripePaymentIntentID); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPreorderRefunded,
			AggregateType: enums.AggregatePreorder,
			AggregateID:   preorder.ID,
			Actor:         actor,
			Data: payloads.PreorderRefundedEvent{
				PreorderID:      preorder.ID,
				CustomerID:      preorder.CustomerID,
				VendorID:        preorder.VendorID,
				AmountCents:     preorder.TotalCents,
				PaymentIntentID: derefString(preorder.StripePaymentIntentID),
				RefundedAt:      now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	preorder.Status = enums.PreorderStatusRefunded
	preorder.RefundedAt = &now
	return preorder, nil
}

// Get returns the preorder for status queries.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Preorder, error) {
	preorder, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load preorder")
	}
	if preorder == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "preorder not found")
	}
	return preorder, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Preorder, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	return s.repo.ListByCustomer(ctx, customerID, limit)
}

func (s *Service) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Preorder, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	return s.repo.ListByVendor(ctx, vendorID, limit)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Service) warnf(ctx context.Context, msg, paymentIntentID string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "payment_intent_id", paymentIntentID), msg)
}
