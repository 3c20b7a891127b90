package applications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/internal/fees"
	"github.com/marketloop/marketloop-backend/internal/transactions"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/outbox/payloads"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

// defaultApprovalWindow is how long an approved vendor has to pay the
// booth fee before the sweep expires the approval.
const defaultApprovalWindow = 7 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the application service.
type ServiceParams struct {
	Repo              Repository
	Transactions      transactions.Service
	Outbox            *outbox.Service
	Fees              *fees.Calculator
	Stripe            StripePaymentClient
	TransactionRunner txRunner
	Logger            *logger.Logger
	ApprovalWindow    time.Duration
}

// Service owns the vendor application state machine. Approval opens a
// payment window; the booth fee charge confirms the application and takes
// a market slot, and the cron sweep expires approvals that miss the
// window without touching the slot counter.
type Service struct {
	repo           Repository
	transactions   transactions.Service
	outbox         *outbox.Service
	fees           *fees.Calculator
	stripe         StripePaymentClient
	txRunner       txRunner
	logg           *logger.Logger
	approvalWindow time.Duration
}

// SubmitInput is a vendor's request for a booth at a market.
type SubmitInput struct {
	VendorID            uuid.UUID
	MarketID            uuid.UUID
	ApplicationFeeCents int64
	BoothFeeCents       int64
	Currency            enums.Currency
}

// PayResult carries the approved application and the client secret for
// the booth fee intent.
type PayResult struct {
	Application  *models.VendorApplication
	ClientSecret string
}

// NewService builds an application service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "applications repo required")
	}
	if params.Transactions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transactions service required")
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
	window := params.ApprovalWindow
	if window <= 0 {
		window = defaultApprovalWindow
	}
	return &Service{
		repo:           params.Repo,
		transactions:   params.Transactions,
		outbox:         params.Outbox,
		fees:           params.Fees,
		stripe:         params.Stripe,
		txRunner:       params.TransactionRunner,
		logg:           params.Logger,
		approvalWindow: window,
	}, nil
}

// Submit files a pending application. The booth and application fees are
// fixed at submission; the platform fee is carved out of the total rather
// than added on top.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*models.VendorApplication, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if input.MarketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "market id is required")
	}
	if input.ApplicationFeeCents < 0 || input.BoothFeeCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fees must not be negative")
	}
	total := input.ApplicationFeeCents + input.BoothFeeCents
	if total <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application total must be positive")
	}

	market, err := s.repo.FindMarket(ctx, input.MarketID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load market")
	}
	if market == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "market not found")
	}

	breakdown, err := s.fees.Application(total)
	if err != nil {
		return nil, err
	}

	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	application := &models.VendorApplication{
		ID:                  uuid.New(),
		VendorID:            input.VendorID,
		OrganizerID:         market.OrganizerID,
		MarketID:            market.ID,
		Status:              enums.ApplicationStatusPending,
		ApplicationFeeCents: input.ApplicationFeeCents,
		BoothFeeCents:       input.BoothFeeCents,
		TotalFeeCents:       total,
		PlatformFeeCents:    breakdown.PlatformFeeCents,
		Currency:            currency,
	}
	if err := s.repo.Create(ctx, application); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create application")
	}
	return application, nil
}

// Approve moves a pending application to approved and opens the payment
// window. Approving anything but a pending application fails.
func (s *Service) Approve(ctx context.Context, applicationID uuid.UUID) (*models.VendorApplication, error) {
	return s.decide(ctx, applicationID, enums.ApplicationStatusApproved)
}

// Deny closes a pending application.
func (s *Service) Deny(ctx context.Context, applicationID uuid.UUID) (*models.VendorApplication, error) {
	return s.decide(ctx, applicationID, enums.ApplicationStatusDenied)
}

func (s *Service) decide(ctx context.Context, applicationID uuid.UUID, decision enums.ApplicationStatus) (*models.VendorApplication, error) {
	if applicationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application id is required")
	}
	application, err := s.repo.FindByID(ctx, applicationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load application")
	}
	if application == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
	}
	if application.Status != enums.ApplicationStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "application has already been decided")
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"status": decision}
	eventType := enums.EventApplicationDenied
	var expiresAt *time.Time
	if decision == enums.ApplicationStatusApproved {
		deadline := now.Add(s.approvalWindow)
		expiresAt = &deadline
		updates["approved_at"] = now
		updates["approval_expires_at"] = deadline
		eventType = enums.EventApplicationApproved
	} else {
		updates["denied_at"] = now
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, application.ID, enums.ApplicationStatusPending, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "application has already been decided")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateVendorApplication,
			AggregateID:   application.ID,
			Data: payloads.ApplicationDecisionEvent{
				ApplicationID:     application.ID,
				VendorID:          application.VendorID,
				OrganizerID:       application.OrganizerID,
				MarketID:          application.MarketID,
				Status:            decision,
				ApprovalExpiresAt: expiresAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	application.Status = decision
	application.ApprovalExpiresAt = expiresAt
	if decision == enums.ApplicationStatusApproved {
		application.ApprovedAt = &now
	} else {
		application.DeniedAt = &now
	}
	return application, nil
}

// Pay creates the booth fee intent for an approved application that is
// still inside its payment window. The fee is inclusive: the vendor pays
// the quoted total and the platform keeps its cut out of it.
func (s *Service) Pay(ctx context.Context, applicationID uuid.UUID) (*PayResult, error) {
	if applicationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application id is required")
	}
	application, err := s.repo.FindByID(ctx, applicationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load application")
	}
	if application == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
	}
	if application.Status != enums.ApplicationStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "application is not approved for payment")
	}
	if application.ApprovalExpiresAt != nil && application.ApprovalExpiresAt.Before(time.Now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "approval payment window has passed")
	}

	breakdown, err := s.fees.Application(application.TotalFeeCents)
	if err != nil {
		return nil, err
	}

	intent, err := s.stripe.CreatePaymentIntent(ctx, &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(application.TotalFeeCents),
		Currency: stripe.String(application.Currency.String()),
		Metadata: map[string]string{
			types.MetadataKeyOrderType:   enums.OrderTypeVendorApplication.String(),
			types.MetadataKeyReferenceID: application.ID.String(),
			types.MetadataKeyVendorID:    application.VendorID.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, application.ID, enums.ApplicationStatusApproved, map[string]interface{}{
			"stripe_payment_intent_id": intent.ID,
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "application is not approved for payment")
		}
		_, err = s.transactions.WithTx(tx).CreatePending(ctx, transactions.CreatePendingInput{
			Type:              enums.OrderTypeVendorApplication,
			Source:            enums.PaymentSourceStripe,
			ReferenceID:       application.ID,
			VendorID:          &application.VendorID,
			Breakdown:         breakdown,
			Currency:          application.Currency,
			ExternalPaymentID: intent.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	application.StripePaymentIntentID = &intent.ID
	return &PayResult{Application: application, ClientSecret: intent.ClientSecret}, nil
}

// HandlePaymentSucceeded confirms the application exactly once and takes
// a market slot. A market that has run out of slots does not fail the
// reconciliation: the fee has already been collected, so the shortage is
// logged for the organizer to resolve.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, paymentIntentID string) error {
	if paymentIntentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	application, err := s.repo.FindByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load application")
	}
	if application == nil {
		if s.logg != nil {
			ctx := s.logg.WithField(ctx, "payment_intent_id", paymentIntentID)
			s.logg.Warn(ctx, "application not found for payment intent")
		}
		return nil
	}
	if application.Status != enums.ApplicationStatusApproved {
		return nil
	}

	now := time.Now().UTC()
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rows, err := repo.UpdateIfStatus(ctx, application.ID, enums.ApplicationStatusApproved, map[string]interface{}{
			"status":       enums.ApplicationStatusConfirmed,
			"confirmed_at": now,
		})
		if err != nil || rows == 0 {
			return err
		}
		slots, err := repo.DecrementMarketSpots(ctx, application.MarketID)
		if err != nil {
			return err
		}
		if slots == 0 && s.logg != nil {
			ctx := s.logg.WithField(ctx, "market_id", application.MarketID.String())
			s.logg.Warn(ctx, "confirmed application with no open market slots")
		}
		if _, err := s.transactions.WithTx(tx).Complete(ctx, transactions.CompleteInput{
			Type:              enums.OrderTypeVendorApplication,
			ReferenceID:       application.ID,
			ExternalPaymentID: paymentIntentID,
		}); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventApplicationConfirmed,
			AggregateType: enums.AggregateVendorApplication,
			AggregateID:   application.ID,
			Data: payloads.ApplicationConfirmedEvent{
				ApplicationID:   application.ID,
				VendorID:        application.VendorID,
				MarketID:        application.MarketID,
				TotalFeeCents:   application.TotalFeeCents,
				PaymentIntentID: paymentIntentID,
				ConfirmedAt:     now,
			},
		})
	})
}

// HandlePaymentFailed settles the ledger row as failed. The application
// stays approved so the vendor can retry inside the window.
func (s *Service) HandlePaymentFailed(ctx context.Context, paymentIntentID string) error {
	if paymentIntentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	application, err := s.repo.FindByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load application")
	}
	if application == nil {
		return nil
	}
	return s.transactions.Fail(ctx, enums.OrderTypeVendorApplication, application.ID)
}

// ExpireApprovals sweeps approved applications whose payment window has
// passed. Slots are untouched: a slot is only ever taken at confirmation,
// which these applications never reached.
func (s *Service) ExpireApprovals(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.repo.ListExpiredApprovals(ctx, now, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list expired approvals")
	}

	swept := 0
	for _, application := range expired {
		err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
			rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, application.ID, enums.ApplicationStatusApproved, map[string]interface{}{
				"status":     enums.ApplicationStatusExpired,
				"expired_at": now,
			})
			if err != nil || rows == 0 {
				return err
			}
			swept++
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventApplicationExpired,
				AggregateType: enums.AggregateVendorApplication,
				AggregateID:   application.ID,
				Data: payloads.ApplicationExpiredEvent{
					ApplicationID: application.ID,
					VendorID:      application.VendorID,
					MarketID:      application.MarketID,
					ExpiredAt:     now,
				},
			})
		})
		if err != nil {
			return swept, err
		}
	}
	return swept, nil
}

// Get returns an application by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.VendorApplication, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "application id is required")
	}
	application, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load application")
	}
	if application == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "application not found")
	}
	return application, nil
}

// ListByVendor returns the vendor's most recent applications.
func (s *Service) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.VendorApplication, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	return s.repo.ListByVendor(ctx, vendorID, limit)
}

// ListByMarket returns the market's most recent applications.
func (s *Service) ListByMarket(ctx context.Context, marketID uuid.UUID, limit int) ([]models.VendorApplication, error) {
	if marketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "market id is required")
	}
	return s.repo.ListByMarket(ctx, marketID, limit)
}
