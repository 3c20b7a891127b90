package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/internal/fees"
	"github.com/marketloop/marketloop-backend/internal/inventory"
	"github.com/marketloop/marketloop-backend/internal/transactions"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/outbox/payloads"
	"github.com/marketloop/marketloop-backend/pkg/qr"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the ticket service.
type ServiceParams struct {
	Repo              Repository
	Inventory         inventory.Service
	Transactions      transactions.Service
	Outbox            *outbox.Service
	Fees              *fees.Calculator
	Stripe            StripeCheckoutClient
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service owns the ticket purchase lifecycle. Checkout goes through a
// hosted Stripe session routed to the organizer's connected account, with
// the platform fee collected as an application fee. Capacity is checked
// before the session is created and claimed again, conditionally, when the
// session completes.
type Service struct {
	repo         Repository
	inventory    inventory.Service
	transactions transactions.Service
	outbox       *outbox.Service
	fees         *fees.Calculator
	stripe       StripeCheckoutClient
	txRunner     txRunner
	logg         *logger.Logger
}

// CreateCheckoutInput is a request to start a ticket checkout.
type CreateCheckoutInput struct {
	CustomerID uuid.UUID
	TicketID   uuid.UUID
	Quantity   int64
	Currency   enums.Currency
	SuccessURL string
	CancelURL  string
}

// CreateCheckoutResult carries the pending purchase and the hosted
// checkout URL the customer is redirected to.
type CreateCheckoutResult struct {
	Purchase    *models.TicketPurchase
	CheckoutURL string
}

// OrganizerSummary aggregates ticket sales for an organizer dashboard.
type OrganizerSummary struct {
	PurchaseCount int64
	TicketsSold   int64
	GrossCents    int64
	FeeCents      int64
	AttendedCount int64
}

// NewService builds a ticket service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tickets repo required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
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
	return &Service{
		repo:         params.Repo,
		inventory:    params.Inventory,
		transactions: params.Transactions,
		outbox:       params.Outbox,
		fees:         params.Fees,
		stripe:       params.Stripe,
		txRunner:     params.TransactionRunner,
		logg:         params.Logger,
	}, nil
}

// CreateCheckout prices the purchase fee-on-top and opens a hosted checkout
// session against the organizer's connected account. Remaining capacity is
// checked before the session exists so a sold-out ticket never reaches
// Stripe; the authoritative claim still happens at completion.
func (s *Service) CreateCheckout(ctx context.Context, input CreateCheckoutInput) (*CreateCheckoutResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if input.TicketID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket id is required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	ticket, err := s.repo.FindTicket(ctx, input.TicketID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ticket")
	}
	if ticket == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket not found")
	}
	event, err := s.repo.FindEvent(ctx, ticket.EventID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load event")
	}
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
	}

	remaining, err := s.inventory.TicketsRemaining(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	if remaining < input.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "not enough tickets remaining")
	}

	integration, err := s.repo.FindOrganizerIntegration(ctx, event.OrganizerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load organizer integration")
	}
	if integration == nil || integration.StripeAccountID == nil || !integration.ChargesEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "organizer payout account is not connected")
	}

	breakdown, err := s.fees.Purchase(input.Quantity * ticket.PriceCents)
	if err != nil {
		return nil, err
	}
	if breakdown.TotalCents == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase total must be positive")
	}

	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}

	purchase := &models.TicketPurchase{
		ID:               uuid.New(),
		EventID:          event.ID,
		TicketID:         ticket.ID,
		CustomerID:       input.CustomerID,
		OrganizerID:      event.OrganizerID,
		Quantity:         input.Quantity,
		UnitPriceCents:   ticket.PriceCents,
		SubtotalCents:    breakdown.SubtotalCents,
		PlatformFeeCents: breakdown.PlatformFeeCents,
		TotalCents:       breakdown.TotalCents,
		Currency:         currency,
		Status:           enums.TicketPurchaseStatusPending,
	}

	metadata := map[string]string{
		types.MetadataKeyOrderType:   enums.OrderTypeTicketPurchase.String(),
		types.MetadataKeyReferenceID: purchase.ID.String(),
		types.MetadataKeyCustomerID:  purchase.CustomerID.String(),
	}
	session, err := s.stripe.CreateCheckoutSession(ctx, &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(input.SuccessURL),
		CancelURL:  stripe.String(input.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(input.Quantity),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency.String()),
					UnitAmount: stripe.Int64(ticket.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s: %s", event.Name, ticket.Name)),
					},
				},
			},
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency.String()),
					UnitAmount: stripe.Int64(breakdown.PlatformFeeCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Service fee"),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(breakdown.PlatformFeeCents),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: integration.StripeAccountID,
			},
			Metadata: metadata,
		},
		Metadata: metadata,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	purchase.StripeSessionID = &session.ID

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, purchase); err != nil {
			return err
		}
		_, err := s.transactions.WithTx(tx).CreatePending(ctx, transactions.CreatePendingInput{
			Type:              enums.OrderTypeTicketPurchase,
			Source:            enums.PaymentSourceStripe,
			ReferenceID:       purchase.ID,
			CustomerID:        &purchase.CustomerID,
			VendorID:          &purchase.OrganizerID,
			Breakdown:         breakdown,
			Currency:          currency,
			ExternalPaymentID: session.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &CreateCheckoutResult{Purchase: purchase, CheckoutURL: session.URL}, nil
}

// HandleCheckoutCompleted reconciles a completed session: the purchase moves
// to completed exactly once, capacity is claimed conditionally, the ledger
// row settles against the payment intent, and a QR code is issued for entry.
// A capacity conflict at this point is returned as an error so the delivery
// retries after an operator frees capacity or refunds the session.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, sessionID, paymentIntentID string) error {
	if sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	purchase, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ticket purchase")
	}
	if purchase == nil {
		if s.logg != nil {
			ctx := s.logg.WithField(ctx, "session_id", sessionID)
			s.logg.Warn(ctx, "ticket purchase not found for checkout session")
		}
		return nil
	}
	if purchase.Status != enums.TicketPurchaseStatusPending {
		return nil
	}

	code, err := qr.EncodePNG("ticket:" + purchase.ID.String())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode ticket qr")
	}
	now := time.Now().UTC()

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, purchase.ID, enums.TicketPurchaseStatusPending, map[string]interface{}{
			"status":       enums.TicketPurchaseStatusCompleted,
			"completed_at": now,
			"qr_code":      code,
		})
		if err != nil || rows == 0 {
			return err
		}
		if err := s.inventory.WithTx(tx).ReserveTickets(ctx, purchase.TicketID, purchase.Quantity); err != nil {
			return err
		}
		if _, err := s.transactions.WithTx(tx).Complete(ctx, transactions.CompleteInput{
			Type:              enums.OrderTypeTicketPurchase,
			ReferenceID:       purchase.ID,
			ExternalPaymentID: paymentIntentID,
		}); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketPurchaseComplete,
			AggregateType: enums.AggregateTicketPurchase,
			AggregateID:   purchase.ID,
			Data: payloads.TicketPurchaseCompletedEvent{
				PurchaseID:  purchase.ID,
				EventID:     purchase.EventID,
				TicketID:    purchase.TicketID,
				CustomerID:  purchase.CustomerID,
				OrganizerID: purchase.OrganizerID,
				Quantity:    purchase.Quantity,
				TotalCents:  purchase.TotalCents,
				SessionID:   sessionID,
				CompletedAt: now,
			},
		})
	})
}

// Validate stamps a ticket at the door. The stamp is one-way: a second scan
// of the same ticket fails, as does scanning a ticket that never completed.
func (s *Service) Validate(ctx context.Context, purchaseID uuid.UUID) error {
	if purchaseID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "purchase id is required")
	}
	purchase, err := s.repo.FindByID(ctx, purchaseID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ticket purchase")
	}
	if purchase == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "ticket purchase not found")
	}

	now := time.Now().UTC()
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).StampUsed(ctx, purchase.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "ticket already used or not valid for entry")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketValidated,
			AggregateType: enums.AggregateTicketPurchase,
			AggregateID:   purchase.ID,
			Data: payloads.TicketValidatedEvent{
				PurchaseID: purchase.ID,
				EventID:    purchase.EventID,
				CustomerID: purchase.CustomerID,
				UsedAt:     now,
			},
		})
	})
}

// Cancel refunds a completed purchase and releases its capacity. Tickets
// already used at the door cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, purchaseID uuid.UUID) (*models.TicketPurchase, error) {
	if purchaseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase id is required")
	}
	purchase, err := s.repo.FindByID(ctx, purchaseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ticket purchase")
	}
	if purchase == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket purchase not found")
	}
	if purchase.Status == enums.TicketPurchaseStatusCancelled {
		return purchase, nil
	}
	if purchase.Status != enums.TicketPurchaseStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only completed purchases can be cancelled")
	}
	if purchase.UsedAt != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "ticket has already been used")
	}

	txn, err := s.transactions.FindByReference(ctx, enums.OrderTypeTicketPurchase, purchase.ID)
	if err != nil {
		return nil, err
	}
	if txn == nil || txn.ExternalPaymentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no settled payment to refund")
	}

	if _, err := s.stripe.CreateRefund(ctx, &stripe.RefundParams{
		PaymentIntent: txn.ExternalPaymentID,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund ticket purchase")
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, purchase.ID, enums.TicketPurchaseStatusCompleted, map[string]interface{}{
			"status": enums.TicketPurchaseStatusCancelled,
		})
		if err != nil || rows == 0 {
			return err
		}
		if err := s.inventory.WithTx(tx).ReleaseTickets(ctx, purchase.TicketID, purchase.Quantity); err != nil {
			return err
		}
		_, err = s.transactions.WithTx(tx).Refund(ctx, *txn.ExternalPaymentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	purchase.Status = enums.TicketPurchaseStatusCancelled
	return purchase, nil
}

// Get returns a purchase by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.TicketPurchase, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase id is required")
	}
	purchase, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ticket purchase")
	}
	if purchase == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ticket purchase not found")
	}
	return purchase, nil
}

// ListByCustomer returns the customer's most recent purchases.
func (s *Service) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.TicketPurchase, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	return s.repo.ListByCustomer(ctx, customerID, limit)
}

// SummaryForOrganizer aggregates completed sales and attendance for an
// organizer. Pending and cancelled purchases are excluded from the totals.
func (s *Service) SummaryForOrganizer(ctx context.Context, organizerID uuid.UUID, limit int) (*OrganizerSummary, error) {
	if organizerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "organizer id is required")
	}
	purchases, err := s.repo.ListByOrganizer(ctx, organizerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list organizer purchases")
	}
	summary := &OrganizerSummary{}
	for _, purchase := range purchases {
		if purchase.Status != enums.TicketPurchaseStatusCompleted {
			continue
		}
		summary.PurchaseCount++
		summary.TicketsSold += purchase.Quantity
		summary.GrossCents += purchase.TotalCents
		summary.FeeCents += purchase.PlatformFeeCents
		if purchase.UsedAt != nil {
			summary.AttendedCount++
		}
	}
	return summary, nil
}
