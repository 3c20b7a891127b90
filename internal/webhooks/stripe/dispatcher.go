package stripe

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
	"github.com/marketloop/marketloop-backend/pkg/metrics"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/outbox/idempotency"
	"github.com/marketloop/marketloop-backend/pkg/outbox/payloads"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

// consumerName scopes dedup keys for the platform webhook endpoint.
const consumerName = "stripe-webhooks"

// connectConsumerName scopes dedup keys for the Connect endpoint.
const connectConsumerName = "stripe-connect-webhooks"

// OrderHandler reconciles direct product orders.
type OrderHandler interface {
	HandlePaymentSucceeded(ctx context.Context, paymentIntentID string) error
	HandlePaymentFailed(ctx context.Context, paymentIntentID string, reason string) error
}

// PreorderHandler reconciles Connect-routed preorders.
type PreorderHandler interface {
	HandlePaymentSucceeded(ctx context.Context, paymentIntentID string) error
	HandlePaymentFailed(ctx context.Context, paymentIntentID string, reason string) error
}

// TicketHandler reconciles hosted checkout sessions.
type TicketHandler interface {
	HandleCheckoutCompleted(ctx context.Context, sessionID, paymentIntentID string) error
}

// ApplicationHandler reconciles booth fee payments.
type ApplicationHandler interface {
	HandlePaymentSucceeded(ctx context.Context, paymentIntentID string) error
	HandlePaymentFailed(ctx context.Context, paymentIntentID string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DispatcherParams groups dependencies for the webhook dispatcher.
type DispatcherParams struct {
	Orders            OrderHandler
	Preorders         PreorderHandler
	Tickets           TicketHandler
	Applications      ApplicationHandler
	Integrations      IntegrationRepository
	Outbox            *outbox.Service
	Idempotency       *idempotency.Manager
	Metrics           *metrics.WebhookMetrics
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Dispatcher routes verified Stripe events to the owning service. Events
// are deduplicated by provider event id before any handler runs; a failed
// handler releases its dedup mark so the next delivery retries.
type Dispatcher struct {
	orders       OrderHandler
	preorders    PreorderHandler
	tickets      TicketHandler
	applications ApplicationHandler
	integrations IntegrationRepository
	outbox       *outbox.Service
	dedup        *idempotency.Manager
	metrics      *metrics.WebhookMetrics
	txRunner     txRunner
	logg         *logger.Logger
}

// NewDispatcher builds a webhook dispatcher.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order handler required")
	}
	if params.Preorders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "preorder handler required")
	}
	if params.Tickets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ticket handler required")
	}
	if params.Applications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "application handler required")
	}
	if params.Integrations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "integration repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.Idempotency == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency manager required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Dispatcher{
		orders:       params.Orders,
		preorders:    params.Preorders,
		tickets:      params.Tickets,
		applications: params.Applications,
		integrations: params.Integrations,
		outbox:       params.Outbox,
		dedup:        params.Idempotency,
		metrics:      params.Metrics,
		txRunner:     params.TransactionRunner,
		logg:         params.Logger,
	}, nil
}

// HandleEvent processes one platform webhook delivery.
func (d *Dispatcher) HandleEvent(ctx context.Context, event *stripeapi.Event) error {
	return d.handle(ctx, consumerName, event, d.dispatchPlatform)
}

// HandleConnectEvent processes one Connect webhook delivery.
func (d *Dispatcher) HandleConnectEvent(ctx context.Context, event *stripeapi.Event) error {
	return d.handle(ctx, connectConsumerName, event, d.dispatchConnect)
}

func (d *Dispatcher) handle(ctx context.Context, consumer string, event *stripeapi.Event, dispatch func(context.Context, *stripeapi.Event) (bool, error)) error {
	if event == nil || event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if d.logg != nil {
		ctx = d.logg.WithEventID(ctx, event.ID)
		ctx = d.logg.WithProvider(ctx, "stripe")
	}
	eventType := string(event.Type)

	seen, err := d.dedup.CheckAndMarkProcessed(ctx, consumer, event.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check event dedup")
	}
	if seen {
		d.metrics.IncSkipped("stripe", eventType)
		if d.logg != nil {
			d.logg.Info(ctx, "duplicate webhook event skipped")
		}
		return nil
	}

	handled, err := dispatch(ctx, event)
	if err != nil {
		// release the mark so the provider's retry is not swallowed
		if delErr := d.dedup.Delete(ctx, consumer, event.ID); delErr != nil && d.logg != nil {
			d.logg.Error(ctx, "release event dedup mark", delErr)
		}
		d.metrics.IncFailed("stripe", eventType)
		return err
	}
	if handled {
		d.metrics.IncProcessed("stripe", eventType)
	} else {
		d.metrics.IncSkipped("stripe", eventType)
	}
	return nil
}

func (d *Dispatcher) dispatchPlatform(ctx context.Context, event *stripeapi.Event) (bool, error) {
	switch event.Type {
	case "payment_intent.succeeded":
		intent, err := parsePaymentIntent(event)
		if err != nil {
			return false, err
		}
		return d.routeIntentSucceeded(ctx, intent)
	case "payment_intent.payment_failed":
		intent, err := parsePaymentIntent(event)
		if err != nil {
			return false, err
		}
		return d.routeIntentFailed(ctx, intent)
	case "checkout.session.completed":
		var session stripeapi.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse checkout session")
		}
		if session.Metadata[types.MetadataKeyOrderType] != enums.OrderTypeTicketPurchase.String() {
			d.ignore(ctx, "checkout session with unhandled order type")
			return false, nil
		}
		paymentIntentID := ""
		if session.PaymentIntent != nil {
			paymentIntentID = session.PaymentIntent.ID
		}
		return true, d.tickets.HandleCheckoutCompleted(ctx, session.ID, paymentIntentID)
	default:
		d.ignore(ctx, "unhandled webhook event type")
		return false, nil
	}
}

func (d *Dispatcher) routeIntentSucceeded(ctx context.Context, intent *stripeapi.PaymentIntent) (bool, error) {
	switch intent.Metadata[types.MetadataKeyOrderType] {
	case enums.OrderTypeProductPurchase.String():
		return true, d.orders.HandlePaymentSucceeded(ctx, intent.ID)
	case enums.OrderTypePreorder.String():
		return true, d.preorders.HandlePaymentSucceeded(ctx, intent.ID)
	case enums.OrderTypeVendorApplication.String():
		return true, d.applications.HandlePaymentSucceeded(ctx, intent.ID)
	default:
		d.ignore(ctx, "payment intent with unhandled order type")
		return false, nil
	}
}

func (d *Dispatcher) routeIntentFailed(ctx context.Context, intent *stripeapi.PaymentIntent) (bool, error) {
	reason := failureReason(intent)
	switch intent.Metadata[types.MetadataKeyOrderType] {
	case enums.OrderTypeProductPurchase.String():
		return true, d.orders.HandlePaymentFailed(ctx, intent.ID, reason)
	case enums.OrderTypePreorder.String():
		return true, d.preorders.HandlePaymentFailed(ctx, intent.ID, reason)
	case enums.OrderTypeVendorApplication.String():
		return true, d.applications.HandlePaymentFailed(ctx, intent.ID)
	default:
		d.ignore(ctx, "payment intent with unhandled order type")
		return false, nil
	}
}

// dispatchConnect mirrors account capability changes onto the stored
// integration so checkout can refuse organizers that lost their charges
// capability.
func (d *Dispatcher) dispatchConnect(ctx context.Context, event *stripeapi.Event) (bool, error) {
	if event.Type != "account.updated" {
		d.ignore(ctx, "unhandled connect event type")
		return false, nil
	}
	var account stripeapi.Account
	if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse account")
	}
	if account.ID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}

	integration, err := d.integrations.FindByStripeAccountID(ctx, account.ID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load integration")
	}
	if integration == nil {
		d.ignore(ctx, "account.updated for unknown connected account")
		return false, nil
	}

	return true, d.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := d.integrations.WithTx(tx).UpdateCapabilities(ctx, integration.ID, account.ChargesEnabled, account.PayoutsEnabled, account.DetailsSubmitted); err != nil {
			return err
		}
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutAccountUpdated,
			AggregateType: enums.AggregatePayoutAccount,
			AggregateID:   integration.OrganizerID,
			Data: payloads.PayoutAccountUpdatedEvent{
				OrganizerID:      integration.OrganizerID,
				StripeAccountID:  account.ID,
				ChargesEnabled:   account.ChargesEnabled,
				PayoutsEnabled:   account.PayoutsEnabled,
				DetailsSubmitted: account.DetailsSubmitted,
			},
		})
	})
}

func (d *Dispatcher) ignore(ctx context.Context, msg string) {
	if d.logg != nil {
		d.logg.Info(ctx, msg)
	}
}

func parsePaymentIntent(event *stripeapi.Event) (*stripeapi.PaymentIntent, error) {
	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse payment intent")
	}
	if intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	return &intent, nil
}

func failureReason(intent *stripeapi.PaymentIntent) string {
	if intent.LastPaymentError == nil {
		return ""
	}
	if intent.LastPaymentError.Msg != "" {
		return intent.LastPaymentError.Msg
	}
	return string(intent.LastPaymentError.Code)
}
