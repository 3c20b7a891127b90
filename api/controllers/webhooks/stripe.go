package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/marketloop/marketloop-backend/api/responses"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/logger"
)

// StripeDispatcher routes a verified Stripe event to the owning domain
// service. Dedup by event id happens inside the dispatcher.
type StripeDispatcher interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
	HandleConnectEvent(ctx context.Context, event *stripe.Event) error
}

type stripeClient interface {
	SigningSecret() string
	ConnectSigningSecret() string
}

// StripeWebhook receives platform account events (payment intents, checkout
// sessions).
func StripeWebhook(svc StripeDispatcher, client stripeClient, logg *logger.Logger) http.HandlerFunc {
	return stripeHandler(svc, client, logg, false)
}

// StripeConnectWebhook receives connected-account events (account.updated).
func StripeConnectWebhook(svc StripeDispatcher, client stripeClient, logg *logger.Logger) http.HandlerFunc {
	return stripeHandler(svc, client, logg, true)
}

func stripeHandler(svc StripeDispatcher, client stripeClient, logg *logger.Logger, connect bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook dispatcher unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		secret := client.SigningSecret()
		if connect {
			secret = client.ConnectSigningSecret()
		}

		event, err := constructStripeEvent(ctx, logg, payload, r.Header.Get("Stripe-Signature"), secret)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		handle := svc.HandleEvent
		if connect {
			handle = svc.HandleConnectEvent
		}
		if err := handle(ctx, event); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteWebhookAck(w)
	}
}

// constructStripeEvent verifies the payload signature. A missing signing
// secret downgrades to unverified parsing so local environments without
// webhook secrets still exercise the pipeline; the warning is deliberate
// and shows up on every delivery.
func constructStripeEvent(ctx context.Context, logg *logger.Logger, payload []byte, sigHeader, secret string) (*stripe.Event, error) {
	if secret == "" {
		if logg != nil {
			logg.Warn(ctx, "stripe webhook signing secret not configured, processing UNVERIFIED payload")
		}
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event")
		}
		return &event, nil
	}

	if sigHeader == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature")
	}
	return &event, nil
}
