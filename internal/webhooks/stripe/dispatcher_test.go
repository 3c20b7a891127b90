package stripe

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/outbox/idempotency"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

type memoryStore struct {
	keys map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]bool{}}
}

func (m *memoryStore) Get(context.Context, string) (string, error) { return "", nil }

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "ml:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

type handlerCalls struct {
	succeeded []string
	failed    []string
	err       error
}

func (h *handlerCalls) HandlePaymentSucceeded(_ context.Context, paymentIntentID string) error {
	if h.err != nil {
		return h.err
	}
	h.succeeded = append(h.succeeded, paymentIntentID)
	return nil
}

func (h *handlerCalls) HandlePaymentFailed(_ context.Context, paymentIntentID string, _ string) error {
	h.failed = append(h.failed, paymentIntentID)
	return nil
}

type applicationCalls struct {
	handlerCalls
}

func (h *applicationCalls) HandlePaymentFailed(_ context.Context, paymentIntentID string) error {
	h.failed = append(h.failed, paymentIntentID)
	return nil
}

type ticketCalls struct {
	sessions []string
	intents  []string
}

func (h *ticketCalls) HandleCheckoutCompleted(_ context.Context, sessionID, paymentIntentID string) error {
	h.sessions = append(h.sessions, sessionID)
	h.intents = append(h.intents, paymentIntentID)
	return nil
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

type dispatcherFixture struct {
	dispatcher   *Dispatcher
	orders       *handlerCalls
	preorders    *handlerCalls
	tickets      *ticketCalls
	applications *applicationCalls
	db           *gorm.DB
	store        *memoryStore
}

func setupDispatcherTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE organizer_integrations (
			id TEXT PRIMARY KEY,
			organizer_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			stripe_account_id TEXT UNIQUE,
			charges_enabled INTEGER NOT NULL DEFAULT 0,
			payouts_enabled INTEGER NOT NULL DEFAULT 0,
			details_submitted INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE outbox_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			published_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		require.NoError(t, gdb.Exec(stmt).Error)
	}

	t.Cleanup(func() {
		for _, table := range []string{"organizer_integrations", "outbox_events"} {
			gdb.Exec("DROP TABLE IF EXISTS " + table)
		}
	})

	return gdb
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	gdb := setupDispatcherTestDB(t)
	store := newMemoryStore()
	manager, err := idempotency.NewManager(store, time.Hour)
	require.NoError(t, err)

	orders := &handlerCalls{}
	preorders := &handlerCalls{}
	tickets := &ticketCalls{}
	applications := &applicationCalls{}

	dispatcher, err := NewDispatcher(DispatcherParams{
		Orders:            orders,
		Preorders:         preorders,
		Tickets:           tickets,
		Applications:      applications,
		Integrations:      NewIntegrationRepository(gdb),
		Outbox:            outbox.NewService(outbox.NewRepository(gdb), nil),
		Idempotency:       manager,
		TransactionRunner: testTxRunner{db: gdb},
	})
	require.NoError(t, err)

	return &dispatcherFixture{
		dispatcher:   dispatcher,
		orders:       orders,
		preorders:    preorders,
		tickets:      tickets,
		applications: applications,
		db:           gdb,
		store:        store,
	}
}

func intentEvent(t *testing.T, eventID, eventType, intentID string, orderType enums.OrderType) *stripeapi.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"id": intentID,
		"metadata": map[string]string{
			types.MetadataKeyOrderType: orderType.String(),
		},
	})
	require.NoError(t, err)
	return &stripeapi.Event{
		ID:   eventID,
		Type: stripeapi.EventType(eventType),
		Data: &stripeapi.EventData{Raw: raw},
	}
}

func TestHandleEventRoutesByOrderType(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dispatcher.HandleEvent(ctx,
		intentEvent(t, "evt_1", "payment_intent.succeeded", "pi_order", enums.OrderTypeProductPurchase)))
	require.NoError(t, f.dispatcher.HandleEvent(ctx,
		intentEvent(t, "evt_2", "payment_intent.succeeded", "pi_preorder", enums.OrderTypePreorder)))
	require.NoError(t, f.dispatcher.HandleEvent(ctx,
		intentEvent(t, "evt_3", "payment_intent.succeeded", "pi_app", enums.OrderTypeVendorApplication)))
	require.NoError(t, f.dispatcher.HandleEvent(ctx,
		intentEvent(t, "evt_4", "payment_intent.payment_failed", "pi_order2", enums.OrderTypeProductPurchase)))

	assert.Equal(t, []string{"pi_order"}, f.orders.succeeded)
	assert.Equal(t, []string{"pi_preorder"}, f.preorders.succeeded)
	assert.Equal(t, []string{"pi_app"}, f.applications.succeeded)
	assert.Equal(t, []string{"pi_order2"}, f.orders.failed)
}

func TestHandleEventDeduplicatesByEventID(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	event := intentEvent(t, "evt_dup", "payment_intent.succeeded", "pi_dup", enums.OrderTypeProductPurchase)

	require.NoError(t, f.dispatcher.HandleEvent(ctx, event))
	require.NoError(t, f.dispatcher.HandleEvent(ctx, event))

	assert.Equal(t, []string{"pi_dup"}, f.orders.succeeded)
}

func TestHandleEventReleasesDedupMarkOnFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	event := intentEvent(t, "evt_retry", "payment_intent.succeeded", "pi_retry", enums.OrderTypeProductPurchase)

	f.orders.err = pkgerrors.New(pkgerrors.CodeInternal, "storage down")
	require.Error(t, f.dispatcher.HandleEvent(ctx, event))
	assert.Empty(t, f.orders.succeeded)

	// the retry delivery goes through once the handler recovers
	f.orders.err = nil
	require.NoError(t, f.dispatcher.HandleEvent(ctx, event))
	assert.Equal(t, []string{"pi_retry"}, f.orders.succeeded)
}

func TestHandleEventIgnoresUnknownOrderType(t *testing.T) {
	f := newDispatcherFixture(t)
	event := intentEvent(t, "evt_sub", "payment_intent.succeeded", "pi_sub", enums.OrderTypeSubscription)

	require.NoError(t, f.dispatcher.HandleEvent(context.Background(), event))
	assert.Empty(t, f.orders.succeeded)
	assert.Empty(t, f.preorders.succeeded)
	assert.Empty(t, f.applications.succeeded)
}

func TestHandleEventIgnoresUnknownEventType(t *testing.T) {
	f := newDispatcherFixture(t)
	event := &stripeapi.Event{
		ID:   "evt_other",
		Type: "charge.succeeded",
		Data: &stripeapi.EventData{Raw: json.RawMessage(`{}`)},
	}
	require.NoError(t, f.dispatcher.HandleEvent(context.Background(), event))
}

func TestHandleEventRoutesCheckoutSession(t *testing.T) {
	f := newDispatcherFixture(t)
	raw, err := json.Marshal(map[string]interface{}{
		"id":             "cs_hook",
		"payment_intent": map[string]string{"id": "pi_hook"},
		"metadata": map[string]string{
			types.MetadataKeyOrderType: enums.OrderTypeTicketPurchase.String(),
		},
	})
	require.NoError(t, err)

	event := &stripeapi.Event{
		ID:   "evt_cs",
		Type: "checkout.session.completed",
		Data: &stripeapi.EventData{Raw: raw},
	}
	require.NoError(t, f.dispatcher.HandleEvent(context.Background(), event))
	assert.Equal(t, []string{"cs_hook"}, f.tickets.sessions)
	assert.Equal(t, []string{"pi_hook"}, f.tickets.intents)
}

func TestHandleConnectEventUpdatesCapabilities(t *testing.T) {
	f := newDispatcherFixture(t)

	accountID := "acct_update"
	integration := models.OrganizerIntegration{
		ID:              uuid.New(),
		OrganizerID:     uuid.New(),
		Provider:        enums.PaymentSourceStripe,
		StripeAccountID: &accountID,
	}
	require.NoError(t, f.db.Create(&integration).Error)

	raw, err := json.Marshal(map[string]interface{}{
		"id":                accountID,
		"charges_enabled":   true,
		"payouts_enabled":   true,
		"details_submitted": true,
	})
	require.NoError(t, err)

	event := &stripeapi.Event{
		ID:   "evt_acct",
		Type: "account.updated",
		Data: &stripeapi.EventData{Raw: raw},
	}
	require.NoError(t, f.dispatcher.HandleConnectEvent(context.Background(), event))

	var updated models.OrganizerIntegration
	require.NoError(t, f.db.First(&updated, "id = ?", integration.ID).Error)
	assert.True(t, updated.ChargesEnabled)
	assert.True(t, updated.PayoutsEnabled)
	assert.True(t, updated.DetailsSubmitted)

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPayoutAccountUpdated).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestHandleConnectEventUnknownAccountIsInert(t *testing.T) {
	f := newDispatcherFixture(t)

	raw, err := json.Marshal(map[string]interface{}{"id": "acct_unknown"})
	require.NoError(t, err)
	event := &stripeapi.Event{
		ID:   "evt_unknown_acct",
		Type: "account.updated",
		Data: &stripeapi.EventData{Raw: raw},
	}
	require.NoError(t, f.dispatcher.HandleConnectEvent(context.Background(), event))

	var events int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.Zero(t, events)
}
