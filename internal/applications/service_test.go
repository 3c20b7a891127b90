package applications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/internal/fees"
	"github.com/marketloop/marketloop-backend/internal/transactions"
	"github.com/marketloop/marketloop-backend/pkg/config"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	pkgerrors "github.com/marketloop/marketloop-backend/pkg/errors"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

type fakeIntentClient struct {
	intents      []*stripe.PaymentIntentParams
	intentErr    error
	nextIntentID string
	nextSecret   string
}

func (f *fakeIntentClient) CreatePaymentIntent(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	f.intents = append(f.intents, params)
	id := f.nextIntentID
	if id == "" {
		id = "pi_" + uuid.NewString()[:8]
	}
	return &stripe.PaymentIntent{ID: id, ClientSecret: f.nextSecret}, nil
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func setupApplicationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE markets (
			id TEXT PRIMARY KEY,
			organizer_id TEXT NOT NULL,
			name TEXT NOT NULL,
			city TEXT,
			vendor_spots_available INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE vendor_applications (
			id TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			organizer_id TEXT NOT NULL,
			market_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			application_fee_cents INTEGER NOT NULL,
			booth_fee_cents INTEGER NOT NULL,
			total_fee_cents INTEGER NOT NULL,
			platform_fee_cents INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'usd',
			stripe_payment_intent_id TEXT UNIQUE,
			approval_expires_at DATETIME,
			approved_at DATETIME,
			denied_at DATETIME,
			confirmed_at DATETIME,
			expired_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE transactions (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'stripe',
			status TEXT NOT NULL DEFAULT 'pending',
			reference_id TEXT NOT NULL,
			customer_id TEXT,
			vendor_id TEXT,
			amount_cents INTEGER NOT NULL,
			platform_fee_cents INTEGER NOT NULL,
			payout_cents INTEGER NOT NULL,
			currency TEXT NOT NULL DEFAULT 'usd',
			external_payment_id TEXT UNIQUE,
			external_transfer_id TEXT,
			completed_at DATETIME,
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
		for _, table := range []string{"markets", "vendor_applications", "transactions", "outbox_events"} {
			gdb.Exec("DROP TABLE IF EXISTS " + table)
		}
	})

	return gdb
}

func newApplicationService(t *testing.T, gdb *gorm.DB, stripeClient *fakeIntentClient) *Service {
	t.Helper()

	calc, err := fees.NewCalculator(config.FeesConfig{PlatformRateBps: 600, ApplicationRateBps: 600})
	require.NoError(t, err)
	txnSvc, err := transactions.NewService(transactions.NewRepository(gdb))
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(gdb),
		Transactions:      txnSvc,
		Outbox:            outbox.NewService(outbox.NewRepository(gdb), nil),
		Fees:              calc,
		Stripe:            stripeClient,
		TransactionRunner: testTxRunner{db: gdb},
	})
	require.NoError(t, err)
	return svc
}

func seedMarket(t *testing.T, gdb *gorm.DB, spots int64) models.Market {
	t.Helper()
	market := models.Market{
		ID:                   uuid.New(),
		OrganizerID:          uuid.New(),
		Name:                 "Spring Market",
		VendorSpotsAvailable: spots,
	}
	require.NoError(t, gdb.Create(&market).Error)
	return market
}

func submitApplication(t *testing.T, svc *Service, marketID uuid.UUID) *models.VendorApplication {
	t.Helper()
	application, err := svc.Submit(context.Background(), SubmitInput{
		VendorID:            uuid.New(),
		MarketID:            marketID,
		ApplicationFeeCents: 2500,
		BoothFeeCents:       22500,
	})
	require.NoError(t, err)
	return application
}

func TestSubmitComputesInclusiveFee(t *testing.T) {
	gdb := setupApplicationsTestDB(t)
	svc := newApplicationService(t, gdb, &fakeIntentClient{})
	market := seedMarket(t, gdb, 5)

	application := submitApplication(t, svc, market.ID)
	assert.Equal(t, enums.ApplicationStatusPending, application.Status)
	assert.Equal(t, market.OrganizerID, application.OrganizerID)
	assert.Equal(t, int64(25000), application.TotalFeeCents)
	// 6% carved out of the total, not added on top
	assert.Equal(t, int64(1500), application.PlatformFeeCents)
}

func TestApproveOpensPaymentWindow(t *testing.T) {
	gdb := setupApplicationsTestDB(t)
	svc := newApplicationService(t, gdb, &fakeIntentClient{})
	market := seedMarket(t, gdb, 5)
	application := submitApplication(t, svc, market.ID)

	approved, err := svc.Approve(context.Background(), application.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApplicationStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovalExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(defaultApprovalWindow), *approved.ApprovalExpiresAt, time.Minute)

	var events int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventApplicationApproved).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)

	// a decided application cannot be decided again
	_, err = svc.Deny(context.Background(), application.ID)
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
}

func TestDenyClosesApplication(t *testing.T) {
	gdb := setupApplicationsTestDB(t)
	svc := newApplicationService(t, gdb, &fakeIntentClient{})
	market := seedMarket(t, gdb, 5)
	application := submitApplication(t, svc, market.ID)

	denied, err := svc.Deny(context.Background(), application.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApplicationStatusDenied, denied.Status)
	require.NotNil(t, denied.DeniedAt)
	assert.Nil(t, denied.ApprovalExpiresAt)
}

func TestPayRequiresApproval(t *testing.T) {
	gdb := setupApplicationsTestDB(t)
	stripeClient := &fakeIntentClient{}
	svc := newApplicationService(t, gdb, stripeClient)
	market := seedMarket(t, gdb, 5)
	application := submitApplication(t, svc, market.ID)

	_, err := svc.Pay(context.Background(), application.ID)
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
	assert.Empty(t, stripeClient.intents)
}

func TestPayCreatesIntentAndLedgerRow(t *testing.T) {
	gdb := setupApplicationsTestDB(t)
	stripeClient := &fakeIntentClient{nextIntentID: "pi_booth", nextSecret: "secret_booth"}
	svc := newApplicationService(t, gdb, stripeClient)
	market := seedMarket(t, gdb, 5)
	application := submitApplication(t, svc, market.ID)
	_, err := svc.Approve(context.Background(), application.ID)
	require.NoError(t, err)

	result, err := svc.Pay(context.Background(), application.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret_booth", result.ClientSecret)

	require.Len(t, stripeClient.intents, 1)
	params := stripeClient.intents[0]
	assert.Equal(t, int64(25000), *params.Amount)
	assert.Equal(t, enums.OrderTypeVendorApplication.String(), params.Metadata[types.MetadataKeyOrderType])
	assert.Equal(t, application.ID.String(), params.Metadata[types.MetadataKeyReferenceID])

	var txn models.Transaction
	require.NoError(t, gdb.First(&txn, "external_payment_id = ?", "pi_booth").Error)
	assert.Equal(t, enums.TransactionStatusPending, txn.Status)
	assert.Equal(t, int64(25000), txn.AmountCents)
	assert.Equal(t, int64(1500), txn.PlatformFeeCents)
	assert.Equal(t, int64(23500), txn.PayoutCents)
}

func TestPayRejectsExpiredWindow(t *testing.T) {
	gdb := setupApplicationsTestDB(t)
	stripeClient := &fakeIntentClient{}
	svc := newApplicationService(t, gdb, stripeClient)
	market := seedMarket(t, gdb, 5)
	application := submitApplication(t, svc, market.ID)
	_, err := svc.Approve(context.Background(), application.ID)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, gdb.Model(&models.VendorApplication{}).
		Where("id = ?", application.ID).
		Update("approval_expires_at", past).Error)

	_, err = svc.Pay(context.Background(), application.ID)
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())
	assert.Empty(t, stripeClient.intents)
}

func TestHandlePaymentSucceededConfirmsAndTakesSlot(t *testing.T) {
	gdb := setupApplicationsTestDB(t)
	stripeClient := &fakeIntentClient{nextIntentID: "pi_confirm"}
	svc := newApplicationService(t, gdb, stripeClient)
	market := seedMarket(t, gdb, 3)
	application := submitApplication(t, svc, market.ID)
	_, err := svc.Approve(context.Background(), application.ID)
	require.NoError(t, err)
	_, err = svc.Pay(context.Background(), application.ID)
	require.NoError(t, err)

	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_confirm"))

	confirmed, err := svc.Get(context.Background(), application.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApplicationStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)

	var updated models.Market
	require.NoError(t, gdb.First(&updated, "id = ?", market.ID).Error)
	assert.Equal(t, int64(2), updated.VendorSpotsAvailable)

	var txn models.Transaction
	require.NoError(t, gdb.First(&txn, "external_payment_id = ?", "pi_confirm").Error)
	assert.Equal(t, enums.TransactionStatusCompleted, txn.Status)

	// repeat delivery is a no-op
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_confirm"))
	require.NoError(t, gdb.First(&updated, "id = ?", market.ID).Error)
	assert.Equal(t, int64(2), updated.VendorSpotsAvailable)

	var events int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventApplicationConfirmed).
		Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestHandlePaymentSucceededWithNoOpenSlots(t *testing.T) {
	gdb := setupApplicationsTestDB(t)
	stripeClient := &fakeIntentClient{nextIntentID: "pi_full"}
	svc := newApplicationService(t, gdb, stripeClient)
	market := seedMarket(t, gdb, 0)
	application := submitApplication(t, svc, market.ID)
	_, err := svc.Approve(context.Background(), application.ID)
	require.NoError(t, err)
	_, err = svc.Pay(context.Background(), application.ID)
	require.NoError(t, err)

	// the fee already landed, so the confirmation still goes through
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_full"))

	confirmed, err := svc.Get(context.Background(), application.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApplicationStatusConfirmed, confirmed.Status)

	var updated models.Market
	require.NoError(t, gdb.First(&updated, "id = ?", market.ID).Error)
	assert.Equal(t, int64(0), updated.VendorSpotsAvailable)
}

func TestHandlePaymentFailedKeepsApproval(t *testing.T) {
	gdb := setupApplicationsTestDB(t)
	stripeClient := &fakeIntentClient{nextIntentID: "pi_fail"}
	svc := newApplicationService(t, gdb, stripeClient)
	market := seedMarket(t, gdb, 5)
	application := submitApplication(t, svc, market.ID)
	_, err := svc.Approve(context.Background(), application.ID)
	require.NoError(t, err)
	_, err = svc.Pay(context.Background(), application.ID)
	require.NoError(t, err)

	require.NoError(t, svc.HandlePaymentFailed(context.Background(), "pi_fail"))

	unchanged, err := svc.Get(context.Background(), application.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApplicationStatusApproved, unchanged.Status)

	var txn models.Transaction
	require.NoError(t, gdb.First(&txn, "external_payment_id = ?", "pi_fail").Error)
	assert.Equal(t, enums.TransactionStatusFailed, txn.Status)
}

func TestExpireApprovalsSweepsWithoutTouchingSlots(t *testing.T) {
	gdb := setupApplicationsTestDB(t)
	svc := newApplicationService(t, gdb, &fakeIntentClient{})
	market := seedMarket(t, gdb, 4)

	lapsed := submitApplication(t, svc, market.ID)
	_, err := svc.Approve(context.Background(), lapsed.ID)
	require.NoError(t, err)
	inWindow := submitApplication(t, svc, market.ID)
	_, err = svc.Approve(context.Background(), inWindow.ID)
	require.NoError(t, err)
	pending := submitApplication(t, svc, market.ID)

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, gdb.Model(&models.VendorApplication{}).
		Where("id = ?", lapsed.ID).
		Update("approval_expires_at", past).Error)

	swept, err := svc.ExpireApprovals(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	expired, err := svc.Get(context.Background(), lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApplicationStatusExpired, expired.Status)
	require.NotNil(t, expired.ExpiredAt)

	untouched, err := svc.Get(context.Background(), inWindow.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApplicationStatusApproved, untouched.Status)

	stillPending, err := svc.Get(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ApplicationStatusPending, stillPending.Status)

	// slot counter is unaffected: the slot was never taken
	var updated models.Market
	require.NoError(t, gdb.First(&updated, "id = ?", market.ID).Error)
	assert.Equal(t, int64(4), updated.VendorSpotsAvailable)

	// a second sweep finds nothing
	swept, err = svc.ExpireApprovals(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, swept)
}
