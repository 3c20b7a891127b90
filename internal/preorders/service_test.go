package preorders

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/internal/fees"
	"github.com/marketloop/marketloop-backend/internal/sales"
	"github.com/marketloop/marketloop-backend/internal/transactions"
	"github.com/marketloop/marketloop-backend/pkg/config"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

type fakeConnectClient struct {
	transfers    []*stripe.TransferParams
	refunds      []*stripe.RefundParams
	transferErr  error
	nextIntentID string
}

func (f *fakeConnectClient) CreatePaymentIntent(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	id := f.nextIntentID
	if id == "" {
		id = "pi_" + uuid.NewString()[:8]
	}
	_ = params
	return &stripe.PaymentIntent{ID: id, ClientSecret: "cs_" + id}, nil
}

func (f *fakeConnectClient) CreateTransfer(_ context.Context, params *stripe.TransferParams) (*stripe.Transfer, error) {
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.transfers = append(f.transfers, params)
	return &stripe.Transfer{ID: "tr_" + uuid.NewString()[:8]}, nil
}

func (f *fakeConnectClient) CreateRefund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	f.refunds = append(f.refunds, params)
	return &stripe.Refund{ID: "re_" + uuid.NewString()[:8]}, nil
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func setupPreordersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE preorders (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			vendor_id TEXT NOT NULL,
			market_id TEXT,
			status TEXT NOT NULL DEFAULT 'pending_payment',
			items TEXT NOT NULL,
			subtotal_cents INTEGER NOT NULL,
			platform_fee_cents INTEGER NOT NULL,
			total_cents INTEGER NOT NULL,
			vendor_payout_cents INTEGER NOT NULL,
			currency TEXT NOT NULL DEFAULT 'usd',
			stripe_account_id TEXT,
			stripe_payment_intent_id TEXT UNIQUE,
			transfer_id TEXT,
			failure_reason TEXT,
			paid_at DATETIME,
			refunded_at DATETIME,
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
		`CREATE TABLE vendor_sales (
			id TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			payment_id TEXT NOT NULL,
			source TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			currency TEXT NOT NULL DEFAULT 'usd',
			status TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			market_id TEXT,
			market_name TEXT,
			line_items TEXT NOT NULL,
			is_preorder INTEGER NOT NULL DEFAULT 0,
			is_assigned INTEGER NOT NULL DEFAULT 0,
			synced_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
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
		for _, table := range []string{"preorders", "transactions", "vendor_sales", "outbox_events"} {
			gdb.Exec("DROP TABLE IF EXISTS " + table)
		}
	})

	return gdb
}

func newPreorderService(t *testing.T, gdb *gorm.DB, client *fakeConnectClient) *Service {
	t.Helper()

	calc, err := fees.NewCalculator(config.FeesConfig{PlatformRateBps: 600, ApplicationRateBps: 600})
	require.NoError(t, err)
	txnSvc, err := transactions.NewService(transactions.NewRepository(gdb))
	require.NoError(t, err)
	salesSvc, err := sales.NewService(sales.NewRepository(gdb))
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(gdb),
		Transactions:      txnSvc,
		Sales:             salesSvc,
		Outbox:            outbox.NewService(outbox.NewRepository(gdb), nil),
		Fees:              calc,
		Stripe:            client,
		TransactionRunner: testTxRunner{db: gdb},
	})
	require.NoError(t, err)
	return svc
}

func preorderItems() types.LineItems {
	productID := uuid.New()
	return types.LineItems{{
		ProductID:      &productID,
		Name:           "pour over bundle",
		Quantity:       1,
		UnitPriceCents: 10000,
		TotalCents:     10000,
	}}
}

func createTestPreorder(t *testing.T, svc *Service, intentID string) *models.Preorder {
	t.Helper()
	result, err := svc.Create(context.Background(), CreatePreorderInput{
		CustomerID:      uuid.New(),
		VendorID:        uuid.New(),
		Items:           preorderItems(),
		StripeAccountID: "acct_vendor",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Preorder.StripePaymentIntentID)
	require.Equal(t, intentID, *result.Preorder.StripePaymentIntentID)
	return result.Preorder
}

func TestCreatePreorderFeeOnTop(t *testing.T) {
	gdb := setupPreordersTestDB(t)
	svc := newPreorderService(t, gdb, &fakeConnectClient{nextIntentID: "pi_pre_create"})

	preorder := createTestPreorder(t, svc, "pi_pre_create")
	assert.Equal(t, enums.PreorderStatusPendingPayment, preorder.Status)
	assert.Equal(t, int64(10000), preorder.SubtotalCents)
	assert.Equal(t, int64(600), preorder.PlatformFeeCents)
	assert.Equal(t, int64(10600), preorder.TotalCents)
	assert.Equal(t, int64(10000), preorder.VendorPayoutCents)
}

func TestCreatePreorderRequiresConnectedAccount(t *testing.T) {
	gdb := setupPreordersTestDB(t)
	svc := newPreorderService(t, gdb, &fakeConnectClient{})

	_, err := svc.Create(context.Background(), CreatePreorderInput{
		CustomerID: uuid.New(),
		VendorID:   uuid.New(),
		Items:      preorderItems(),
	})
	require.Error(t, err)
}

func TestHandlePaymentSucceededTransfersPayout(t *testing.T) {
	gdb := setupPreordersTestDB(t)
	client := &fakeConnectClient{nextIntentID: "pi_pre_paid"}
	svc := newPreorderService(t, gdb, client)

	preorder := createTestPreorder(t, svc, "pi_pre_paid")
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_pre_paid"))

	require.Len(t, client.transfers, 1)
	assert.Equal(t, int64(10000), *client.transfers[0].Amount)
	assert.Equal(t, "acct_vendor", *client.transfers[0].Destination)

	var got models.Preorder
	require.NoError(t, gdb.First(&got, "id = ?", preorder.ID).Error)
	assert.Equal(t, enums.PreorderStatusPaid, got.Status)
	require.NotNil(t, got.TransferID)

	var txn models.Transaction
	require.NoError(t, gdb.First(&txn, "external_payment_id = ?", "pi_pre_paid").Error)
	assert.Equal(t, enums.TransactionStatusCompleted, txn.Status)
	require.NotNil(t, txn.ExternalTransferID)

	var sale models.VendorSale
	require.NoError(t, gdb.First(&sale, "id = ?", models.VendorSaleID(preorder.VendorID, "pi_pre_paid")).Error)
	assert.True(t, sale.IsPreorder)
}

func TestHandlePaymentSucceededTransferFailureParksPreorder(t *testing.T) {
	gdb := setupPreordersTestDB(t)
	client := &fakeConnectClient{nextIntentID: "pi_pre_park", transferErr: errors.New("destination account inactive")}
	svc := newPreorderService(t, gdb, client)

	preorder := createTestPreorder(t, svc, "pi_pre_park")
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_pre_park"))

	var got models.Preorder
	require.NoError(t, gdb.First(&got, "id = ?", preorder.ID).Error)
	assert.Equal(t, enums.PreorderStatusTransferFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Contains(t, *got.FailureReason, "destination account inactive")

	// charge settled, so the ledger row still completes
	var txn models.Transaction
	require.NoError(t, gdb.First(&txn, "external_payment_id = ?", "pi_pre_park").Error)
	assert.Equal(t, enums.TransactionStatusCompleted, txn.Status)

	var eventCount int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPreorderTransferFailed).Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestHandlePaymentSucceededIsIdempotent(t *testing.T) {
	gdb := setupPreordersTestDB(t)
	client := &fakeConnectClient{nextIntentID: "pi_pre_idem"}
	svc := newPreorderService(t, gdb, client)

	createTestPreorder(t, svc, "pi_pre_idem")
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_pre_idem"))
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_pre_idem"))

	// exactly one transfer fires across both deliveries
	assert.Len(t, client.transfers, 1)

	var saleCount int64
	require.NoError(t, gdb.Model(&models.VendorSale{}).Count(&saleCount).Error)
	assert.Equal(t, int64(1), saleCount)
}

func TestHandlePaymentFailed(t *testing.T) {
	gdb := setupPreordersTestDB(t)
	svc := newPreorderService(t, gdb, &fakeConnectClient{nextIntentID: "pi_pre_fail"})

	preorder := createTestPreorder(t, svc, "pi_pre_fail")
	require.NoError(t, svc.HandlePaymentFailed(context.Background(), "pi_pre_fail", "insufficient_funds"))

	var got models.Preorder
	require.NoError(t, gdb.First(&got, "id = ?", preorder.ID).Error)
	assert.Equal(t, enums.PreorderStatusPaymentFailed, got.Status)

	var txn models.Transaction
	require.NoError(t, gdb.First(&txn, "external_payment_id = ?", "pi_pre_fail").Error)
	assert.Equal(t, enums.TransactionStatusFailed, txn.Status)
}

func TestRefundReversesTransfer(t *testing.T) {
	gdb := setupPreordersTestDB(t)
	client := &fakeConnectClient{nextIntentID: "pi_pre_refund"}
	svc := newPreorderService(t, gdb, client)

	preorder := createTestPreorder(t, svc, "pi_pre_refund")
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_pre_refund"))

	refunded, err := svc.Refund(context.Background(), preorder.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.PreorderStatusRefunded, refunded.Status)

	require.Len(t, client.refunds, 1)
	require.NotNil(t, client.refunds[0].ReverseTransfer)
	assert.True(t, *client.refunds[0].ReverseTransfer)
}

func TestRefundBeforePaymentRejected(t *testing.T) {
	gdb := setupPreordersTestDB(t)
	svc := newPreorderService(t, gdb, &fakeConnectClient{nextIntentID: "pi_pre_early"})

	preorder := createTestPreorder(t, svc, "pi_pre_early")
	_, err := svc.Refund(context.Background(), preorder.ID, nil)
	require.Error(t, err)
}
