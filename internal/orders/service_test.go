package orders

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
	"github.com/marketloop/marketloop-backend/internal/inventory"
	"github.com/marketloop/marketloop-backend/internal/sales"
	"github.com/marketloop/marketloop-backend/internal/transactions"
	"github.com/marketloop/marketloop-backend/pkg/config"
	"github.com/marketloop/marketloop-backend/pkg/db/models"
	"github.com/marketloop/marketloop-backend/pkg/enums"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

type fakeStripeClient struct {
	intents      []*stripe.PaymentIntentParams
	refunds      []*stripe.RefundParams
	intentErr    error
	refundErr    error
	nextIntentID string
	nextSecret   string
}

func (f *fakeStripeClient) CreatePaymentIntent(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
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

func (f *fakeStripeClient) CreateRefund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	f.refunds = append(f.refunds, params)
	return &stripe.Refund{ID: "re_" + uuid.NewString()[:8]}, nil
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE orders (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			vendor_id TEXT NOT NULL,
			market_id TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			items TEXT NOT NULL,
			subtotal_cents INTEGER NOT NULL,
			platform_fee_cents INTEGER NOT NULL,
			total_cents INTEGER NOT NULL,
			currency TEXT NOT NULL DEFAULT 'usd',
			promo_code TEXT,
			stripe_payment_intent_id TEXT UNIQUE,
			qr_code TEXT,
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
		`CREATE TABLE products (
			id TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			name TEXT NOT NULL,
			price_cents INTEGER NOT NULL,
			quantity_available INTEGER,
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
		for _, table := range []string{"orders", "transactions", "products", "vendor_sales", "outbox_events"} {
			gdb.Exec("DROP TABLE IF EXISTS " + table)
		}
	})

	return gdb
}

func newOrderService(t *testing.T, gdb *gorm.DB, stripeClient *fakeStripeClient) *Service {
	t.Helper()

	calc, err := fees.NewCalculator(config.FeesConfig{PlatformRateBps: 600, ApplicationRateBps: 600})
	require.NoError(t, err)
	invSvc, err := inventory.NewService(inventory.NewRepository(gdb), nil)
	require.NoError(t, err)
	txnSvc, err := transactions.NewService(transactions.NewRepository(gdb))
	require.NoError(t, err)
	salesSvc, err := sales.NewService(sales.NewRepository(gdb))
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(gdb),
		Inventory:         invSvc,
		Transactions:      txnSvc,
		Sales:             salesSvc,
		Outbox:            outbox.NewService(outbox.NewRepository(gdb), nil),
		Fees:              calc,
		Stripe:            stripeClient,
		TransactionRunner: testTxRunner{db: gdb},
	})
	require.NoError(t, err)
	return svc
}

func seedOrderProduct(t *testing.T, gdb *gorm.DB, quantity int64) models.Product {
	t.Helper()
	product := models.Product{
		ID:                uuid.New(),
		VendorID:          uuid.New(),
		Name:              "enamel pin",
		PriceCents:        1200,
		QuantityAvailable: &quantity,
	}
	require.NoError(t, gdb.Create(&product).Error)
	return product
}

func orderItems(product models.Product, quantity int64) types.LineItems {
	return types.LineItems{{
		ProductID:      &product.ID,
		Name:           product.Name,
		Quantity:       quantity,
		UnitPriceCents: product.PriceCents,
		TotalCents:     product.PriceCents * quantity,
	}}
}

func TestCreateOrderPendingWithIntent(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	stripeClient := &fakeStripeClient{nextIntentID: "pi_create", nextSecret: "secret_abc"}
	svc := newOrderService(t, gdb, stripeClient)

	product := seedOrderProduct(t, gdb, 10)
	result, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID: uuid.New(),
		VendorID:   product.VendorID,
		Items:      orderItems(product, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, result.Order.Status)
	assert.Equal(t, int64(2400), result.Order.SubtotalCents)
	assert.Equal(t, int64(144), result.Order.PlatformFeeCents)
	assert.Equal(t, int64(2544), result.Order.TotalCents)
	assert.Equal(t, "secret_abc", result.ClientSecret)

	require.Len(t, stripeClient.intents, 1)
	assert.Equal(t, enums.OrderTypeProductPurchase.String(), stripeClient.intents[0].Metadata[types.MetadataKeyOrderType])

	// ledger row is created pending alongside the intent
	var txn models.Transaction
	require.NoError(t, gdb.First(&txn, "external_payment_id = ?", "pi_create").Error)
	assert.Equal(t, enums.TransactionStatusPending, txn.Status)
	assert.Equal(t, result.Order.ID, txn.ReferenceID)

	// inventory is untouched until payment lands
	var got models.Product
	require.NoError(t, gdb.First(&got, "id = ?", product.ID).Error)
	assert.Equal(t, int64(10), *got.QuantityAvailable)
}

func TestCreateOrderFullPromoSkipsIntent(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	stripeClient := &fakeStripeClient{}
	svc := newOrderService(t, gdb, stripeClient)

	product := seedOrderProduct(t, gdb, 10)
	code := "LAUNCH100"
	result, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID: uuid.New(),
		VendorID:   product.VendorID,
		Items:      orderItems(product, 1),
		Promo:      &fees.Promo{Kind: fees.PromoPercent, Value: 100},
		PromoCode:  &code,
	})
	require.NoError(t, err)
	assert.Empty(t, stripeClient.intents)
	assert.Empty(t, result.ClientSecret)
	assert.Equal(t, enums.OrderStatusPaid, result.Order.Status)
	assert.Equal(t, int64(0), result.Order.TotalCents)
	require.NotNil(t, result.Order.PaidAt)

	// the free order still deducts stock and completes its ledger row
	var got models.Product
	require.NoError(t, gdb.First(&got, "id = ?", product.ID).Error)
	assert.Equal(t, int64(9), *got.QuantityAvailable)

	var txn models.Transaction
	require.NoError(t, gdb.First(&txn, "reference_id = ?", result.Order.ID).Error)
	assert.Equal(t, enums.TransactionStatusCompleted, txn.Status)
}

func TestHandlePaymentSucceededReconciles(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	stripeClient := &fakeStripeClient{nextIntentID: "pi_paid"}
	svc := newOrderService(t, gdb, stripeClient)

	product := seedOrderProduct(t, gdb, 5)
	result, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID: uuid.New(),
		VendorID:   product.VendorID,
		Items:      orderItems(product, 3),
	})
	require.NoError(t, err)

	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_paid"))

	var order models.Order
	require.NoError(t, gdb.First(&order, "id = ?", result.Order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)
	require.NotNil(t, order.QRCode)

	var got models.Product
	require.NoError(t, gdb.First(&got, "id = ?", product.ID).Error)
	assert.Equal(t, int64(2), *got.QuantityAvailable)

	var sale models.VendorSale
	require.NoError(t, gdb.First(&sale, "id = ?", models.VendorSaleID(product.VendorID, "pi_paid")).Error)
	assert.Equal(t, order.TotalCents, sale.AmountCents)

	var eventCount int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderPaid).Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestHandlePaymentSucceededTwiceIsIdempotent(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	stripeClient := &fakeStripeClient{nextIntentID: "pi_twice"}
	svc := newOrderService(t, gdb, stripeClient)

	product := seedOrderProduct(t, gdb, 5)
	_, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID: uuid.New(),
		VendorID:   product.VendorID,
		Items:      orderItems(product, 2),
	})
	require.NoError(t, err)

	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_twice"))
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_twice"))

	// one decrement, one sale row, one outbox event
	var got models.Product
	require.NoError(t, gdb.First(&got, "id = ?", product.ID).Error)
	assert.Equal(t, int64(3), *got.QuantityAvailable)

	var saleCount int64
	require.NoError(t, gdb.Model(&models.VendorSale{}).Count(&saleCount).Error)
	assert.Equal(t, int64(1), saleCount)

	var eventCount int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderPaid).Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestHandlePaymentSucceededUnknownIntentIsInert(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	svc := newOrderService(t, gdb, &fakeStripeClient{})

	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_unknown"))
}

func TestHandlePaymentFailedAfterSuccessIsDiscarded(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	stripeClient := &fakeStripeClient{nextIntentID: "pi_order"}
	svc := newOrderService(t, gdb, stripeClient)

	product := seedOrderProduct(t, gdb, 5)
	result, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID: uuid.New(),
		VendorID:   product.VendorID,
		Items:      orderItems(product, 1),
	})
	require.NoError(t, err)

	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_order"))
	require.NoError(t, svc.HandlePaymentFailed(context.Background(), "pi_order", "card_declined"))

	var order models.Order
	require.NoError(t, gdb.First(&order, "id = ?", result.Order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
}

func TestRefundRestoresInventory(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	stripeClient := &fakeStripeClient{nextIntentID: "pi_refund_order"}
	svc := newOrderService(t, gdb, stripeClient)

	product := seedOrderProduct(t, gdb, 5)
	result, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID: uuid.New(),
		VendorID:   product.VendorID,
		Items:      orderItems(product, 2),
	})
	require.NoError(t, err)
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), "pi_refund_order"))

	refunded, err := svc.Refund(context.Background(), result.Order.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRefunded, refunded.Status)
	require.Len(t, stripeClient.refunds, 1)

	// round trip leaves stock where it started
	var got models.Product
	require.NoError(t, gdb.First(&got, "id = ?", product.ID).Error)
	assert.Equal(t, int64(5), *got.QuantityAvailable)

	var txn models.Transaction
	require.NoError(t, gdb.First(&txn, "external_payment_id = ?", "pi_refund_order").Error)
	assert.Equal(t, enums.TransactionStatusRefunded, txn.Status)
}

func TestRefundPendingOrderRejected(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	stripeClient := &fakeStripeClient{nextIntentID: "pi_pending_refund"}
	svc := newOrderService(t, gdb, stripeClient)

	product := seedOrderProduct(t, gdb, 5)
	result, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID: uuid.New(),
		VendorID:   product.VendorID,
		Items:      orderItems(product, 1),
	})
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), result.Order.ID, nil)
	require.Error(t, err)
}

func TestCreateOrderStripeFailureLeavesNoRows(t *testing.T) {
	gdb := setupOrdersTestDB(t)
	stripeClient := &fakeStripeClient{intentErr: errors.New("stripe is down")}
	svc := newOrderService(t, gdb, stripeClient)

	product := seedOrderProduct(t, gdb, 5)
	_, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID: uuid.New(),
		VendorID:   product.VendorID,
		Items:      orderItems(product, 1),
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, gdb.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
