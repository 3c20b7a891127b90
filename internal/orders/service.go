package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/internal/fees"
	"github.com/marketloop/marketloop-backend/internal/inventory"
	"github.com/marketloop/marketloop-backend/internal/sales"
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

// ServiceParams groups dependencies for the order service.
type ServiceParams struct {
	Repo              Repository
	Inventory         inventory.Service
	Transactions      transactions.Service
	Sales             sales.Service
	Outbox            *outbox.Service
	Fees              *fees.Calculator
	Stripe            StripePaymentClient
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service owns the direct product purchase lifecycle: checkout creates the
// pending order and payment intent, and webhook reconciliation moves it to
// a terminal status together with inventory, ledger, and outbox writes.
type Service struct {
	repo         Repository
	inventory    inventory.Service
	transactions transactions.Service
	sales        sales.Service
	outbox       *outbox.Service
	fees         *fees.Calculator
	stripe       StripePaymentClient
	txRunner     txRunner
	logg         *logger.Logger
}

// CreateOrderInput is the checkout request for a direct purchase.
type CreateOrderInput struct {
	CustomerID uuid.UUID
	VendorID   uuid.UUID
	MarketID   *uuid.UUID
	Items      types.LineItems
	Promo      *fees.Promo
	PromoCode  *string
	Currency   enums.Currency
}

// CreateOrderResult carries the pending order plus the client secret the
// shopper needs to finish payment. ClientSecret is empty for zero-total
// orders, which complete immediately.
type CreateOrderResult struct {
	Order        *models.Order
	ClientSecret string
}

// NewService builds an order service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
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
		inventory:    params.Inventory,
		transactions: params.Transactions,
		sales:        params.Sales,
		outbox:       params.Outbox,
		fees:         params.Fees,
		stripe:       params.Stripe,
		txRunner:     params.TransactionRunner,
		logg:         params.Logger,
	}, nil
}

// Create prices the cart, creates the payment intent, and persists the
// pending order and its ledger row in one transaction. A promo that drives
// the total to zero skips the payment intent entirely and completes the
// order on the spot.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	subtotal := input.Items.SubtotalCents()
	if input.Promo != nil {
		discounted, err := fees.ApplyPromo(subtotal, *input.Promo)
		if err != nil {
			return nil, err
		}
		subtotal = discounted
	}
	breakdown, err := s.fees.Purchase(subtotal)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:               uuid.New(),
		CustomerID:       input.CustomerID,
		VendorID:         input.VendorID,
		MarketID:         input.MarketID,
		Status:           enums.OrderStatusPending,
		Items:            input.Items,
		SubtotalCents:    breakdown.SubtotalCents,
		PlatformFeeCents: breakdown.PlatformFeeCents,
		TotalCents:       breakdown.TotalCents,
		Currency:         defaultCurrency(input.Currency),
		PromoCode:        input.PromoCode,
	}

	if breakdown.TotalCents == 0 {
		return s.createZeroTotalOrder(ctx, order, breakdown)
	}

	intent, err := s.stripe.CreatePaymentIntent(ctx, &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(breakdown.TotalCents),
		Currency: stripe.String(order.Currency.String()),
		Metadata: map[string]string{
			types.MetadataKeyOrderType:   enums.OrderTypeProductPurchase.String(),
			types.MetadataKeyReferenceID: order.ID.String(),
			types.MetadataKeyCustomerID:  order.CustomerID.String(),
			types.MetadataKeyVendorID:    order.VendorID.String(),
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	order.StripePaymentIntentID = &intent.ID

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		_, err := s.transactions.WithTx(tx).CreatePending(ctx, transactions.CreatePendingInput{
			Type:              enums.OrderTypeProductPurchase,
			Source:            enums.PaymentSourceStripe,
			ReferenceID:       order.ID,
			CustomerID:        &order.CustomerID,
			VendorID:          &order.VendorID,
			Breakdown:         breakdown,
			Currency:          order.Currency,
			ExternalPaymentID: intent.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &CreateOrderResult{Order: order, ClientSecret: intent.ClientSecret}, nil
}

// createZeroTotalOrder completes a fully discounted checkout without any
// provider round trip.
func (s *Service) createZeroTotalOrder(ctx context.Context, order *models.Order, breakdown fees.Breakdown) (*CreateOrderResult, error) {
	now := time.Now().UTC()
	order.Status = enums.OrderStatusPaid
	order.PaidAt = &now
	if code, err := qr.EncodePNG("order:" + order.ID.String()); err == nil {
		order.QRCode = &code
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		txSvc := s.transactions.WithTx(tx)
		pending, err := txSvc.CreatePending(ctx, transactions.CreatePendingInput{
			Type:        enums.OrderTypeProductPurchase,
			Source:      enums.PaymentSourceStripe,
			ReferenceID: order.ID,
			CustomerID:  &order.CustomerID,
			VendorID:    &order.VendorID,
			Breakdown:   breakdown,
			Currency:    order.Currency,
		})
		if err != nil {
			return err
		}
		if _, err := txSvc.Complete(ctx, transactions.CompleteInput{
			Type:        enums.OrderTypeProductPurchase,
			ReferenceID: pending.ReferenceID,
		}); err != nil {
			return err
		}
		if err := s.inventory.WithTx(tx).DeductProducts(ctx, deductItems(order.Items)); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				CustomerID:       order.CustomerID,
				VendorID:         order.VendorID,
				AmountCents:      0,
				PlatformFeeCents: 0,
				PaidAt:           now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &CreateOrderResult{Order: order}, nil
}

// HandlePaymentSucceeded reconciles a payment_intent.succeeded delivery.
// A missing order is tolerated: the event may belong to another system or
// arrive before the order write lands, and the provider will retry.
func (s *Service) HandlePaymentSucceeded(ctx context.Context, paymentIntentID string) error {
	if paymentIntentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	order, err := s.repo.FindByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		s.warnf(ctx, "order not found for payment intent", paymentIntentID)
		return nil
	}
	if order.Status != enums.OrderStatusPending {
		return nil
	}

	now := time.Now().UTC()
	qrCode, qrErr := qr.EncodePNG("order:" + order.ID.String())

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":  enums.OrderStatusPaid,
			"paid_at": now,
		}
		if qrErr == nil {
			updates["qr_code"] = qrCode
		}
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, order.ID, enums.OrderStatusPending, updates)
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		if err := s.inventory.WithTx(tx).DeductProducts(ctx, deductItems(order.Items)); err != nil {
			return err
		}
		if _, err := s.transactions.WithTx(tx).Complete(ctx, transactions.CompleteInput{
			Type:              enums.OrderTypeProductPurchase,
			ReferenceID:       order.ID,
			ExternalPaymentID: paymentIntentID,
		}); err != nil {
			return err
		}
		if _, err := s.sales.WithTx(tx).RecordSale(ctx, sales.RecordSaleInput{
			VendorID:    order.VendorID,
			PaymentID:   paymentIntentID,
			Source:      enums.PaymentSourceStripe,
			AmountCents: order.TotalCents,
			Currency:    order.Currency,
			Status:      "completed",
			OccurredAt:  now,
			MarketID:    order.MarketID,
			LineItems:   order.Items,
		}); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				CustomerID:       order.CustomerID,
				VendorID:         order.VendorID,
				AmountCents:      order.TotalCents,
				PlatformFeeCents: order.PlatformFeeCents,
				PaymentIntentID:  paymentIntentID,
				PaidAt:           now,
			},
		})
	})
}

// HandlePaymentFailed records a failed attempt. Pending is the only state
// it touches; a failure delivered after success is discarded by the guard.
func (s *Service) HandlePaymentFailed(ctx context.Context, paymentIntentID, reason string) error {
	order, err := s.repo.FindByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		s.warnf(ctx, "order not found for failed payment", paymentIntentID)
		return nil
	}
	if order.Status != enums.OrderStatusPending {
		return nil
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, order.ID, enums.OrderStatusPending, map[string]interface{}{
			"status": enums.OrderStatusFailed,
		})
		if err != nil || rows == 0 {
			return err
		}
		if err := s.transactions.WithTx(tx).Fail(ctx, enums.OrderTypeProductPurchase, order.ID); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaymentFailedEvent{
				OrderID:         order.ID,
				CustomerID:      order.CustomerID,
				PaymentIntentID: paymentIntentID,
				Reason:          reason,
			},
		})
	})
}

// Refund reverses a paid order: provider refund, restock, ledger flip, and
// outbox emission. Only paid orders are refundable.
func (s *Service) Refund(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status == enums.OrderStatusRefunded {
		return order, nil
	}
	if order.Status != enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be refunded")
	}

	if order.StripePaymentIntentID != nil {
		if _, err := s.stripe.CreateRefund(ctx, &stripe.RefundParams{
			PaymentIntent: order.StripePaymentIntentID,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
		}
	}

	now := time.Now().UTC()
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.WithTx(tx).UpdateIfStatus(ctx, order.ID, enums.OrderStatusPaid, map[string]interface{}{
			"status":      enums.OrderStatusRefunded,
			"refunded_at": now,
		})
		if err != nil || rows == 0 {
			return err
		}
		if err := s.inventory.WithTx(tx).RestockProducts(ctx, deductItems(order.Items)); err != nil {
			return err
		}
		if order.StripePaymentIntentID != nil {
			if _, err := s.transactions.WithTx(tx).Refund(ctx, *order.StripePaymentIntentID); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.OrderRefundedEvent{
				OrderID:         order.ID,
				CustomerID:      order.CustomerID,
				VendorID:        order.VendorID,
				AmountCents:     order.TotalCents,
				PaymentIntentID: derefString(order.StripePaymentIntentID),
				RefundedAt:      now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	order.Status = enums.OrderStatusRefunded
	order.RefundedAt = &now
	return order, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *Service) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.Order, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	return s.repo.ListByCustomer(ctx, customerID, limit)
}

func (s *Service) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.Order, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	return s.repo.ListByVendor(ctx, vendorID, limit)
}

func deductItems(items types.LineItems) []inventory.Item {
	out := make([]inventory.Item, 0, len(items))
	for _, item := range items {
		if item.ProductID == nil || item.Quantity <= 0 {
			continue
		}
		out = append(out, inventory.Item{ID: *item.ProductID, Quantity: item.Quantity})
	}
	return out
}

func defaultCurrency(c enums.Currency) enums.Currency {
	if c == "" {
		return enums.CurrencyUSD
	}
	return c
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
