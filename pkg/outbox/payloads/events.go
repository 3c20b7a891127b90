package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/pkg/enums"
)

// OrderPaidEvent is emitted when a direct order's payment intent succeeds.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	CustomerID       uuid.UUID `json:"customer_id"`
	VendorID         uuid.UUID `json:"vendor_id"`
	AmountCents      int64     `json:"amount_cents"`
	PlatformFeeCents int64     `json:"platform_fee_cents"`
	PaymentIntentID  string    `json:"payment_intent_id"`
	PaidAt           time.Time `json:"paid_at"`
}

// OrderRefundedEvent is emitted when a paid order is refunded in full.
type OrderRefundedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	VendorID        uuid.UUID `json:"vendor_id"`
	AmountCents     int64     `json:"amount_cents"`
	PaymentIntentID string    `json:"payment_intent_id"`
	RefundedAt      time.Time `json:"refunded_at"`
}

// OrderPaymentFailedEvent surfaces a failed payment attempt.
type OrderPaymentFailedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Reason          string    `json:"reason,omitempty"`
}

// PreorderPaidEvent is emitted once the charge and the vendor transfer have
// both landed.
type PreorderPaidEvent struct {
	PreorderID        uuid.UUID `json:"preorder_id"`
	CustomerID        uuid.UUID `json:"customer_id"`
	VendorID          uuid.UUID `json:"vendor_id"`
	AmountCents       int64     `json:"amount_cents"`
	VendorPayoutCents int64     `json:"vendor_payout_cents"`
	PaymentIntentID   string    `json:"payment_intent_id"`
	TransferID        string    `json:"transfer_id"`
	PaidAt            time.Time `json:"paid_at"`
}

// PreorderRefundedEvent is emitted when a paid preorder is refunded.
type PreorderRefundedEvent struct {
	PreorderID      uuid.UUID `json:"preorder_id"`
	CustomerID      uuid.UUID `json:"customer_id"`
	VendorID        uuid.UUID `json:"vendor_id"`
	AmountCents     int64     `json:"amount_cents"`
	PaymentIntentID string    `json:"payment_intent_id"`
	RefundedAt      time.Time `json:"refunded_at"`
}

// PreorderTransferFailedEvent flags a charge that succeeded without its
// vendor transfer, which needs operator attention.
type PreorderTransferFailedEvent struct {
	PreorderID      uuid.UUID `json:"preorder_id"`
	VendorID        uuid.UUID `json:"vendor_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Reason          string    `json:"reason,omitempty"`
}

// TicketPurchaseCompletedEvent is emitted when a checkout session completes.
type TicketPurchaseCompletedEvent struct {
	PurchaseID  uuid.UUID `json:"purchase_id"`
	EventID     uuid.UUID `json:"event_id"`
	TicketID    uuid.UUID `json:"ticket_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	OrganizerID uuid.UUID `json:"organizer_id"`
	Quantity    int64     `json:"quantity"`
	TotalCents  int64     `json:"total_cents"`
	SessionID   string    `json:"session_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// TicketValidatedEvent is emitted when a ticket is stamped at the door.
type TicketValidatedEvent struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	EventID    uuid.UUID `json:"event_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	UsedAt     time.Time `json:"used_at"`
}

// ApplicationDecisionEvent is emitted when an organizer approves or denies a
// vendor application.
type ApplicationDecisionEvent struct {
	ApplicationID     uuid.UUID               `json:"application_id"`
	VendorID          uuid.UUID               `json:"vendor_id"`
	OrganizerID       uuid.UUID               `json:"organizer_id"`
	MarketID          uuid.UUID               `json:"market_id"`
	Status            enums.ApplicationStatus `json:"status"`
	ApprovalExpiresAt *time.Time              `json:"approval_expires_at,omitempty"`
}

// ApplicationConfirmedEvent is emitted when the booth fee payment lands.
type ApplicationConfirmedEvent struct {
	ApplicationID   uuid.UUID `json:"application_id"`
	VendorID        uuid.UUID `json:"vendor_id"`
	MarketID        uuid.UUID `json:"market_id"`
	TotalFeeCents   int64     `json:"total_fee_cents"`
	PaymentIntentID string    `json:"payment_intent_id"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

// ApplicationExpiredEvent is emitted by the sweep when an approval lapses.
type ApplicationExpiredEvent struct {
	ApplicationID uuid.UUID `json:"application_id"`
	VendorID      uuid.UUID `json:"vendor_id"`
	MarketID      uuid.UUID `json:"market_id"`
	ExpiredAt     time.Time `json:"expired_at"`
}

// VendorSaleRecordedEvent mirrors a new row landing in the unified sales
// ledger, regardless of payment source.
type VendorSaleRecordedEvent struct {
	SaleID      string              `json:"sale_id"`
	VendorID    uuid.UUID           `json:"vendor_id"`
	PaymentID   string              `json:"payment_id"`
	Source      enums.PaymentSource `json:"source"`
	AmountCents int64               `json:"amount_cents"`
	MarketID    *uuid.UUID          `json:"market_id,omitempty"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

// PayoutAccountUpdatedEvent mirrors a Stripe Connect account.updated webhook.
type PayoutAccountUpdatedEvent struct {
	OrganizerID      uuid.UUID `json:"organizer_id"`
	StripeAccountID  string    `json:"stripe_account_id"`
	ChargesEnabled   bool      `json:"charges_enabled"`
	PayoutsEnabled   bool      `json:"payouts_enabled"`
	DetailsSubmitted bool      `json:"details_submitted"`
}

// NotificationRequestedEvent tells downstream systems to alert a user.
type NotificationRequestedEvent struct {
	RecipientID uuid.UUID              `json:"recipient_id"`
	Type        enums.NotificationType `json:"type"`
	ReferenceID uuid.UUID              `json:"reference_id"`
	Title       string                 `json:"title,omitempty"`
	Body        string                 `json:"body,omitempty"`
}
