package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/pkg/enums"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

// Preorder is a Connect-routed order. The platform charges the shopper,
// then transfers the vendor payout to the connected account; a charge that
// lands without its transfer is recorded as transfer-failed, not paid.
type Preorder struct {
	ID                    uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID            uuid.UUID            `gorm:"column:customer_id;type:uuid;not null"`
	VendorID              uuid.UUID            `gorm:"column:vendor_id;type:uuid;not null"`
	MarketID              *uuid.UUID           `gorm:"column:market_id;type:uuid"`
	Status                enums.PreorderStatus `gorm:"column:status;type:preorder_status_enum;not null;default:'pending_payment'"`
	Items                 types.LineItems      `gorm:"column:items;type:jsonb;not null"`
	SubtotalCents         int64                `gorm:"column:subtotal_cents;not null"`
	PlatformFeeCents      int64                `gorm:"column:platform_fee_cents;not null"`
	TotalCents            int64                `gorm:"column:total_cents;not null"`
	VendorPayoutCents     int64                `gorm:"column:vendor_payout_cents;not null"`
	Currency              enums.Currency       `gorm:"column:currency;type:text;not null;default:'usd'"`
	StripeAccountID       *string              `gorm:"column:stripe_account_id"`
	StripePaymentIntentID *string              `gorm:"column:stripe_payment_intent_id;uniqueIndex"`
	TransferID            *string              `gorm:"column:transfer_id"`
	FailureReason         *string              `gorm:"column:failure_reason"`
	PaidAt                *time.Time           `gorm:"column:paid_at"`
	RefundedAt            *time.Time           `gorm:"column:refunded_at"`
	CreatedAt             time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
