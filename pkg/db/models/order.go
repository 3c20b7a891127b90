package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/pkg/enums"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

// Order is a direct product purchase. Created pending before the payment
// intent exists and moved to paid exactly once by webhook reconciliation.
type Order struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID            uuid.UUID         `gorm:"column:customer_id;type:uuid;not null"`
	VendorID              uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null"`
	MarketID              *uuid.UUID        `gorm:"column:market_id;type:uuid"`
	Status                enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null;default:'pending'"`
	Items                 types.LineItems   `gorm:"column:items;type:jsonb;not null"`
	SubtotalCents         int64             `gorm:"column:subtotal_cents;not null"`
	PlatformFeeCents      int64             `gorm:"column:platform_fee_cents;not null"`
	TotalCents            int64             `gorm:"column:total_cents;not null"`
	Currency              enums.Currency    `gorm:"column:currency;type:text;not null;default:'usd'"`
	PromoCode             *string           `gorm:"column:promo_code"`
	StripePaymentIntentID *string           `gorm:"column:stripe_payment_intent_id;uniqueIndex"`
	QRCode                *string           `gorm:"column:qr_code"`
	PaidAt                *time.Time        `gorm:"column:paid_at"`
	RefundedAt            *time.Time        `gorm:"column:refunded_at"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
