package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/pkg/enums"
)

// TicketPurchase is a checkout against an event ticket type. The used_at
// stamp is a one-way entry validation independent of payment status.
type TicketPurchase struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID          uuid.UUID                  `gorm:"column:event_id;type:uuid;not null"`
	TicketID         uuid.UUID                  `gorm:"column:ticket_id;type:uuid;not null"`
	CustomerID       uuid.UUID                  `gorm:"column:customer_id;type:uuid;not null"`
	OrganizerID      uuid.UUID                  `gorm:"column:organizer_id;type:uuid;not null"`
	Quantity         int64                      `gorm:"column:quantity;not null"`
	UnitPriceCents   int64                      `gorm:"column:unit_price_cents;not null"`
	SubtotalCents    int64                      `gorm:"column:subtotal_cents;not null"`
	PlatformFeeCents int64                      `gorm:"column:platform_fee_cents;not null"`
	TotalCents       int64                      `gorm:"column:total_cents;not null"`
	Currency         enums.Currency             `gorm:"column:currency;type:text;not null;default:'usd'"`
	Status           enums.TicketPurchaseStatus `gorm:"column:status;type:ticket_purchase_status_enum;not null;default:'pending'"`
	StripeSessionID  *string                    `gorm:"column:stripe_session_id;uniqueIndex"`
	QRCode           *string                    `gorm:"column:qr_code"`
	UsedAt           *time.Time                 `gorm:"column:used_at"`
	CompletedAt      *time.Time                 `gorm:"column:completed_at"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
