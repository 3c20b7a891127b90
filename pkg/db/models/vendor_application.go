package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/pkg/enums"
)

// VendorApplication is a vendor's request for a market booth. Approval is
// time-bounded: an approved application that misses its payment window is
// swept to expired by the cron worker.
type VendorApplication struct {
	ID                    uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID              uuid.UUID               `gorm:"column:vendor_id;type:uuid;not null"`
	OrganizerID           uuid.UUID               `gorm:"column:organizer_id;type:uuid;not null"`
	MarketID              uuid.UUID               `gorm:"column:market_id;type:uuid;not null"`
	Status                enums.ApplicationStatus `gorm:"column:status;type:application_status_enum;not null;default:'pending'"`
	ApplicationFeeCents   int64                   `gorm:"column:application_fee_cents;not null"`
	BoothFeeCents         int64                   `gorm:"column:booth_fee_cents;not null"`
	TotalFeeCents         int64                   `gorm:"column:total_fee_cents;not null"`
	PlatformFeeCents      int64                   `gorm:"column:platform_fee_cents;not null;default:0"`
	Currency              enums.Currency          `gorm:"column:currency;type:text;not null;default:'usd'"`
	StripePaymentIntentID *string                 `gorm:"column:stripe_payment_intent_id;uniqueIndex"`
	ApprovalExpiresAt     *time.Time              `gorm:"column:approval_expires_at"`
	ApprovedAt            *time.Time              `gorm:"column:approved_at"`
	DeniedAt              *time.Time              `gorm:"column:denied_at"`
	ConfirmedAt           *time.Time              `gorm:"column:confirmed_at"`
	ExpiredAt             *time.Time              `gorm:"column:expired_at"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
