package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/pkg/enums"
)

// Transaction is the denormalized ledger mirror of a payment intent.
// Created pending alongside the intent and completed on success; never
// mutated after completion except for audit fields.
type Transaction struct {
	ID                 uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type               enums.OrderType         `gorm:"column:type;type:order_type_enum;not null"`
	Source             enums.PaymentSource     `gorm:"column:source;type:payment_source_enum;not null;default:'stripe'"`
	Status             enums.TransactionStatus `gorm:"column:status;type:transaction_status_enum;not null;default:'pending'"`
	ReferenceID        uuid.UUID               `gorm:"column:reference_id;type:uuid;not null;index"`
	CustomerID         *uuid.UUID              `gorm:"column:customer_id;type:uuid"`
	VendorID           *uuid.UUID              `gorm:"column:vendor_id;type:uuid"`
	AmountCents        int64                   `gorm:"column:amount_cents;not null"`
	PlatformFeeCents   int64                   `gorm:"column:platform_fee_cents;not null"`
	PayoutCents        int64                   `gorm:"column:payout_cents;not null"`
	Currency           enums.Currency          `gorm:"column:currency;type:text;not null;default:'usd'"`
	ExternalPaymentID  *string                 `gorm:"column:external_payment_id;uniqueIndex"`
	ExternalTransferID *string                 `gorm:"column:external_transfer_id"`
	CompletedAt        *time.Time              `gorm:"column:completed_at"`
	CreatedAt          time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
