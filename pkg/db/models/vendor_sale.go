package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/pkg/enums"
	"github.com/marketloop/marketloop-backend/pkg/types"
)

// VendorSale is the unified analytics ledger row, one per external payment
// regardless of source. The primary key is {vendor_id}_{payment_id} so a
// re-run of the sync upserts into the same row instead of duplicating it.
type VendorSale struct {
	ID          string              `gorm:"column:id;primaryKey"`
	VendorID    uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index"`
	PaymentID   string              `gorm:"column:payment_id;not null"`
	Source      enums.PaymentSource `gorm:"column:source;type:payment_source_enum;not null"`
	AmountCents int64               `gorm:"column:amount_cents;not null"`
	Currency    enums.Currency      `gorm:"column:currency;type:text;not null;default:'usd'"`
	Status      string              `gorm:"column:status;not null"`
	OccurredAt  time.Time           `gorm:"column:occurred_at;not null"`
	MarketID    *uuid.UUID          `gorm:"column:market_id;type:uuid"`
	MarketName  *string             `gorm:"column:market_name"`
	LineItems   types.LineItems     `gorm:"column:line_items;type:jsonb;not null"`
	IsPreorder  bool                `gorm:"column:is_preorder;not null;default:false"`
	IsAssigned  bool                `gorm:"column:is_assigned;not null;default:false"`
	SyncedAt    time.Time           `gorm:"column:synced_at;autoUpdateTime"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// VendorSaleID builds the deterministic primary key.
func VendorSaleID(vendorID uuid.UUID, paymentID string) string {
	return vendorID.String() + "_" + paymentID
}
