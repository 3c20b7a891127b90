package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a vendor listing. A null quantity_available means untracked
// inventory and must never be decremented.
type Product struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID          uuid.UUID `gorm:"column:vendor_id;type:uuid;not null;index"`
	Name              string    `gorm:"column:name;not null"`
	PriceCents        int64     `gorm:"column:price_cents;not null"`
	QuantityAvailable *int64    `gorm:"column:quantity_available"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
