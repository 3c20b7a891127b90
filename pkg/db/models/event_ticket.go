package models

import (
	"time"

	"github.com/google/uuid"
)

// EventTicket is a ticket type with a fixed capacity. sold_quantity only
// moves through conditional updates so concurrent checkouts cannot push it
// past total_quantity.
type EventTicket struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID       uuid.UUID `gorm:"column:event_id;type:uuid;not null;index"`
	Name          string    `gorm:"column:name;not null"`
	PriceCents    int64     `gorm:"column:price_cents;not null"`
	TotalQuantity int64     `gorm:"column:total_quantity;not null"`
	SoldQuantity  int64     `gorm:"column:sold_quantity;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
