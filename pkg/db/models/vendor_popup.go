package models

import (
	"time"

	"github.com/google/uuid"
)

// VendorPopup is a scheduled appearance of a vendor at a market. Square
// payments carry no market reference, so attribution matches the payment
// timestamp against the popup's date and time window.
type VendorPopup struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID   uuid.UUID  `gorm:"column:vendor_id;type:uuid;not null;index"`
	MarketID   *uuid.UUID `gorm:"column:market_id;type:uuid"`
	MarketName *string    `gorm:"column:market_name"`
	Date       time.Time  `gorm:"column:date;type:date;not null"`
	StartTime  string     `gorm:"column:start_time;not null"`
	EndTime    string     `gorm:"column:end_time;not null"`
	Location   *string    `gorm:"column:location"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
