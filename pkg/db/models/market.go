package models

import (
	"time"

	"github.com/google/uuid"
)

// Market is an organizer-run market with a finite number of vendor booths.
type Market struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizerID          uuid.UUID `gorm:"column:organizer_id;type:uuid;not null"`
	Name                 string    `gorm:"column:name;not null"`
	City                 *string   `gorm:"column:city"`
	VendorSpotsAvailable int64     `gorm:"column:vendor_spots_available;not null;default:0"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
