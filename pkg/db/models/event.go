package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is an organizer-run ticketed event.
type Event struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizerID uuid.UUID `gorm:"column:organizer_id;type:uuid;not null"`
	Name        string    `gorm:"column:name;not null"`
	StartsAt    time.Time `gorm:"column:starts_at;not null"`
	EndsAt      time.Time `gorm:"column:ends_at;not null"`
	Venue       *string   `gorm:"column:venue"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
