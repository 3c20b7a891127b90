package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/pkg/enums"
)

// VendorIntegration links a vendor to an external POS account.
type VendorIntegration struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID         uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:idx_vendor_provider"`
	Provider         enums.PaymentSource `gorm:"column:provider;type:payment_source_enum;not null;uniqueIndex:idx_vendor_provider"`
	SquareMerchantID *string             `gorm:"column:square_merchant_id"`
	SquareLocationID *string             `gorm:"column:square_location_id"`
	AccessToken      *string             `gorm:"column:access_token"`
	SyncCursor       *time.Time          `gorm:"column:sync_cursor"`
	LastSyncedAt     *time.Time          `gorm:"column:last_synced_at"`
	Active           bool                `gorm:"column:active;not null;default:true"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
