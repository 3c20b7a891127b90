package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/marketloop-backend/pkg/enums"
)

// OrganizerIntegration links an organizer to a Stripe Connect account.
// Capability flags mirror the latest account.updated webhook.
type OrganizerIntegration struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizerID      uuid.UUID           `gorm:"column:organizer_id;type:uuid;not null;uniqueIndex:idx_organizer_provider"`
	Provider         enums.PaymentSource `gorm:"column:provider;type:payment_source_enum;not null;uniqueIndex:idx_organizer_provider"`
	StripeAccountID  *string             `gorm:"column:stripe_account_id;uniqueIndex"`
	ChargesEnabled   bool                `gorm:"column:charges_enabled;not null;default:false"`
	PayoutsEnabled   bool                `gorm:"column:payouts_enabled;not null;default:false"`
	DetailsSubmitted bool                `gorm:"column:details_submitted;not null;default:false"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
