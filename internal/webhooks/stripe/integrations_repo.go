package stripe

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/marketloop-backend/pkg/db/models"
)

// IntegrationRepository resolves connected accounts and mirrors their
// capability flags.
type IntegrationRepository interface {
	WithTx(tx *gorm.DB) IntegrationRepository
	FindByStripeAccountID(ctx context.Context, accountID string) (*models.OrganizerIntegration, error)
	UpdateCapabilities(ctx context.Context, id uuid.UUID, chargesEnabled, payoutsEnabled, detailsSubmitted bool) error
}

type integrationRepository struct {
	db *gorm.DB
}

// NewIntegrationRepository returns an integration repository bound to the
// provided database.
func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) WithTx(tx *gorm.DB) IntegrationRepository {
	if tx == nil {
		return r
	}
	return &integrationRepository{db: tx}
}

func (r *integrationRepository) FindByStripeAccountID(ctx context.Context, accountID string) (*models.OrganizerIntegration, error) {
	var integration models.OrganizerIntegration
	if err := r.db.WithContext(ctx).
		First(&integration, "stripe_account_id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) UpdateCapabilities(ctx context.Context, id uuid.UUID, chargesEnabled, payoutsEnabled, detailsSubmitted bool) error {
	return r.db.WithContext(ctx).
		Model(&models.OrganizerIntegration{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"charges_enabled":   chargesEnabled,
			"payouts_enabled":   payoutsEnabled,
			"details_submitted": detailsSubmitted,
		}).Error
}
