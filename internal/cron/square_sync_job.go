package cron

import (
	"context"
	"fmt"

	"github.com/marketloop/marketloop-backend/pkg/logger"
)

// paymentPuller is the slice of the Square sync service the job uses.
type paymentPuller interface {
	SyncAll(ctx context.Context) (int, error)
}

// SquareSyncJobParams configures the scheduled Square pull.
type SquareSyncJobParams struct {
	Logger *logger.Logger
	Sync   paymentPuller
}

// NewSquareSyncJob constructs the cron job that pulls completed Square
// payments into the sales ledger for every active integration.
func NewSquareSyncJob(params SquareSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sync == nil {
		return nil, fmt.Errorf("square sync service required")
	}
	return &squareSyncJob{
		logg: params.Logger,
		sync: params.Sync,
	}, nil
}

type squareSyncJob struct {
	logg *logger.Logger
	sync paymentPuller
}

func (j *squareSyncJob) Name() string { return "square-sales-sync" }

func (j *squareSyncJob) Run(ctx context.Context) error {
	synced, err := j.sync.SyncAll(ctx)
	logCtx := j.logg.WithField(ctx, "count", synced)
	if err != nil {
		// partial progress still counts; the error carries every vendor that failed
		j.logg.Error(logCtx, "square sync finished with failures", err)
		return fmt.Errorf("square sync: %w", err)
	}
	j.logg.Info(logCtx, "square sync complete")
	return nil
}
