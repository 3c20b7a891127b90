package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/marketloop/marketloop-backend/pkg/logger"
)

// approvalSweeper is the slice of the application service the sweep uses.
type approvalSweeper interface {
	ExpireApprovals(ctx context.Context, now time.Time) (int, error)
}

// ApplicationExpiryJobParams configures the approval expiry sweep.
type ApplicationExpiryJobParams struct {
	Logger       *logger.Logger
	Applications approvalSweeper
}

// NewApplicationExpiryJob constructs the cron job that expires approved
// applications whose payment window has lapsed.
func NewApplicationExpiryJob(params ApplicationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Applications == nil {
		return nil, fmt.Errorf("application service required")
	}
	return &applicationExpiryJob{
		logg:         params.Logger,
		applications: params.Applications,
		now:          time.Now,
	}, nil
}

type applicationExpiryJob struct {
	logg         *logger.Logger
	applications approvalSweeper
	now          func() time.Time
}

func (j *applicationExpiryJob) Name() string { return "application-expiry" }

func (j *applicationExpiryJob) Run(ctx context.Context) error {
	swept, err := j.applications.ExpireApprovals(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("expire approvals: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "count", swept)
	j.logg.Info(logCtx, "approval expiry sweep complete")
	return nil
}
