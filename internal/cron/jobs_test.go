package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketloop/marketloop-backend/pkg/logger"
)

type fakeSweeper struct {
	swept  int
	err    error
	lastAt time.Time
}

func (f *fakeSweeper) ExpireApprovals(_ context.Context, now time.Time) (int, error) {
	f.lastAt = now
	return f.swept, f.err
}

type fakePuller struct {
	synced int
	err    error
	calls  int
}

func (f *fakePuller) SyncAll(context.Context) (int, error) {
	f.calls++
	return f.synced, f.err
}

func TestApplicationExpiryJobRunsSweep(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	sweeper := &fakeSweeper{swept: 3}
	job, err := NewApplicationExpiryJob(ApplicationExpiryJobParams{
		Logger:       logg,
		Applications: sweeper,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "application-expiry" {
		t.Fatalf("unexpected name: %s", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.lastAt.IsZero() {
		t.Fatalf("expected sweep timestamp to be set")
	}
	if sweeper.lastAt.Location() != time.UTC {
		t.Fatalf("expected UTC sweep timestamp")
	}
}

func TestApplicationExpiryJobPropagatesError(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	sweeper := &fakeSweeper{err: errors.New("db down")}
	job, err := NewApplicationExpiryJob(ApplicationExpiryJobParams{
		Logger:       logg,
		Applications: sweeper,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSquareSyncJobRunsPull(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	puller := &fakePuller{synced: 5}
	job, err := NewSquareSyncJob(SquareSyncJobParams{
		Logger: logg,
		Sync:   puller,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "square-sales-sync" {
		t.Fatalf("unexpected name: %s", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if puller.calls != 1 {
		t.Fatalf("expected one pull, got %d", puller.calls)
	}
}

func TestSquareSyncJobPropagatesPartialFailure(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	puller := &fakePuller{synced: 2, err: errors.New("vendor token revoked")}
	job, err := NewSquareSyncJob(SquareSyncJobParams{
		Logger: logg,
		Sync:   puller,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
