package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/marketloop/marketloop-backend/internal/applications"
	"github.com/marketloop/marketloop-backend/internal/cron"
	"github.com/marketloop/marketloop-backend/internal/fees"
	"github.com/marketloop/marketloop-backend/internal/sales"
	"github.com/marketloop/marketloop-backend/internal/squaresync"
	"github.com/marketloop/marketloop-backend/internal/transactions"
	"github.com/marketloop/marketloop-backend/pkg/config"
	"github.com/marketloop/marketloop-backend/pkg/db"
	"github.com/marketloop/marketloop-backend/pkg/logger"
	"github.com/marketloop/marketloop-backend/pkg/metrics"
	"github.com/marketloop/marketloop-backend/pkg/migrate"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/redis"
	"github.com/marketloop/marketloop-backend/pkg/square"
	"github.com/marketloop/marketloop-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap square", err)
		os.Exit(1)
	}

	gdb := dbClient.DB()
	feeCalc, err := fees.NewCalculator(cfg.Fees)
	if err != nil {
		logg.Error(context.Background(), "failed to build fee calculator", err)
		os.Exit(1)
	}
	txnSvc, err := transactions.NewService(transactions.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to build transactions service", err)
		os.Exit(1)
	}
	salesSvc, err := sales.NewService(sales.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to build sales service", err)
		os.Exit(1)
	}
	applicationsSvc, err := applications.NewService(applications.ServiceParams{
		Repo:              applications.NewRepository(gdb),
		Transactions:      txnSvc,
		Outbox:            outbox.NewService(outbox.NewRepository(gdb), logg),
		Fees:              feeCalc,
		Stripe:            applications.NewStripeClient(stripeClient),
		TransactionRunner: dbClient,
		Logger:            logg,
		ApprovalWindow:    cfg.Applications.ApprovalTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build applications service", err)
		os.Exit(1)
	}
	squareSyncSvc, err := squaresync.NewService(squaresync.ServiceParams{
		Repo:    squaresync.NewRepository(gdb),
		Sales:   salesSvc,
		Clients: squaresync.NewClientFactory(squareClient),
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build square sync service", err)
		os.Exit(1)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	expiryJob, err := cron.NewApplicationExpiryJob(cron.ApplicationExpiryJobParams{
		Logger:       logg,
		Applications: applicationsSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build expiry job", err)
		os.Exit(1)
	}
	syncJob, err := cron.NewSquareSyncJob(cron.SquareSyncJobParams{
		Logger: logg,
		Sync:   squareSyncSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build square sync job", err)
		os.Exit(1)
	}

	// The two jobs run on independent cadences, each guarded by its own
	// redis lock so scaled-out workers never double-run a cycle.
	expirySvc, err := newCadence(cfg, logg, redisClient, cronMetrics, "application-expiry", cfg.Cron.ApplicationSweepInterval, expiryJob)
	if err != nil {
		logg.Error(context.Background(), "failed to build expiry cadence", err)
		os.Exit(1)
	}
	syncSvc, err := newCadence(cfg, logg, redisClient, cronMetrics, "square-sales-sync", cfg.Cron.SquareSyncInterval, syncJob)
	if err != nil {
		logg.Error(context.Background(), "failed to build square sync cadence", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return expirySvc.Run(groupCtx) })
	group.Go(func() error { return syncSvc.Run(groupCtx) })
	group.Go(func() error { return serveMetrics(groupCtx, cfg.App.Port) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func newCadence(cfg *config.Config, logg *logger.Logger, redisClient *redis.Client, cronMetrics *metrics.CronJobMetrics, name string, interval time.Duration, job cron.Job) (*cron.Service, error) {
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron:"+name), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(job),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: interval,
	})
}

func serveMetrics(ctx context.Context, port string) error {
	if port == "" {
		port = "9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
