package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marketloop/marketloop-backend/api/routes"
	"github.com/marketloop/marketloop-backend/internal/applications"
	"github.com/marketloop/marketloop-backend/internal/fees"
	"github.com/marketloop/marketloop-backend/internal/inventory"
	"github.com/marketloop/marketloop-backend/internal/orders"
	"github.com/marketloop/marketloop-backend/internal/preorders"
	"github.com/marketloop/marketloop-backend/internal/sales"
	"github.com/marketloop/marketloop-backend/internal/squaresync"
	"github.com/marketloop/marketloop-backend/internal/tickets"
	"github.com/marketloop/marketloop-backend/internal/transactions"
	stripewebhooks "github.com/marketloop/marketloop-backend/internal/webhooks/stripe"
	"github.com/marketloop/marketloop-backend/pkg/config"
	"github.com/marketloop/marketloop-backend/pkg/db"
	"github.com/marketloop/marketloop-backend/pkg/logger"
	"github.com/marketloop/marketloop-backend/pkg/metrics"
	"github.com/marketloop/marketloop-backend/pkg/migrate"
	"github.com/marketloop/marketloop-backend/pkg/outbox"
	"github.com/marketloop/marketloop-backend/pkg/outbox/idempotency"
	"github.com/marketloop/marketloop-backend/pkg/redis"
	"github.com/marketloop/marketloop-backend/pkg/square"
	"github.com/marketloop/marketloop-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)
	txnSvc, err := transactions.NewService(transactions.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to build transactions service", err)
		os.Exit(1)
	}
	invSvc, err := inventory.NewService(inventory.NewRepository(gdb), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build inventory service", err)
		os.Exit(1)
	}
	salesSvc, err := sales.NewService(sales.NewRepository(gdb))
	if err != nil {
		logg.Error(context.Background(), "failed to build sales service", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:              orders.NewRepository(gdb),
		Inventory:         invSvc,
		Transactions:      txnSvc,
		Sales:             salesSvc,
		Outbox:            outboxSvc,
		Fees:              feeCalc,
		Stripe:            orders.NewStripeClient(stripeClient),
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build orders service", err)
		os.Exit(1)
	}

	preorderRepo := preorders.NewRepository(gdb)
	preordersSvc, err := preorders.NewService(preorders.ServiceParams{
		Repo:              preorderRepo,
		Transactions:      txnSvc,
		Sales:             salesSvc,
		Outbox:            outboxSvc,
		Fees:              feeCalc,
		Stripe:            preorders.NewStripeClient(stripeClient),
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build preorders service", err)
		os.Exit(1)
	}

	ticketsSvc, err := tickets.NewService(tickets.ServiceParams{
		Repo:              tickets.NewRepository(gdb),
		Inventory:         invSvc,
		Transactions:      txnSvc,
		Outbox:            outboxSvc,
		Fees:              feeCalc,
		Stripe:            tickets.NewStripeClient(stripeClient),
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build tickets service", err)
		os.Exit(1)
	}

	applicationsSvc, err := applications.NewService(applications.ServiceParams{
		Repo:              applications.NewRepository(gdb),
		Transactions:      txnSvc,
		Outbox:            outboxSvc,
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

	dedup, err := idempotency.NewManager(redisClient, cfg.Eventing.WebhookDedupTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to build webhook dedup manager", err)
		os.Exit(1)
	}
	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)
	dispatcher, err := stripewebhooks.NewDispatcher(stripewebhooks.DispatcherParams{
		Orders:            ordersSvc,
		Preorders:         preordersSvc,
		Tickets:           ticketsSvc,
		Applications:      applicationsSvc,
		Integrations:      stripewebhooks.NewIntegrationRepository(gdb),
		Outbox:            outboxSvc,
		Idempotency:       dedup,
		Metrics:           webhookMetrics,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to build stripe webhook dispatcher", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(routes.RouterParams{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Orders:         ordersSvc,
		Preorders:      preordersSvc,
		PreorderRepo:   preorderRepo,
		Tickets:        ticketsSvc,
		Applications:   applicationsSvc,
		Sales:          salesSvc,
		SquareSync:     squareSyncSvc,
		StripeClient:   stripeClient,
		StripeWebhooks: dispatcher,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{Addr: addr, Handler: handler}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
