package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luisorozco/mercaflow-backend/internal/commission"
	"github.com/luisorozco/mercaflow-backend/internal/cron"
	"github.com/luisorozco/mercaflow-backend/internal/escrow"
	"github.com/luisorozco/mercaflow-backend/internal/inventory"
	"github.com/luisorozco/mercaflow-backend/internal/ledger"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
	"github.com/luisorozco/mercaflow-backend/internal/payouts"
	"github.com/luisorozco/mercaflow-backend/pkg/config"
	"github.com/luisorozco/mercaflow-backend/pkg/db"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/metrics"
	"github.com/luisorozco/mercaflow-backend/pkg/migrate"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox"
	"github.com/luisorozco/mercaflow-backend/pkg/redis"
)

const lockKeyFormat = "mf:cron-worker:lock:%s"

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

	ordersRepo := orders.NewRepository(dbClient.DB())
	payoutsRepo := payouts.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	inventorySvc, err := inventory.NewService(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	commissionSvc, err := commission.NewService(commission.NewRepository(dbClient.DB()), ledgerSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create commission service", err)
		os.Exit(1)
	}

	escrowClient, err := escrow.NewClient(cfg.Escrow)
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow client", err)
		os.Exit(1)
	}

	escrowSvc, err := escrow.NewService(escrow.ServiceParams{
		TransactionRunner: dbClient,
		Repo:              escrow.NewRepository(dbClient.DB()),
		OrdersRepo:        ordersRepo,
		Commission:        commissionSvc,
		Ledger:            ledgerSvc,
		Client:            escrowClient,
		Outbox:            outboxSvc,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewExpiryJob(cron.ExpiryJobParams{
		Logger:    logg,
		DB:        dbClient,
		Orders:    ordersRepo,
		Inventory: inventorySvc,
		Outbox:    outboxSvc,
		BatchSize: cfg.Cron.ExpiryBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry job", err)
		os.Exit(1)
	}

	autoReleaseJob, err := cron.NewAutoReleaseJob(cron.AutoReleaseJobParams{
		Logger: logg,
		Orders: ordersRepo,
		Escrow: escrowSvc,
		After:  cfg.Cron.AutoReleaseAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auto release job", err)
		os.Exit(1)
	}

	payoutReconcileJob, err := cron.NewPayoutReconcileJob(cron.PayoutReconcileJobParams{
		Logger:     logg,
		DB:         dbClient,
		Payouts:    payoutsRepo,
		Outbox:     outboxSvc,
		StuckAfter: cfg.Cron.PayoutStuckAfter,
		BatchSize:  cfg.Cron.PayoutReconcileSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout reconcile job", err)
		os.Exit(1)
	}

	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outbox.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob, autoReleaseJob, payoutReconcileJob, outboxRetentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
