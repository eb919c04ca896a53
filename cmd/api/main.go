package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luisorozco/mercaflow-backend/api/routes"
	"github.com/luisorozco/mercaflow-backend/internal/commission"
	"github.com/luisorozco/mercaflow-backend/internal/escrow"
	"github.com/luisorozco/mercaflow-backend/internal/gateway"
	"github.com/luisorozco/mercaflow-backend/internal/inventory"
	"github.com/luisorozco/mercaflow-backend/internal/ledger"
	"github.com/luisorozco/mercaflow-backend/internal/notifications"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
	"github.com/luisorozco/mercaflow-backend/internal/payouts"
	"github.com/luisorozco/mercaflow-backend/internal/webhooks"
	paymentwebhook "github.com/luisorozco/mercaflow-backend/internal/webhooks/payment"
	payoutwebhook "github.com/luisorozco/mercaflow-backend/internal/webhooks/payout"
	"github.com/luisorozco/mercaflow-backend/pkg/config"
	"github.com/luisorozco/mercaflow-backend/pkg/db"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/metrics"
	"github.com/luisorozco/mercaflow-backend/pkg/migrate"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox"
	"github.com/luisorozco/mercaflow-backend/pkg/redis"
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

	ordersRepo := orders.NewRepository(dbClient.DB())
	payoutsRepo := payouts.NewRepository(dbClient.DB())
	logRepo := webhooks.NewLogRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	inventorySvc, err := inventory.NewService(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	paylinkClient, err := gateway.NewPaylinkClient(cfg.Paylink)
	if err != nil {
		logg.Error(context.Background(), "failed to create paylink client", err)
		os.Exit(1)
	}
	orbitpayClient, err := gateway.NewOrbitpayClient(cfg.Orbitpay)
	if err != nil {
		logg.Error(context.Background(), "failed to create orbitpay client", err)
		os.Exit(1)
	}

	gatewayService, err := gateway.NewService(dbClient, ordersRepo, inventorySvc, gateway.NewRegistry(paylinkClient, orbitpayClient), cfg.Checkout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(dbClient, ordersRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
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

	paymentWebhookService, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		TransactionRunner: dbClient,
		OrdersRepo:        ordersRepo,
		Inventory:         inventorySvc,
		LogRepo:           logRepo,
		Outbox:            outboxSvc,
		Metrics:           webhookMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment webhook service", err)
		os.Exit(1)
	}

	payoutWebhookService, err := payoutwebhook.NewService(payoutwebhook.ServiceParams{
		TransactionRunner: dbClient,
		PayoutsRepo:       payoutsRepo,
		LogRepo:           logRepo,
		Ledger:            ledgerSvc,
		Outbox:            outboxSvc,
		Metrics:           webhookMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout webhook service", err)
		os.Exit(1)
	}

	escrowClient, err := escrow.NewClient(cfg.Escrow)
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow client", err)
		os.Exit(1)
	}

	escrowService, err := escrow.NewService(escrow.ServiceParams{
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

	payoutRailClient, err := payouts.NewClient(cfg.Escrow)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout client", err)
		os.Exit(1)
	}

	payoutsService, err := payouts.NewService(payouts.ServiceParams{
		TransactionRunner: dbClient,
		Repo:              payoutsRepo,
		OrdersRepo:        ordersRepo,
		Client:            payoutRailClient,
		Ledger:            ledgerSvc,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			gatewayService,
			ordersService,
			notificationsService,
			paymentWebhookService,
			payoutWebhookService,
			escrowService,
			payoutsService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
