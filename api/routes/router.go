package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/luisorozco/mercaflow-backend/api/controllers"
	webhookcontrollers "github.com/luisorozco/mercaflow-backend/api/controllers/webhooks"
	"github.com/luisorozco/mercaflow-backend/api/middleware"
	"github.com/luisorozco/mercaflow-backend/internal/escrow"
	"github.com/luisorozco/mercaflow-backend/internal/gateway"
	"github.com/luisorozco/mercaflow-backend/internal/notifications"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
	"github.com/luisorozco/mercaflow-backend/internal/payouts"
	paymentwebhook "github.com/luisorozco/mercaflow-backend/internal/webhooks/payment"
	payoutwebhook "github.com/luisorozco/mercaflow-backend/internal/webhooks/payout"
	"github.com/luisorozco/mercaflow-backend/pkg/config"
	"github.com/luisorozco/mercaflow-backend/pkg/db"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	gatewayService *gateway.Service,
	ordersService *orders.Service,
	notificationsService notifications.Service,
	paymentWebhookService *paymentwebhook.Service,
	payoutWebhookService *payoutwebhook.Service,
	escrowService *escrow.Service,
	payoutsService *payouts.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	webhookSecrets := map[enums.PaymentProvider]string{
		enums.ProviderPaylink:  cfg.Paylink.WebhookSecret,
		enums.ProviderOrbitpay: cfg.Orbitpay.WebhookSecret,
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments/{provider}", webhookcontrollers.PaymentWebhook(paymentWebhookService, webhookSecrets, logg))
		r.Post("/payouts", webhookcontrollers.PayoutWebhook(payoutWebhookService, cfg.Escrow.WebhookSecret, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Guest checkout opens sessions before the order is claimed.
		r.Post("/orders/{orderID}/payment-session", controllers.CreatePaymentSession(gatewayService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser(logg))
			r.Post("/orders/{orderID}/claim", controllers.ClaimOrder(ordersService, logg))
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(notificationsService, logg))
				r.Post("/{notificationID}/read", controllers.MarkNotificationRead(notificationsService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminToken(cfg.Admin.APIToken, logg))
		r.Post("/orders/{orderID}/release", controllers.AdminReleaseEscrow(escrowService, logg))
		r.Post("/payouts/{payoutID}/process", controllers.AdminProcessPayout(payoutsService, logg))
	})

	return r
}
