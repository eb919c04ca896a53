package routes

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

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
	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox"
)

const (
	paylinkSecret = "paylink-webhook-secret"
	escrowSecret  = "escrow-webhook-secret"
	adminToken    = "router-admin-token"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubProvider struct {
	sessionID string
}

func (p stubProvider) Name() enums.PaymentProvider { return enums.ProviderPaylink }

func (p stubProvider) CreateSession(context.Context, gateway.SessionRequest) (*gateway.Session, error) {
	return &gateway.Session{
		ProviderSessionID: p.sessionID,
		CheckoutURL:       "https://pay.test/" + p.sessionID,
	}, nil
}

type stubEscrowClient struct {
	releaseID string
}

func (c stubEscrowClient) Release(context.Context, escrow.ReleaseRequest) (*escrow.ReleaseResult, error) {
	return &escrow.ReleaseResult{ProviderReleaseID: c.releaseID}, nil
}

type stubPayoutClient struct {
	payoutID string
}

func (c stubPayoutClient) InitiatePayout(context.Context, payouts.InitiateRequest) (*payouts.InitiateResult, error) {
	return &payouts.InitiateResult{ProviderPayoutID: c.payoutID}, nil
}

type routerEnv struct {
	db       *gorm.DB
	handler  http.Handler
	ordersSv *orders.Service
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()

	dsn := "file:routes_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Vendor{}, &models.Order{}, &models.OrderLineItem{}, &models.Payment{},
		&models.InventoryItem{}, &models.CommissionConfig{}, &models.PlatformCommission{},
		&models.LedgerEvent{}, &models.EscrowRelease{}, &models.VendorPayout{},
		&models.WebhookLog{}, &models.OutboxEvent{}, &models.Notification{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "routes-test", Output: io.Discard})
	tx := gormTxRunner{db}
	ordersRepo := orders.NewRepository(db)

	inventorySvc, err := inventory.NewService(logg)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.Checkout.SessionTTL = 30 * time.Minute
	cfg.Checkout.RedirectURL = "https://shop.test/return"
	cfg.Paylink.WebhookSecret = paylinkSecret
	cfg.Escrow.WebhookSecret = escrowSecret
	cfg.Admin.APIToken = adminToken

	gatewaySvc, err := gateway.NewService(tx, ordersRepo, inventorySvc,
		gateway.NewRegistry(stubProvider{sessionID: "sess_router"}), cfg.Checkout, logg)
	if err != nil {
		t.Fatalf("gateway service: %v", err)
	}

	ordersSvc, err := orders.NewService(tx, ordersRepo, logg)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(db))
	if err != nil {
		t.Fatalf("notifications service: %v", err)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(db), logg)
	logRepo := webhooks.NewLogRepository(db)

	paymentWebhookSvc, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{
		TransactionRunner: tx,
		OrdersRepo:        ordersRepo,
		Inventory:         inventorySvc,
		LogRepo:           logRepo,
		Outbox:            outboxSvc,
		Logger:            logg,
	})
	if err != nil {
		t.Fatalf("payment webhook service: %v", err)
	}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	commissionSvc, err := commission.NewService(commission.NewRepository(db), ledgerSvc, logg)
	if err != nil {
		t.Fatalf("commission service: %v", err)
	}

	escrowSvc, err := escrow.NewService(escrow.ServiceParams{
		TransactionRunner: tx,
		Repo:              escrow.NewRepository(db),
		OrdersRepo:        ordersRepo,
		Commission:        commissionSvc,
		Ledger:            ledgerSvc,
		Client:            stubEscrowClient{releaseID: "rel_router"},
		Outbox:            outboxSvc,
		Logger:            logg,
	})
	if err != nil {
		t.Fatalf("escrow service: %v", err)
	}

	payoutsRepo := payouts.NewRepository(db)
	payoutsSvc, err := payouts.NewService(payouts.ServiceParams{
		TransactionRunner: tx,
		Repo:              payoutsRepo,
		OrdersRepo:        ordersRepo,
		Client:            stubPayoutClient{payoutID: "po_router"},
		Ledger:            ledgerSvc,
		Logger:            logg,
	})
	if err != nil {
		t.Fatalf("payouts service: %v", err)
	}

	payoutWebhookSvc, err := payoutwebhook.NewService(payoutwebhook.ServiceParams{
		TransactionRunner: tx,
		PayoutsRepo:       payoutsRepo,
		LogRepo:           logRepo,
		Ledger:            ledgerSvc,
		Outbox:            outboxSvc,
		Logger:            logg,
	})
	if err != nil {
		t.Fatalf("payout webhook service: %v", err)
	}

	handler := NewRouter(cfg, logg, stubPinger{}, stubPinger{},
		gatewaySvc, ordersSvc, notificationsSvc,
		paymentWebhookSvc, payoutWebhookSvc, escrowSvc, payoutsSvc)

	return &routerEnv{db: db, handler: handler, ordersSv: ordersSvc}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (env *routerEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	return w
}

func strPtr(value string) *string { return &value }

// seedPendingOrder creates a vendor with stock, a 10% commission config,
// and an unclaimed pending order for two units.
func seedPendingOrder(t *testing.T, db *gorm.DB) *models.Order {
	t.Helper()

	vendor := &models.Vendor{
		ID:                uuid.New(),
		Name:              "Brightline Goods",
		OwnerUserID:       uuid.New(),
		PayoutRecipientID: strPtr("acct_brightline"),
		Active:            true,
	}
	if err := db.Create(vendor).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}

	rate := decimal.RequireFromString("10.00")
	if err := db.Create(&models.CommissionConfig{
		ID:       uuid.New(),
		Scope:    enums.CommissionScopeVendor,
		VendorID: &vendor.ID,
		RatePct:  &rate,
		Active:   true,
	}).Error; err != nil {
		t.Fatalf("seed commission config: %v", err)
	}

	productID := uuid.New()
	if err := db.Create(&models.InventoryItem{
		ProductID:    productID,
		VendorID:     vendor.ID,
		AvailableQty: 5,
	}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	order := &models.Order{
		ID:            uuid.New(),
		Reference:     "ord_" + uuid.NewString()[:8],
		VendorID:      vendor.ID,
		Status:        enums.OrderStatusPending,
		Email:         "buyer@example.com",
		EmailVerified: true,
		Currency:      enums.CurrencyUSD,
		TotalCents:    10000,
		Items: []models.OrderLineItem{
			{ID: uuid.New(), ProductID: productID, Category: "homeware", Quantity: 2, UnitPriceCents: 5000},
		},
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// TestSettlementFlow drives an order through the public API end to end:
// open a checkout session, settle the payment webhook, claim the order,
// release escrow after delivery, process the payout, and confirm its
// completion webhook.
func TestSettlementFlow(t *testing.T) {
	env := newRouterEnv(t)
	order := seedPendingOrder(t, env.db)

	// Open a hosted checkout session for the guest order.
	body := bytes.NewBufferString(`{"provider":"paylink"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/payment-session", body)
	req.Header.Set("Content-Type", "application/json")
	if w := env.do(t, req); w.Code != http.StatusCreated {
		t.Fatalf("payment-session status = %d body = %s", w.Code, w.Body.String())
	}

	var item models.InventoryItem
	if err := env.db.First(&item).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 3 || item.ReservedQty != 2 {
		t.Fatalf("stock not reserved: available=%d reserved=%d", item.AvailableQty, item.ReservedQty)
	}

	// Provider confirms the payment.
	payload := []byte(`{"event_id":"evt_flow_1","type":"payment.updated","session_id":"sess_router","payment_id":"pay_flow_1","status":"succeeded"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/paylink", bytes.NewReader(payload))
	req.Header.Set("X-Paylink-Signature", sign(paylinkSecret, payload))
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("payment webhook status = %d body = %s", w.Code, w.Body.String())
	}

	var paid models.Order
	if err := env.db.First(&paid, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if paid.Status != enums.OrderStatusPaid {
		t.Fatalf("order status = %s, want paid", paid.Status)
	}

	// The buyer signs in and claims the guest order.
	userID := uuid.New()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/claim", nil)
	req.Header.Set("X-User-Id", userID.String())
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("claim status = %d body = %s", w.Code, w.Body.String())
	}

	if _, err := env.ordersSv.MarkDelivered(context.Background(), order.ID); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}

	// Operator releases escrow.
	req = httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/"+order.ID.String()+"/release", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	if w := env.do(t, req); w.Code != http.StatusCreated {
		t.Fatalf("release status = %d body = %s", w.Code, w.Body.String())
	}

	var release models.EscrowRelease
	if err := env.db.First(&release, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("load release: %v", err)
	}
	if release.Status != enums.EscrowReleaseCompleted || release.VendorCents != 9000 {
		t.Fatalf("release = %s/%d, want completed/9000", release.Status, release.VendorCents)
	}

	var payout models.VendorPayout
	if err := env.db.First(&payout, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("load payout: %v", err)
	}
	if payout.Status != enums.PayoutStatusPending {
		t.Fatalf("payout status = %s, want pending", payout.Status)
	}

	// A second release for the same order short-circuits without new rows.
	req = httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/"+order.ID.String()+"/release", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate release status = %d body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"already_released":true`) {
		t.Fatalf("duplicate release body = %s", w.Body.String())
	}
	var releaseCount, payoutCount int64
	env.db.Model(&models.EscrowRelease{}).Where("order_id = ?", order.ID).Count(&releaseCount)
	env.db.Model(&models.VendorPayout{}).Where("order_id = ?", order.ID).Count(&payoutCount)
	if releaseCount != 1 || payoutCount != 1 {
		t.Fatalf("duplicate release added rows: releases=%d payouts=%d", releaseCount, payoutCount)
	}

	// Operator pushes the payout through the rail.
	req = httptest.NewRequest(http.MethodPost, "/api/admin/v1/payouts/"+payout.ID.String()+"/process", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("process status = %d body = %s", w.Code, w.Body.String())
	}

	// The rail confirms the transfer.
	payload = []byte(`{"event_id":"evt_flow_2","type":"payout.updated","payout_id":"po_router","status":"completed"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payouts", bytes.NewReader(payload))
	req.Header.Set("X-Escrow-Signature", sign(escrowSecret, payload))
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("payout webhook status = %d body = %s", w.Code, w.Body.String())
	}

	if err := env.db.First(&payout, "id = ?", payout.ID).Error; err != nil {
		t.Fatalf("reload payout: %v", err)
	}
	if payout.Status != enums.PayoutStatusCompleted {
		t.Fatalf("payout status = %s, want completed", payout.Status)
	}
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	env := newRouterEnv(t)
	seedPendingOrder(t, env.db)

	payload := []byte(`{"event_id":"evt_sig","type":"payment.updated","session_id":"sess_router","status":"succeeded"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/paylink", bytes.NewReader(payload))
	req.Header.Set("X-Paylink-Signature", "deadbeef")
	if w := env.do(t, req); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var count int64
	env.db.Model(&models.WebhookLog{}).Count(&count)
	if count != 0 {
		t.Fatalf("forged request reached the webhook ledger")
	}
}

func TestPaymentWebhookUnknownProvider(t *testing.T) {
	env := newRouterEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/acme", bytes.NewReader([]byte(`{}`)))
	if w := env.do(t, req); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestClaimRequiresIdentity(t *testing.T) {
	env := newRouterEnv(t)
	order := seedPendingOrder(t, env.db)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/claim", nil)
	if w := env.do(t, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := newRouterEnv(t)
	order := seedPendingOrder(t, env.db)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/"+order.ID.String()+"/release", nil)
	if w := env.do(t, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/"+order.ID.String()+"/release", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := env.do(t, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", w.Code)
	}
}

func TestNotificationsEndpoints(t *testing.T) {
	env := newRouterEnv(t)
	userID := uuid.New()

	if err := env.db.Create(&models.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    enums.NotificationPayoutCompleted,
		Title:   "Payout completed",
		Message: "Your payout arrived.",
	}).Error; err != nil {
		t.Fatalf("seed notification: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/?limit=10", nil)
	req.Header.Set("X-User-Id", userID.String())
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d body = %s", w.Code, w.Body.String())
	}

	var envelope struct {
		Data struct {
			Items []models.Notification `json:"items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(envelope.Data.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(envelope.Data.Items))
	}

	target := envelope.Data.Items[0].ID
	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/notifications/%s/read", target), nil)
	req.Header.Set("X-User-Id", userID.String())
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("mark read status = %d body = %s", w.Code, w.Body.String())
	}
}
