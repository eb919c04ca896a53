package gateway

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/internal/inventory"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
	"github.com/luisorozco/mercaflow-backend/pkg/config"
	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubProvider struct {
	name    enums.PaymentProvider
	session *Session
	err     error
	calls   int
	lastReq SessionRequest
}

func (p *stubProvider) Name() enums.PaymentProvider {
	return p.name
}

func (p *stubProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	p.calls++
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:gateway_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Vendor{},
		&models.Order{},
		&models.OrderLineItem{},
		&models.Payment{},
		&models.InventoryItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newSessionService(t *testing.T, db *gorm.DB, provider Provider) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	inventorySvc, err := inventory.NewService(logg)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	svc, err := NewService(gormTxRunner{db}, orders.NewRepository(db), inventorySvc, NewRegistry(provider), config.CheckoutConfig{SessionTTL: 30 * time.Minute}, logg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func seedPendingOrder(t *testing.T, db *gorm.DB, availableQty int) *models.Order {
	t.Helper()
	vendor := &models.Vendor{ID: uuid.New(), Name: "Test Vendor", OwnerUserID: uuid.New(), Active: true}
	if err := db.Create(vendor).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	productID := uuid.New()
	if err := db.Create(&models.InventoryItem{
		ProductID:    productID,
		VendorID:     vendor.ID,
		AvailableQty: availableQty,
	}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	order := &models.Order{
		ID:            uuid.New(),
		Reference:     "MF-" + uuid.NewString()[:8],
		VendorID:      vendor.ID,
		Email:         "buyer@example.com",
		EmailVerified: true,
		Currency:      enums.CurrencyUSD,
		TotalCents:    10000,
		Status:        enums.OrderStatusPending,
		Items: []models.OrderLineItem{
			{ID: uuid.New(), ProductID: productID, Category: "tools", Quantity: 2, UnitPriceCents: 5000},
		},
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func TestCreateSessionReservesAndPersists(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	provider := &stubProvider{
		name: enums.ProviderPaylink,
		session: &Session{
			ProviderSessionID: "pl_1",
			CheckoutURL:       "https://pay.example/pl_1",
			RawResponse:       []byte(`{"id":"pl_1","url":"https://pay.example/pl_1"}`),
		},
	}
	svc := newSessionService(t, db, provider)
	order := seedPendingOrder(t, db, 5)

	result, err := svc.CreateSession(context.Background(), order.ID, enums.ProviderPaylink)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if result.CheckoutURL != "https://pay.example/pl_1" {
		t.Fatalf("unexpected checkout url %q", result.CheckoutURL)
	}

	var stored models.Order
	if err := db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.Status != enums.OrderStatusInitiated {
		t.Fatalf("order status = %s, want initiated", stored.Status)
	}
	if !stored.ReservationActive {
		t.Fatal("expected reservation to be active")
	}
	if stored.ExpiresAt == nil {
		t.Fatal("expected expiry to be set")
	}

	var payment models.Payment
	if err := db.First(&payment, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if payment.Status != enums.PaymentStatusInitiated {
		t.Fatalf("payment status = %s", payment.Status)
	}
	if payment.ProviderSessionID == nil || *payment.ProviderSessionID != "pl_1" {
		t.Fatal("provider session id not persisted")
	}
	if string(payment.RawPayload) != `{"id":"pl_1","url":"https://pay.example/pl_1"}` {
		t.Fatal("provider raw response not persisted on payment")
	}
	if !strings.HasPrefix(payment.MerchantReference, order.ID.String()+"-") {
		t.Fatalf("merchant reference %q not derived from order id", payment.MerchantReference)
	}
	if provider.lastReq.MerchantReference != payment.MerchantReference {
		t.Fatal("merchant reference sent to provider differs from the stored one")
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 3 || item.ReservedQty != 2 {
		t.Fatalf("inventory not reserved: available %d reserved %d", item.AvailableQty, item.ReservedQty)
	}
}

func TestCreateSessionProviderFailureReleasesStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	provider := &stubProvider{
		name: enums.ProviderPaylink,
		err:  errors.New("gateway unavailable"),
	}
	svc := newSessionService(t, db, provider)
	order := seedPendingOrder(t, db, 5)

	_, err := svc.CreateSession(context.Background(), order.ID, enums.ProviderPaylink)
	if err == nil {
		t.Fatal("expected provider error")
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 5 || item.ReservedQty != 0 {
		t.Fatalf("reservation not rolled back: available %d reserved %d", item.AvailableQty, item.ReservedQty)
	}

	var stored models.Order
	if err := db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.ReservationActive {
		t.Fatal("reservation flag not cleared")
	}
	if stored.Status != enums.OrderStatusPending {
		t.Fatalf("order status = %s, want pending", stored.Status)
	}

	var count int64
	if err := db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&count).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if count != 0 {
		t.Fatal("no payment row should exist after provider failure")
	}
}

func TestCreateSessionInsufficientStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	provider := &stubProvider{
		name:    enums.ProviderPaylink,
		session: &Session{ProviderSessionID: "pl_2", CheckoutURL: "https://pay.example/pl_2"},
	}
	svc := newSessionService(t, db, provider)
	order := seedPendingOrder(t, db, 1) // order wants 2

	_, err := svc.CreateSession(context.Background(), order.ID, enums.ProviderPaylink)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatal("provider should not be called when reservation fails")
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 1 || item.ReservedQty != 0 {
		t.Fatalf("partial reservation leaked: available %d reserved %d", item.AvailableQty, item.ReservedQty)
	}
}

func TestCreateSessionSecondAttemptAddsPaymentRow(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	provider := &stubProvider{
		name:    enums.ProviderPaylink,
		session: &Session{ProviderSessionID: "pl_a1", CheckoutURL: "https://pay.example/pl_a1"},
	}
	svc := newSessionService(t, db, provider)
	order := seedPendingOrder(t, db, 5)

	if _, err := svc.CreateSession(context.Background(), order.ID, enums.ProviderPaylink); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	firstRef := provider.lastReq.MerchantReference

	// The provider declined the first attempt; the buyer retries.
	if err := db.Model(&models.Payment{}).Where("order_id = ?", order.ID).
		Update("status", enums.PaymentStatusFailed).Error; err != nil {
		t.Fatalf("fail payment: %v", err)
	}
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).
		Updates(map[string]any{"status": enums.OrderStatusPending, "reservation_active": false}).Error; err != nil {
		t.Fatalf("reset order: %v", err)
	}
	if err := db.Model(&models.InventoryItem{}).Where("product_id = ?", order.Items[0].ProductID).
		Updates(map[string]any{"available_qty": 5, "reserved_qty": 0}).Error; err != nil {
		t.Fatalf("reset inventory: %v", err)
	}

	provider.session = &Session{ProviderSessionID: "pl_a2", CheckoutURL: "https://pay.example/pl_a2"}
	if _, err := svc.CreateSession(context.Background(), order.ID, enums.ProviderPaylink); err != nil {
		t.Fatalf("second attempt: %v", err)
	}

	var count int64
	if err := db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&count).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected one row per attempt, got %d", count)
	}
	if provider.lastReq.MerchantReference == firstRef {
		t.Fatalf("merchant reference %q reused across attempts", firstRef)
	}
}

func TestCreateSessionRejectsUnverifiedEmail(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	provider := &stubProvider{
		name:    enums.ProviderPaylink,
		session: &Session{ProviderSessionID: "pl_3", CheckoutURL: "https://pay.example/pl_3"},
	}
	svc := newSessionService(t, db, provider)
	order := seedPendingOrder(t, db, 5)
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Update("email_verified", false).Error; err != nil {
		t.Fatalf("update order: %v", err)
	}

	_, err := svc.CreateSession(context.Background(), order.ID, enums.ProviderPaylink)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatal("provider should not be called for an unverified email")
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", order.Items[0].ProductID).Error; err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	if item.AvailableQty != 5 || item.ReservedQty != 0 {
		t.Fatalf("stock touched for rejected session: available %d reserved %d", item.AvailableQty, item.ReservedQty)
	}
}

func TestCreateSessionRejectsNonPendingOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	provider := &stubProvider{name: enums.ProviderPaylink, session: &Session{ProviderSessionID: "x", CheckoutURL: "y"}}
	svc := newSessionService(t, db, provider)
	order := seedPendingOrder(t, db, 5)
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusPaid).Error; err != nil {
		t.Fatalf("update status: %v", err)
	}

	_, err := svc.CreateSession(context.Background(), order.ID, enums.ProviderPaylink)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCreateSessionUnknownProvider(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newSessionService(t, db, &stubProvider{name: enums.ProviderPaylink})

	_, err := svc.CreateSession(context.Background(), uuid.New(), enums.ProviderOrbitpay)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
