package commission

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/internal/ledger"
	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:commission_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.CommissionConfig{}, &models.PlatformCommission{}, &models.LedgerEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db))
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(NewRepository(db), ledgerSvc, logg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func ratePtr(value string) *decimal.Decimal {
	d := decimal.RequireFromString(value)
	return &d
}

func int64Ptr(value int64) *int64 {
	return &value
}

func strPtr(value string) *string {
	return &value
}

func seedConfig(t *testing.T, db *gorm.DB, config *models.CommissionConfig) *models.CommissionConfig {
	t.Helper()
	config.ID = uuid.New()
	if err := db.Create(config).Error; err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return config
}

func claimedOrder(totalCents int64, vendorID uuid.UUID, category string) *models.Order {
	userID := uuid.New()
	return &models.Order{
		ID:         uuid.New(),
		VendorID:   vendorID,
		UserID:     &userID,
		TotalCents: totalCents,
		Items: []models.OrderLineItem{
			{ID: uuid.New(), ProductID: uuid.New(), Category: category, Quantity: 1, UnitPriceCents: totalCents},
		},
	}
}

func TestCalculatePercentageRounding(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	vendorID := uuid.New()
	seedConfig(t, db, &models.CommissionConfig{
		Scope:    enums.CommissionScopeVendor,
		VendorID: &vendorID,
		RatePct:  ratePtr("10.00"),
		Active:   true,
	})

	cases := []struct {
		name       string
		total      int64
		commission int64
	}{
		{"whole dollars", 10000, 1000},
		{"rounds half up", 105, 11},   // 10.5 cents
		{"rounds down", 104, 10},      // 10.4 cents
		{"one cent order", 1, 0},      // 0.1 cents
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			breakdown, err := svc.Calculate(context.Background(), claimedOrder(tc.total, vendorID, "tools"))
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			if breakdown.CommissionCents != tc.commission {
				t.Fatalf("commission = %d, want %d", breakdown.CommissionCents, tc.commission)
			}
			if breakdown.VendorCents != tc.total-tc.commission {
				t.Fatalf("vendor share %d does not complement commission", breakdown.VendorCents)
			}
		})
	}
}

func TestCalculateFixedCapped(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	vendorID := uuid.New()
	seedConfig(t, db, &models.CommissionConfig{
		Scope:      enums.CommissionScopeVendor,
		VendorID:   &vendorID,
		FixedCents: int64Ptr(500),
		Active:     true,
	})

	breakdown, err := svc.Calculate(context.Background(), claimedOrder(300, vendorID, "tools"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if breakdown.CommissionCents != 300 {
		t.Fatalf("commission = %d, want capped at order total", breakdown.CommissionCents)
	}
	if breakdown.VendorCents != 0 {
		t.Fatalf("vendor share = %d, want 0", breakdown.VendorCents)
	}
}

func TestCalculatePrecedence(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	vendorID := uuid.New()

	seedConfig(t, db, &models.CommissionConfig{
		Scope:   enums.CommissionScopePlatform,
		RatePct: ratePtr("20.00"),
		Active:  true,
	})
	categoryConfig := seedConfig(t, db, &models.CommissionConfig{
		Scope:    enums.CommissionScopeCategory,
		Category: strPtr("electronics"),
		RatePct:  ratePtr("15.00"),
		Active:   true,
	})

	// Category rule beats platform.
	breakdown, err := svc.Calculate(context.Background(), claimedOrder(10000, vendorID, "electronics"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if breakdown.ConfigID != categoryConfig.ID || breakdown.CommissionCents != 1500 {
		t.Fatalf("expected category rule, got scope %s commission %d", breakdown.Scope, breakdown.CommissionCents)
	}

	// Vendor rule beats both.
	vendorConfig := seedConfig(t, db, &models.CommissionConfig{
		Scope:    enums.CommissionScopeVendor,
		VendorID: &vendorID,
		RatePct:  ratePtr("10.00"),
		Active:   true,
	})
	breakdown, err = svc.Calculate(context.Background(), claimedOrder(10000, vendorID, "electronics"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if breakdown.ConfigID != vendorConfig.ID || breakdown.CommissionCents != 1000 {
		t.Fatalf("expected vendor rule, got scope %s commission %d", breakdown.Scope, breakdown.CommissionCents)
	}

	// Unmatched category falls through to platform.
	breakdown, err = svc.Calculate(context.Background(), claimedOrder(10000, uuid.New(), "furniture"))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if breakdown.Scope != enums.CommissionScopePlatform || breakdown.CommissionCents != 2000 {
		t.Fatalf("expected platform rule, got scope %s commission %d", breakdown.Scope, breakdown.CommissionCents)
	}
}

func TestCalculateInactiveConfigIgnored(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	vendorID := uuid.New()
	seedConfig(t, db, &models.CommissionConfig{
		Scope:    enums.CommissionScopeVendor,
		VendorID: &vendorID,
		RatePct:  ratePtr("5.00"),
		Active:   false,
	})

	_, err := svc.Calculate(context.Background(), claimedOrder(10000, vendorID, "tools"))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeCommissionConfig {
		t.Fatalf("expected missing config error, got %v", err)
	}
}

func TestCalculateUnclaimedOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	order := claimedOrder(10000, uuid.New(), "tools")
	order.UserID = nil

	_, err := svc.Calculate(context.Background(), order)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeOrderUnclaimed {
		t.Fatalf("expected unclaimed order error, got %v", err)
	}
}

func TestRecordUpsertsAndAppendsLedger(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	vendorID := uuid.New()
	config := seedConfig(t, db, &models.CommissionConfig{
		Scope:    enums.CommissionScopeVendor,
		VendorID: &vendorID,
		RatePct:  ratePtr("10.00"),
		Active:   true,
	})
	order := claimedOrder(10000, vendorID, "tools")

	breakdown, err := svc.Calculate(context.Background(), order)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if _, err := svc.Record(context.Background(), db, order, breakdown); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Recording again for the same order updates in place.
	if _, err := svc.Record(context.Background(), db, order, breakdown); err != nil {
		t.Fatalf("Record again: %v", err)
	}
	var count int64
	if err := db.Model(&models.PlatformCommission{}).Where("order_id = ?", order.ID).Count(&count).Error; err != nil {
		t.Fatalf("count commissions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single commission row, got %d", count)
	}

	stored, err := NewRepository(db).FindByOrderID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("FindByOrderID: %v", err)
	}
	if stored.ConfigID != config.ID || stored.CommissionCents != 1000 || stored.VendorCents != 9000 {
		t.Fatalf("unexpected stored split %+v", stored)
	}
	if stored.Status != enums.CommissionStatusPending {
		t.Fatalf("status = %s, want pending", stored.Status)
	}

	var events []models.LedgerEvent
	if err := db.Where("order_id = ?", order.ID).Find(&events).Error; err != nil {
		t.Fatalf("list ledger events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected ledger event")
	}
	if events[0].EventType != enums.LedgerCommissionCalculated {
		t.Fatalf("unexpected ledger event %s", events[0].EventType)
	}
}

func TestMarkRecorded(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	svc := newTestService(t, db)
	vendorID := uuid.New()
	seedConfig(t, db, &models.CommissionConfig{
		Scope:    enums.CommissionScopeVendor,
		VendorID: &vendorID,
		RatePct:  ratePtr("10.00"),
		Active:   true,
	})
	order := claimedOrder(10000, vendorID, "tools")

	breakdown, err := svc.Calculate(context.Background(), order)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if _, err := svc.Record(context.Background(), db, order, breakdown); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := svc.MarkRecorded(context.Background(), db, order.ID); err != nil {
		t.Fatalf("MarkRecorded: %v", err)
	}

	stored, err := NewRepository(db).FindByOrderID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("FindByOrderID: %v", err)
	}
	if stored.Status != enums.CommissionStatusRecorded {
		t.Fatalf("status = %s, want recorded", stored.Status)
	}
}
