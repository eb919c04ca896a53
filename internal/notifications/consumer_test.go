package notifications

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox/payloads"
)

type fakeDirectory struct {
	orders  map[uuid.UUID]*models.Order
	vendors map[uuid.UUID]*models.Vendor
}

func (f *fakeDirectory) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if order, ok := f.orders[orderID]; ok {
		return order, nil
	}
	return nil, context.Canceled
}

func (f *fakeDirectory) FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error) {
	if vendor, ok := f.vendors[vendorID]; ok {
		return vendor, nil
	}
	return nil, context.Canceled
}

func newTestConsumer(t *testing.T, repo *fakeRepository, directory *fakeDirectory) *Consumer {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return &Consumer{repo: repo, directory: directory, logg: logg}
}

func TestHandleOrderPaidNotifiesBuyerAndVendor(t *testing.T) {
	userID := uuid.New()
	ownerID := uuid.New()
	vendorID := uuid.New()
	orderID := uuid.New()

	repo := &fakeRepository{}
	directory := &fakeDirectory{
		orders:  map[uuid.UUID]*models.Order{orderID: {ID: orderID, Reference: "MF-1001", UserID: &userID, VendorID: vendorID}},
		vendors: map[uuid.UUID]*models.Vendor{vendorID: {ID: vendorID, OwnerUserID: ownerID}},
	}
	consumer := newTestConsumer(t, repo, directory)

	data, _ := json.Marshal(payloads.OrderPaidEvent{OrderID: orderID, VendorID: vendorID, AmountCents: 10000})
	if err := consumer.handleOrderPaid(context.Background(), data, context.Background()); err != nil {
		t.Fatalf("handleOrderPaid: %v", err)
	}

	if len(repo.created) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(repo.created))
	}
	recipients := map[uuid.UUID]bool{}
	for _, n := range repo.created {
		recipients[n.UserID] = true
		if n.Type != enums.NotificationPaymentReceived {
			t.Fatalf("unexpected type %s", n.Type)
		}
	}
	if !recipients[userID] || !recipients[ownerID] {
		t.Fatal("expected both buyer and vendor owner notified")
	}
}

func TestHandleOrderPaidUnclaimedOrder(t *testing.T) {
	ownerID := uuid.New()
	vendorID := uuid.New()
	orderID := uuid.New()

	repo := &fakeRepository{}
	directory := &fakeDirectory{
		orders:  map[uuid.UUID]*models.Order{orderID: {ID: orderID, Reference: "MF-1002", VendorID: vendorID}},
		vendors: map[uuid.UUID]*models.Vendor{vendorID: {ID: vendorID, OwnerUserID: ownerID}},
	}
	consumer := newTestConsumer(t, repo, directory)

	data, _ := json.Marshal(payloads.OrderPaidEvent{OrderID: orderID, VendorID: vendorID})
	if err := consumer.handleOrderPaid(context.Background(), data, context.Background()); err != nil {
		t.Fatalf("handleOrderPaid: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected only vendor notification, got %d", len(repo.created))
	}
	if repo.created[0].UserID != ownerID {
		t.Fatalf("unexpected recipient %s", repo.created[0].UserID)
	}
}

func TestHandleOrderExpiredSkipsUnclaimed(t *testing.T) {
	orderID := uuid.New()
	repo := &fakeRepository{}
	directory := &fakeDirectory{
		orders: map[uuid.UUID]*models.Order{orderID: {ID: orderID, Reference: "MF-1003"}},
	}
	consumer := newTestConsumer(t, repo, directory)

	data, _ := json.Marshal(payloads.OrderExpiredEvent{OrderID: orderID})
	if err := consumer.handleOrderExpired(context.Background(), data, context.Background()); err != nil {
		t.Fatalf("handleOrderExpired: %v", err)
	}
	if len(repo.created) != 0 {
		t.Fatalf("expected no notifications, got %d", len(repo.created))
	}
}

func TestHandlePayoutFailedIncludesReason(t *testing.T) {
	ownerID := uuid.New()
	vendorID := uuid.New()

	repo := &fakeRepository{}
	directory := &fakeDirectory{
		vendors: map[uuid.UUID]*models.Vendor{vendorID: {ID: vendorID, OwnerUserID: ownerID}},
	}
	consumer := newTestConsumer(t, repo, directory)

	data, _ := json.Marshal(payloads.PayoutFailedEvent{PayoutID: uuid.New(), OrderID: uuid.New(), VendorID: vendorID, Reason: "recipient account closed"})
	if err := consumer.handlePayoutFailed(context.Background(), data, context.Background()); err != nil {
		t.Fatalf("handlePayoutFailed: %v", err)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(repo.created))
	}
	if repo.created[0].Type != enums.NotificationPayoutFailed {
		t.Fatalf("unexpected type %s", repo.created[0].Type)
	}
	if want := "recipient account closed"; !strings.Contains(repo.created[0].Message, want) {
		t.Fatalf("message %q missing %q", repo.created[0].Message, want)
	}
}

func TestFormatCents(t *testing.T) {
	if got := formatCents(9000); got != "90.00" {
		t.Fatalf("formatCents(9000) = %q", got)
	}
	if got := formatCents(105); got != "1.05" {
		t.Fatalf("formatCents(105) = %q", got)
	}
}
