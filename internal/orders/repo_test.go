package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
)

func TestFindExpiredOrdersBatches(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	for i := 0; i < 3; i++ {
		seedOrder(t, db, func(o *models.Order) {
			o.Status = enums.OrderStatusInitiated
			o.ExpiresAt = &past
		})
	}
	seedOrder(t, db, func(o *models.Order) {
		o.Status = enums.OrderStatusInitiated
		o.ExpiresAt = &future
	})
	seedOrder(t, db, func(o *models.Order) {
		o.Status = enums.OrderStatusPaid
		o.ExpiresAt = &past
	})

	rows, err := repo.FindExpiredOrders(ctx, time.Now(), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, enums.OrderStatusInitiated, row.Status)
		assert.NotEmpty(t, row.Items, "expected line items preloaded")
	}
}

func TestFindPaymentBySession(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, nil)
	sessionID := "cs_" + uuid.NewString()[:8]
	payment := &models.Payment{
		OrderID:           order.ID,
		VendorID:          order.VendorID,
		Provider:          enums.ProviderPaylink,
		ProviderSessionID: &sessionID,
		MerchantReference: "mref-1",
		AmountCents:       10000,
	}
	_, err := repo.CreatePayment(ctx, payment)
	require.NoError(t, err)

	found, err := repo.FindPaymentBySession(ctx, enums.ProviderPaylink, sessionID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.OrderID)

	_, err = repo.FindPaymentBySession(ctx, enums.ProviderOrbitpay, sessionID)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestFindPaymentByOrderReturnsLatestAttempt(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, nil)
	first := &models.Payment{
		OrderID:           order.ID,
		VendorID:          order.VendorID,
		Provider:          enums.ProviderPaylink,
		MerchantReference: "mref-a1",
		AmountCents:       10000,
		Status:            enums.PaymentStatusFailed,
		CreatedAt:         time.Now().Add(-time.Hour),
	}
	_, err := repo.CreatePayment(ctx, first)
	require.NoError(t, err)
	second := &models.Payment{
		OrderID:           order.ID,
		VendorID:          order.VendorID,
		Provider:          enums.ProviderOrbitpay,
		MerchantReference: "mref-a2",
		AmountCents:       10000,
		Status:            enums.PaymentStatusInitiated,
		CreatedAt:         time.Now(),
	}
	_, err = repo.CreatePayment(ctx, second)
	require.NoError(t, err)

	found, err := repo.FindPaymentByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)

	loaded, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Payment)
	assert.Equal(t, second.ID, loaded.Payment.ID)
}

func TestFindDeliveredBefore(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	oldDelivery := time.Now().Add(-14 * 24 * time.Hour)
	recentDelivery := time.Now().Add(-time.Hour)

	eligible := seedOrder(t, db, func(o *models.Order) {
		o.Status = enums.OrderStatusDelivered
		o.DeliveredAt = &oldDelivery
	})
	seedOrder(t, db, func(o *models.Order) {
		o.Status = enums.OrderStatusDelivered
		o.DeliveredAt = &recentDelivery
	})

	rows, err := repo.FindDeliveredBefore(ctx, time.Now().Add(-7*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, eligible.ID, rows[0].ID)
}

func TestUpdateOrder(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedOrder(t, db, nil)
	require.NoError(t, repo.UpdateOrder(ctx, order.ID, map[string]any{"status": enums.OrderStatusInitiated}))

	reloaded, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusInitiated, reloaded.Status)
}
