package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/internal/inventory"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox/payloads"
)

const defaultExpiryBatchSize = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ExpiryJobParams configure the reservation expiry sweeper.
type ExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    orders.Repository
	Inventory *inventory.Service
	Outbox    outboxEmitter
	BatchSize int
}

// NewExpiryJob builds the job that cancels orders whose payment session
// expired and returns their reserved stock.
func NewExpiryJob(params ExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultExpiryBatchSize
	}
	return &expiryJob{
		logg:      params.Logger,
		db:        params.DB,
		orders:    params.Orders,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type expiryJob struct {
	logg      *logger.Logger
	db        txRunner
	orders    orders.Repository
	inventory *inventory.Service
	outbox    outboxEmitter
	batchSize int
	now       func() time.Time
}

func (j *expiryJob) Name() string { return "reservation-expiry" }

// Run sweeps one batch of expired orders. Each order is handled in its
// own transaction so one failure cannot abort the rest of the batch.
func (j *expiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expired, err := j.orders.FindExpiredOrders(ctx, now, j.batchSize)
	if err != nil {
		return fmt.Errorf("list expired orders: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	var errs error
	cancelled := 0
	for i := range expired {
		order := expired[i]
		if err := j.expire(ctx, order.ID, now); err != nil {
			logCtx := j.logg.WithOrderID(ctx, order.ID.String())
			j.logg.Error(logCtx, "expiring order failed", err)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		cancelled++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"matched":   len(expired),
		"cancelled": cancelled,
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return errs
}

func (j *expiryJob) expire(ctx context.Context, orderID uuid.UUID, now time.Time) error {
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.orders.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return err
		}
		// A webhook may have settled the order after the sweep query.
		if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusInitiated {
			return nil
		}

		if err := j.inventory.ReleaseOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": now,
		}); err != nil {
			return err
		}

		return j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderExpired,
			AggregateType: enums.OutboxAggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderExpiredEvent{
				OrderID:   order.ID,
				VendorID:  order.VendorID,
				ExpiredAt: now,
			},
		})
	})
}
