package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/internal/payouts"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox/payloads"
)

const (
	defaultPayoutStuckAfter     = 15 * time.Minute
	defaultPayoutReconcileBatch = 50
)

type payoutRequester interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PayoutReconcileJobParams configure the stuck-payout reconciliation job.
type PayoutReconcileJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Payouts    payouts.Repository
	Outbox     payoutRequester
	StuckAfter time.Duration
	BatchSize  int
}

// NewPayoutReconcileJob builds the job that re-requests payouts left
// pending past the threshold, covering lost payout.requested messages.
func NewPayoutReconcileJob(params PayoutReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	stuckAfter := params.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = defaultPayoutStuckAfter
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultPayoutReconcileBatch
	}
	return &payoutReconcileJob{
		logg:       params.Logger,
		db:         params.DB,
		payouts:    params.Payouts,
		outbox:     params.Outbox,
		stuckAfter: stuckAfter,
		batchSize:  batchSize,
		now:        time.Now,
	}, nil
}

type payoutReconcileJob struct {
	logg       *logger.Logger
	db         txRunner
	payouts    payouts.Repository
	outbox     payoutRequester
	stuckAfter time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *payoutReconcileJob) Name() string { return "payout-reconcile" }

// Run re-emits payout.requested for stuck pending payouts. Delivery is
// at-least-once; the processor's pending guard absorbs duplicates.
func (j *payoutReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.stuckAfter)
	stuck, err := j.payouts.FindStuckPending(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stuck payouts: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}

	var errs error
	requested := 0
	for i := range stuck {
		payout := stuck[i]
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.OutboxEventPayoutRequested,
				AggregateType: enums.OutboxAggregatePayout,
				AggregateID:   payout.ID,
				Data: payloads.PayoutRequestedEvent{
					PayoutID:    payout.ID,
					OrderID:     payout.OrderID,
					VendorID:    payout.VendorID,
					AmountCents: payout.AmountCents,
					Currency:    payout.Currency.String(),
				},
			})
		})
		if err != nil {
			logCtx := j.logg.WithFields(ctx, map[string]any{"payout_id": payout.ID.String()})
			j.logg.Error(logCtx, "re-requesting payout failed", err)
			errs = multierr.Append(errs, fmt.Errorf("payout %s: %w", payout.ID, err))
			continue
		}
		requested++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stuck":        len(stuck),
		"re_requested": requested,
	})
	j.logg.Info(logCtx, "payout reconciliation complete")
	return errs
}
