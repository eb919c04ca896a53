package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/luisorozco/mercaflow-backend/internal/escrow"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

const (
	defaultAutoReleaseAfter = 7 * 24 * time.Hour
	defaultAutoReleaseBatch = 50
)

type escrowReleaser interface {
	Release(ctx context.Context, orderID uuid.UUID, trigger enums.ReleaseTrigger) (*escrow.ReleaseOutcome, error)
}

// AutoReleaseJobParams configure the delivered-order auto release job.
type AutoReleaseJobParams struct {
	Logger    *logger.Logger
	Orders    orders.Repository
	Escrow    escrowReleaser
	After     time.Duration
	BatchSize int
}

// NewAutoReleaseJob builds the job that releases escrow for orders left
// delivered past the protection window.
func NewAutoReleaseJob(params AutoReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow service required")
	}
	after := params.After
	if after <= 0 {
		after = defaultAutoReleaseAfter
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultAutoReleaseBatch
	}
	return &autoReleaseJob{
		logg:      params.Logger,
		orders:    params.Orders,
		escrow:    params.Escrow,
		after:     after,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type autoReleaseJob struct {
	logg      *logger.Logger
	orders    orders.Repository
	escrow    escrowReleaser
	after     time.Duration
	batchSize int
	now       func() time.Time
}

func (j *autoReleaseJob) Name() string { return "escrow-auto-release" }

func (j *autoReleaseJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	delivered, err := j.orders.FindDeliveredBefore(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list delivered orders: %w", err)
	}

	var errs error
	released := 0
	for i := range delivered {
		order := delivered[i]
		logCtx := j.logg.WithOrderID(ctx, order.ID.String())

		outcome, err := j.escrow.Release(ctx, order.ID, enums.ReleaseTriggerAuto)
		if err != nil {
			// A pending claim means another caller is on it or a prior
			// attempt needs operator reconciliation. Not this job's problem.
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
				continue
			}
			j.logg.Error(logCtx, "auto release failed", err)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if !outcome.AlreadyReleased {
			released++
		}
	}

	if released > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{"released": released})
		j.logg.Info(logCtx, "auto release sweep complete")
	}
	return errs
}
