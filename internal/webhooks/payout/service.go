package payoutwebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/internal/ledger"
	"github.com/luisorozco/mercaflow-backend/internal/payouts"
	"github.com/luisorozco/mercaflow-backend/internal/webhooks"
	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/metrics"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the payout webhook service.
type ServiceParams struct {
	TransactionRunner txRunner
	PayoutsRepo       payouts.Repository
	LogRepo           webhooks.LogRepository
	Ledger            ledger.Service
	Outbox            outboxEmitter
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
}

// Service confirms payout completion or failure from rail webhooks. The
// processor leaves payouts in processing; only these events finish them.
type Service struct {
	tx      txRunner
	repo    payouts.Repository
	logRepo webhooks.LogRepository
	ledger  ledger.Service
	outbox  outboxEmitter
	metrics *metrics.WebhookMetrics
	logg    *logger.Logger
	nowFunc func() time.Time
}

// NewService wires the payout webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.PayoutsRepo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.LogRepo == nil {
		return nil, fmt.Errorf("webhook log repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		tx:      params.TransactionRunner,
		repo:    params.PayoutsRepo,
		logRepo: params.LogRepo,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		nowFunc: time.Now,
	}, nil
}

// HandleEvent processes one normalized payout event.
func (s *Service) HandleEvent(ctx context.Context, event *PayoutEvent, rawPayload []byte) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	start := s.nowFunc()
	logCtx := s.logg.WithProvider(ctx, enums.ProviderEscrow.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"event_id": event.EventID, "status": event.RawStatus})

	existing, err := s.logRepo.Find(ctx, enums.ProviderEscrow, event.EventID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup webhook ledger")
	}
	if existing != nil && existing.Outcome == enums.WebhookOutcomeSuccess {
		s.logg.Info(logCtx, "duplicate delivery ignored")
		return nil
	}
	if existing != nil {
		s.logg.Info(logCtx, "reprocessing previously failed event")
	}

	processErr := s.confirm(ctx, event)
	s.recordOutcome(ctx, event, rawPayload, processErr, s.nowFunc().Sub(start))

	if processErr != nil {
		s.logg.Error(logCtx, "webhook processing failed", processErr)
		return processErr
	}
	s.logg.Info(logCtx, "webhook processed")
	return nil
}

func (s *Service) recordOutcome(ctx context.Context, event *PayoutEvent, rawPayload []byte, processErr error, elapsed time.Duration) {
	outcome := enums.WebhookOutcomeSuccess
	var errText *string
	if processErr != nil {
		outcome = enums.WebhookOutcomeFailed
		msg := processErr.Error()
		errText = &msg
	}

	log := &models.WebhookLog{
		Provider:   enums.ProviderEscrow,
		EventID:    event.EventID,
		EventType:  event.EventType,
		Outcome:    outcome,
		ErrorText:  errText,
		DurationMS: elapsed.Milliseconds(),
		Payload:    rawPayload,
	}
	if err := s.logRepo.Record(ctx, log); err != nil {
		s.logg.Error(ctx, "recording webhook ledger row failed", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveProcessing(enums.ProviderEscrow.String(), outcome.String(), elapsed)
	}
}

func (s *Service) confirm(ctx context.Context, event *PayoutEvent) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindByProviderPayoutID(ctx, event.PayoutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payout")
		}
		if payout == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no payout matches webhook event")
		}

		switch event.Status {
		case enums.PayoutStatusCompleted:
			return s.confirmCompleted(ctx, tx, repo, payout)
		case enums.PayoutStatusFailed:
			return s.confirmFailed(ctx, tx, repo, payout, event)
		default:
			return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payout status")
		}
	})
}

func (s *Service) confirmCompleted(ctx context.Context, tx *gorm.DB, repo payouts.Repository, payout *models.VendorPayout) error {
	if payout.Status == enums.PayoutStatusCompleted {
		return nil
	}

	now := s.nowFunc().UTC()
	payout.Status = enums.PayoutStatusCompleted
	payout.CompletedAt = &now
	payout.FailureReason = nil
	if err := repo.Update(ctx, payout); err != nil {
		return err
	}

	if err := s.appendLedger(ctx, tx, payout, enums.LedgerPayoutCompleted, ""); err != nil {
		return err
	}

	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.OutboxEventPayoutCompleted,
		AggregateType: enums.OutboxAggregatePayout,
		AggregateID:   payout.ID,
		Data: payloads.PayoutCompletedEvent{
			PayoutID:         payout.ID,
			OrderID:          payout.OrderID,
			VendorID:         payout.VendorID,
			ProviderPayoutID: derefString(payout.ProviderPayoutID),
		},
	})
}

func (s *Service) confirmFailed(ctx context.Context, tx *gorm.DB, repo payouts.Repository, payout *models.VendorPayout, event *PayoutEvent) error {
	if payout.Status == enums.PayoutStatusFailed {
		return nil
	}
	if payout.Status == enums.PayoutStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payout already completed")
	}

	payout.Status = enums.PayoutStatusFailed
	if event.FailureReason != "" {
		reason := event.FailureReason
		payout.FailureReason = &reason
	}
	if err := repo.Update(ctx, payout); err != nil {
		return err
	}

	if err := s.appendLedger(ctx, tx, payout, enums.LedgerPayoutFailed, event.FailureReason); err != nil {
		return err
	}

	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.OutboxEventPayoutFailed,
		AggregateType: enums.OutboxAggregatePayout,
		AggregateID:   payout.ID,
		Data: payloads.PayoutFailedEvent{
			PayoutID: payout.ID,
			OrderID:  payout.OrderID,
			VendorID: payout.VendorID,
			Reason:   event.FailureReason,
		},
	})
}

func (s *Service) appendLedger(ctx context.Context, tx *gorm.DB, payout *models.VendorPayout, eventType enums.LedgerEventType, reason string) error {
	metadata, err := json.Marshal(map[string]any{
		"payout_id":          payout.ID,
		"provider_payout_id": derefString(payout.ProviderPayoutID),
		"reason":             reason,
	})
	if err != nil {
		return err
	}
	ledgerSvc := s.ledger.WithTx(ledger.NewRepository(tx))
	_, err = ledgerSvc.RecordEvent(ctx, ledger.RecordEventInput{
		OrderID:     payout.OrderID,
		VendorID:    &payout.VendorID,
		Type:        eventType,
		AmountCents: payout.AmountCents,
		Metadata:    metadata,
	})
	return err
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
