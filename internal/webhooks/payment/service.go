package paymentwebhook

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/internal/inventory"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
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

// ServiceParams groups dependencies for the payment webhook service.
type ServiceParams struct {
	TransactionRunner txRunner
	OrdersRepo        orders.Repository
	Inventory         *inventory.Service
	LogRepo           webhooks.LogRepository
	Outbox            outboxEmitter
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
}

// Service settles payments from provider webhooks. Every event lands in
// the webhook ledger exactly once; the stored outcome decides whether a
// redelivery is replayed or ignored.
type Service struct {
	tx        txRunner
	repo      orders.Repository
	inventory *inventory.Service
	logRepo   webhooks.LogRepository
	outbox    outboxEmitter
	metrics   *metrics.WebhookMetrics
	logg      *logger.Logger
	nowFunc   func() time.Time
}

// NewService wires the payment webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.LogRepo == nil {
		return nil, fmt.Errorf("webhook log repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		tx:        params.TransactionRunner,
		repo:      params.OrdersRepo,
		inventory: params.Inventory,
		logRepo:   params.LogRepo,
		outbox:    params.Outbox,
		metrics:   params.Metrics,
		logg:      params.Logger,
		nowFunc:   time.Now,
	}, nil
}

// HandleEvent processes one normalized provider event. The raw payload is
// kept on the ledger row for replay and audit.
func (s *Service) HandleEvent(ctx context.Context, provider enums.PaymentProvider, event *ProviderEvent, rawPayload []byte) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	start := s.nowFunc()
	logCtx := s.logg.WithProvider(ctx, provider.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"event_id": event.EventID, "status": event.RawStatus})

	existing, err := s.logRepo.Find(ctx, provider, event.EventID)
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

	processErr := s.settle(ctx, provider, event, rawPayload)
	s.recordOutcome(ctx, provider, event, rawPayload, processErr, s.nowFunc().Sub(start))

	if processErr != nil {
		s.logg.Error(logCtx, "webhook processing failed", processErr)
		return processErr
	}
	s.logg.Info(logCtx, "webhook processed")
	return nil
}

func (s *Service) recordOutcome(ctx context.Context, provider enums.PaymentProvider, event *ProviderEvent, rawPayload []byte, processErr error, elapsed time.Duration) {
	outcome := enums.WebhookOutcomeSuccess
	var errText *string
	if processErr != nil {
		outcome = enums.WebhookOutcomeFailed
		msg := processErr.Error()
		errText = &msg
	}

	log := &models.WebhookLog{
		Provider:   provider,
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
		s.metrics.ObserveProcessing(provider.String(), outcome.String(), elapsed)
	}
}

// matchPayment finds the payment the event refers to, trying session id,
// then provider payment id, then the merchant reference.
func (s *Service) matchPayment(ctx context.Context, repo orders.Repository, provider enums.PaymentProvider, event *ProviderEvent) (*models.Payment, error) {
	if event.SessionID != "" {
		payment, err := repo.FindPaymentBySession(ctx, provider, event.SessionID)
		if err == nil {
			return payment, nil
		}
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
			return nil, err
		}
	}
	if event.PaymentID != "" {
		payment, err := repo.FindPaymentByProviderPaymentID(ctx, provider, event.PaymentID)
		if err == nil {
			return payment, nil
		}
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
			return nil, err
		}
	}
	if event.Reference != "" {
		order, err := repo.FindOrderByReference(ctx, event.Reference)
		if err == nil {
			if order.Payment != nil {
				return order.Payment, nil
			}
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has no payment session")
		}
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
			return nil, err
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment matches webhook event")
}

func (s *Service) settle(ctx context.Context, provider enums.PaymentProvider, event *ProviderEvent, rawPayload []byte) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := s.matchPayment(ctx, repo, provider, event)
		if err != nil {
			return err
		}
		order, err := repo.FindOrder(ctx, payment.OrderID)
		if err != nil {
			return err
		}

		switch event.Status {
		case enums.PaymentStatusSucceeded:
			return s.settleSuccess(ctx, tx, repo, order, payment, event, rawPayload)
		case enums.PaymentStatusFailed:
			return s.settleFailure(ctx, tx, repo, order, payment, event, rawPayload)
		default:
			return s.settleIntermediate(ctx, repo, order, payment, event, rawPayload)
		}
	})
}

// settleIntermediate records an in-flight provider status. The payment
// stays at initiated and the order drops back to pending until a
// terminal event arrives. Stock is untouched.
func (s *Service) settleIntermediate(ctx context.Context, repo orders.Repository, order *models.Order, payment *models.Payment, event *ProviderEvent, rawPayload []byte) error {
	if payment.Status != enums.PaymentStatusInitiated {
		// A late intermediate event must not regress a settled payment.
		return nil
	}

	updates := map[string]any{
		"status":      enums.PaymentStatusInitiated,
		"raw_payload": rawPayload,
	}
	if event.PaymentID != "" {
		updates["provider_payment_id"] = event.PaymentID
	}
	if err := repo.UpdatePayment(ctx, payment.ID, updates); err != nil {
		return err
	}
	return repo.UpdateOrder(ctx, order.ID, map[string]any{"status": enums.OrderStatusPending})
}

func (s *Service) settleSuccess(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, payment *models.Payment, event *ProviderEvent, rawPayload []byte) error {
	if payment.Status == enums.PaymentStatusSucceeded {
		return nil
	}

	now := s.nowFunc().UTC()
	updates := map[string]any{
		"status":       enums.PaymentStatusSucceeded,
		"confirmed_at": now,
		"raw_payload":  rawPayload,
	}
	if event.PaymentID != "" {
		updates["provider_payment_id"] = event.PaymentID
	}
	if err := repo.UpdatePayment(ctx, payment.ID, updates); err != nil {
		return err
	}

	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"status": enums.OrderStatusPaid}); err != nil {
		return err
	}

	// Reserved stock becomes a permanent decrement. No-op when the
	// reservation was already settled by an earlier delivery.
	if err := s.inventory.CommitOrder(ctx, tx, order); err != nil {
		return err
	}

	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.OutboxEventOrderPaid,
		AggregateType: enums.OutboxAggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:     order.ID,
			VendorID:    order.VendorID,
			PaymentID:   payment.ID,
			AmountCents: payment.AmountCents,
			Currency:    payment.Currency.String(),
		},
	})
}

func (s *Service) settleFailure(ctx context.Context, tx *gorm.DB, repo orders.Repository, order *models.Order, payment *models.Payment, event *ProviderEvent, rawPayload []byte) error {
	if payment.Status == enums.PaymentStatusFailed {
		return nil
	}
	if payment.Status == enums.PaymentStatusSucceeded {
		// A failure after settlement is a provider inconsistency, not a
		// reason to claw back stock.
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already settled as succeeded")
	}

	updates := map[string]any{
		"status":      enums.PaymentStatusFailed,
		"raw_payload": rawPayload,
	}
	if event.FailureReason != "" {
		updates["failure_reason"] = event.FailureReason
	}
	if err := repo.UpdatePayment(ctx, payment.ID, updates); err != nil {
		return err
	}

	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"status": enums.OrderStatusFailed}); err != nil {
		return err
	}

	return s.inventory.ReleaseOrder(ctx, tx, order)
}
