package escrow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/internal/commission"
	"github.com/luisorozco/mercaflow-backend/internal/ledger"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type releaseClient interface {
	Release(ctx context.Context, req ReleaseRequest) (*ReleaseResult, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams groups dependencies for the escrow release orchestrator.
type ServiceParams struct {
	TransactionRunner txRunner
	Repo              Repository
	OrdersRepo        orders.Repository
	Commission        *commission.Service
	Ledger            ledger.Service
	Client            releaseClient
	Outbox            outboxEmitter
	Logger            *logger.Logger
}

// Service orchestrates escrow releases. The pending release row claimed
// before the provider call is what makes the operation exactly-once:
// concurrent callers race on the order id unique index and all but one
// lose.
type Service struct {
	tx         txRunner
	repo       Repository
	ordersRepo orders.Repository
	commission *commission.Service
	ledger     ledger.Service
	client     releaseClient
	outbox     outboxEmitter
	logg       *logger.Logger
	nowFunc    func() time.Time
}

// NewService wires the escrow release orchestrator.
func NewService(params ServiceParams) (*Service, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Commission == nil {
		return nil, fmt.Errorf("commission service required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("escrow client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		tx:         params.TransactionRunner,
		repo:       params.Repo,
		ordersRepo: params.OrdersRepo,
		commission: params.Commission,
		ledger:     params.Ledger,
		client:     params.Client,
		outbox:     params.Outbox,
		logg:       params.Logger,
		nowFunc:    time.Now,
	}, nil
}

// ReleaseOutcome reports what a release request ended up doing.
type ReleaseOutcome struct {
	Release         *models.EscrowRelease `json:"release"`
	Payout          *models.VendorPayout  `json:"payout,omitempty"`
	AlreadyReleased bool                  `json:"already_released"`
}

// Release moves an order's escrowed funds to the vendor and platform.
// Only delivered orders are eligible; the admin trigger may override
// delivery but nothing else. Repeating a completed release is a no-op.
func (s *Service) Release(ctx context.Context, orderID uuid.UUID, trigger enums.ReleaseTrigger) (*ReleaseOutcome, error) {
	if !trigger.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid release trigger")
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{"trigger": trigger.String()})

	order, err := s.ordersRepo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup escrow release")
	}
	if existing != nil {
		if existing.Status == enums.EscrowReleaseCompleted {
			s.logg.Info(logCtx, "escrow already released")
			return &ReleaseOutcome{Release: existing, AlreadyReleased: true}, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow release already in progress")
	}

	if err := s.checkEligibility(order, trigger); err != nil {
		return nil, err
	}

	breakdown, err := s.commission.Calculate(ctx, order)
	if err != nil {
		// Fail closed: no funds move without a computed split.
		return nil, err
	}

	release := &models.EscrowRelease{
		ID:            uuid.New(),
		OrderID:       order.ID,
		VendorID:      order.VendorID,
		TotalCents:    order.TotalCents,
		VendorCents:   breakdown.VendorCents,
		PlatformCents: breakdown.CommissionCents,
		Trigger:       trigger,
		Status:        enums.EscrowReleasePending,
	}
	release.IdempotencyKey = fmt.Sprintf("escrow-%s-%s", order.ID, release.ID)

	claimed, err := s.repo.Claim(ctx, release)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim escrow release")
	}
	if !claimed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow release already in progress")
	}

	vendor, err := s.ordersRepo.FindVendor(ctx, order.VendorID)
	if err != nil {
		_ = s.repo.Delete(ctx, release.ID)
		return nil, err
	}
	recipientID := ""
	if vendor.PayoutRecipientID != nil {
		recipientID = *vendor.PayoutRecipientID
	}

	result, err := s.client.Release(ctx, ReleaseRequest{
		IdempotencyKey:    release.IdempotencyKey,
		ProviderPaymentID: *order.Payment.ProviderPaymentID,
		OrderReference:    order.Reference,
		TotalCents:        release.TotalCents,
		VendorCents:       release.VendorCents,
		PlatformCents:     release.PlatformCents,
		Currency:          order.Currency.String(),
		RecipientID:       recipientID,
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeUnknownOutcome {
			// Funds may have moved. The pending row stays to block
			// retries until the outcome is reconciled by an operator.
			s.logg.Error(logCtx, "escrow release outcome unknown", err)
			return nil, err
		}
		if deleteErr := s.repo.Delete(ctx, release.ID); deleteErr != nil {
			s.logg.Error(logCtx, "removing failed release claim", deleteErr)
		}
		return nil, err
	}

	var payout *models.VendorPayout
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		now := s.nowFunc().UTC()
		providerReleaseID := result.ProviderReleaseID
		release.Status = enums.EscrowReleaseCompleted
		release.ProviderReleaseID = &providerReleaseID
		release.ReleasedAt = &now
		if err := repo.Update(ctx, release); err != nil {
			return err
		}

		if _, err := s.commission.Record(ctx, tx, order, breakdown); err != nil {
			return err
		}
		if err := s.commission.MarkRecorded(ctx, tx, order.ID); err != nil {
			return err
		}

		payout = &models.VendorPayout{
			ID:              uuid.New(),
			EscrowReleaseID: release.ID,
			OrderID:         order.ID,
			VendorID:        order.VendorID,
			AmountCents:     release.VendorCents,
			Currency:        order.Currency,
			Status:          enums.PayoutStatusPending,
		}
		if recipientID != "" {
			payout.RecipientID = &recipientID
		}
		if err := repo.CreatePayout(ctx, payout); err != nil {
			return err
		}

		metadata, err := json.Marshal(map[string]any{
			"trigger":             trigger,
			"provider_release_id": providerReleaseID,
			"vendor_cents":        release.VendorCents,
			"platform_cents":      release.PlatformCents,
		})
		if err != nil {
			return err
		}
		ledgerSvc := s.ledger.WithTx(ledger.NewRepository(tx))
		if _, err := ledgerSvc.RecordEvent(ctx, ledger.RecordEventInput{
			OrderID:     order.ID,
			VendorID:    &order.VendorID,
			Type:        enums.LedgerEscrowReleased,
			AmountCents: release.VendorCents,
			Metadata:    metadata,
		}); err != nil {
			return err
		}

		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventEscrowReleased,
			AggregateType: enums.OutboxAggregateEscrow,
			AggregateID:   release.ID,
			Data: payloads.EscrowReleasedEvent{
				OrderID:         order.ID,
				EscrowReleaseID: release.ID,
				VendorID:        order.VendorID,
				VendorCents:     release.VendorCents,
				PlatformCents:   release.PlatformCents,
			},
		}); err != nil {
			return err
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPayoutRequested,
			AggregateType: enums.OutboxAggregatePayout,
			AggregateID:   payout.ID,
			Data: payloads.PayoutRequestedEvent{
				PayoutID:    payout.ID,
				OrderID:     order.ID,
				VendorID:    order.VendorID,
				AmountCents: payout.AmountCents,
				Currency:    payout.Currency.String(),
			},
		})
	})
	if err != nil {
		// The provider release went through but local state did not
		// settle. The pending row blocks a second provider call.
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist escrow release")
	}

	s.logg.Info(logCtx, "escrow released")
	return &ReleaseOutcome{Release: release, Payout: payout}, nil
}

func (s *Service) checkEligibility(order *models.Order, trigger enums.ReleaseTrigger) error {
	if trigger == enums.ReleaseTriggerAdmin {
		// Admin override still requires settled funds, checked below.
		if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order funds are not settled").
				WithDetails(map[string]string{"status": order.Status.String()})
		}
	} else if order.Status != enums.OrderStatusDelivered {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not delivered").
			WithDetails(map[string]string{"status": order.Status.String()})
	}

	if order.Payment == nil ||
		order.Payment.Status != enums.PaymentStatusSucceeded ||
		order.Payment.ProviderPaymentID == nil {
		return pkgerrors.New(pkgerrors.CodePaymentUnconfirmed, "payment is not confirmed by the provider")
	}
	return nil
}
