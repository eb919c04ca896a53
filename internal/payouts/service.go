package payouts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/internal/ledger"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type payoutClient interface {
	InitiatePayout(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
}

// ServiceParams groups dependencies for the payout processor.
type ServiceParams struct {
	TransactionRunner txRunner
	Repo              Repository
	OrdersRepo        orders.Repository
	Client            payoutClient
	Ledger            ledger.Service
	Logger            *logger.Logger
}

// Service initiates vendor payouts. Completion is confirmed only by the
// payout webhook; the processor never polls.
type Service struct {
	tx         txRunner
	repo       Repository
	ordersRepo orders.Repository
	client     payoutClient
	ledger     ledger.Service
	logg       *logger.Logger
	nowFunc    func() time.Time
}

// NewService wires the payout processor.
func NewService(params ServiceParams) (*Service, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("payout client required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		tx:         params.TransactionRunner,
		repo:       params.Repo,
		ordersRepo: params.OrdersRepo,
		client:     params.Client,
		ledger:     params.Ledger,
		logg:       params.Logger,
		nowFunc:    time.Now,
	}, nil
}

// ProcessOutcome reports what processing a payout ended up doing.
type ProcessOutcome struct {
	Payout  *models.VendorPayout `json:"payout"`
	Skipped bool                 `json:"skipped"`
}

// Process initiates a pending payout. A payout in any other status is a
// no-op, which makes duplicate triggers harmless. A vendor without a
// payout recipient parks the payout on hold for an operator.
func (s *Service) Process(ctx context.Context, payoutID uuid.UUID) (*ProcessOutcome, error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{"payout_id": payoutID.String()})

	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payout")
	}
	if payout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	logCtx = s.logg.WithVendorID(s.logg.WithOrderID(logCtx, payout.OrderID.String()), payout.VendorID.String())

	if payout.Status != enums.PayoutStatusPending {
		s.logg.Info(logCtx, "payout not pending, skipping")
		return &ProcessOutcome{Payout: payout, Skipped: true}, nil
	}

	recipientID, err := s.resolveRecipient(ctx, payout)
	if err != nil {
		return nil, err
	}
	if recipientID == "" {
		reason := "vendor has no payout recipient"
		if holdErr := s.mark(ctx, payout, enums.PayoutStatusOnHold, reason); holdErr != nil {
			return nil, holdErr
		}
		s.logg.Warn(logCtx, "payout parked on hold")
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, reason)
	}

	order, err := s.ordersRepo.FindOrder(ctx, payout.OrderID)
	if err != nil {
		return nil, err
	}

	result, err := s.client.InitiatePayout(ctx, InitiateRequest{
		IdempotencyKey: fmt.Sprintf("payout-%s", payout.ID),
		RecipientID:    recipientID,
		AmountCents:    payout.AmountCents,
		Currency:       payout.Currency.String(),
		OrderReference: order.Reference,
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeUnknownOutcome {
			// The transfer may have been accepted. Hold the payout so
			// reconciliation cannot re-trigger it blindly.
			if holdErr := s.mark(ctx, payout, enums.PayoutStatusOnHold, "provider outcome unknown: "+err.Error()); holdErr != nil {
				return nil, holdErr
			}
			s.logg.Error(logCtx, "payout outcome unknown", err)
			return nil, err
		}
		if failErr := s.mark(ctx, payout, enums.PayoutStatusFailed, err.Error()); failErr != nil {
			return nil, failErr
		}
		s.logg.Error(logCtx, "payout initiation failed", err)
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		now := s.nowFunc().UTC()
		providerPayoutID := result.ProviderPayoutID
		payout.Status = enums.PayoutStatusProcessing
		payout.ProviderPayoutID = &providerPayoutID
		payout.RecipientID = &recipientID
		payout.InitiatedAt = &now
		payout.FailureReason = nil
		if err := repo.Update(ctx, payout); err != nil {
			return err
		}

		metadata, err := json.Marshal(map[string]any{
			"payout_id":          payout.ID,
			"provider_payout_id": providerPayoutID,
			"recipient_id":       recipientID,
		})
		if err != nil {
			return err
		}
		ledgerSvc := s.ledger.WithTx(ledger.NewRepository(tx))
		_, err = ledgerSvc.RecordEvent(ctx, ledger.RecordEventInput{
			OrderID:     payout.OrderID,
			VendorID:    &payout.VendorID,
			Type:        enums.LedgerPayoutInitiated,
			AmountCents: payout.AmountCents,
			Metadata:    metadata,
		})
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist payout initiation")
	}

	s.logg.Info(logCtx, "payout initiated")
	return &ProcessOutcome{Payout: payout}, nil
}

func (s *Service) resolveRecipient(ctx context.Context, payout *models.VendorPayout) (string, error) {
	if payout.RecipientID != nil && *payout.RecipientID != "" {
		return *payout.RecipientID, nil
	}
	vendor, err := s.ordersRepo.FindVendor(ctx, payout.VendorID)
	if err != nil {
		return "", err
	}
	if vendor.PayoutRecipientID == nil {
		return "", nil
	}
	return *vendor.PayoutRecipientID, nil
}

func (s *Service) mark(ctx context.Context, payout *models.VendorPayout, status enums.PayoutStatus, reason string) error {
	payout.Status = status
	payout.FailureReason = &reason
	if err := s.repo.Update(ctx, payout); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
	}
	return nil
}
