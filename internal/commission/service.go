package commission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/internal/ledger"
	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

var oneHundred = decimal.NewFromInt(100)

// Breakdown is the computed commission split for an order.
type Breakdown struct {
	ConfigID        uuid.UUID
	Scope           enums.CommissionScope
	BaseCents       int64
	RatePct         *decimal.Decimal
	CommissionCents int64
	VendorCents     int64
}

// Service computes and records commission splits.
type Service struct {
	repo   Repository
	ledger ledger.Service
	logg   *logger.Logger
}

// NewService wires the commission engine.
func NewService(repo Repository, ledgerSvc ledger.Service, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, ledger: ledgerSvc, logg: logg}, nil
}

// Calculate resolves the applicable commission rule for the order and
// computes the split. The order must be claimed by a user before any
// funds can be attributed.
func (s *Service) Calculate(ctx context.Context, order *models.Order) (*Breakdown, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if order.UserID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeOrderUnclaimed, "order has no claimed user")
	}

	config, err := s.resolveConfig(ctx, order)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, pkgerrors.New(pkgerrors.CodeCommissionConfig, "no active commission rule matches order").
			WithDetails(map[string]string{"order_id": order.ID.String()})
	}

	return computeBreakdown(order.TotalCents, config)
}

// resolveConfig walks the precedence chain: a vendor-specific rule wins,
// then a rule for the first line item's category, then the platform default.
func (s *Service) resolveConfig(ctx context.Context, order *models.Order) (*models.CommissionConfig, error) {
	config, err := s.repo.FindActiveVendorConfig(ctx, order.VendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup vendor commission rule")
	}
	if config != nil {
		return config, nil
	}

	if len(order.Items) > 0 && order.Items[0].Category != "" {
		config, err = s.repo.FindActiveCategoryConfig(ctx, order.Items[0].Category)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup category commission rule")
		}
		if config != nil {
			return config, nil
		}
	}

	config, err = s.repo.FindActivePlatformConfig(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup platform commission rule")
	}
	return config, nil
}

func computeBreakdown(totalCents int64, config *models.CommissionConfig) (*Breakdown, error) {
	breakdown := &Breakdown{
		ConfigID:  config.ID,
		Scope:     config.Scope,
		BaseCents: totalCents,
		RatePct:   config.RatePct,
	}

	switch {
	case config.RatePct != nil:
		rate := *config.RatePct
		if rate.IsNegative() || rate.GreaterThan(oneHundred) {
			return nil, pkgerrors.New(pkgerrors.CodeCommissionConfig, "commission rate out of range")
		}
		// Round half-up to whole cents. Any sub-cent remainder stays on the
		// platform side because vendor cents are derived by subtraction.
		commission := decimal.NewFromInt(totalCents).Mul(rate).Div(oneHundred).Round(0)
		breakdown.CommissionCents = commission.IntPart()
	case config.FixedCents != nil:
		fixed := *config.FixedCents
		if fixed < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeCommissionConfig, "fixed commission is negative")
		}
		if fixed > totalCents {
			fixed = totalCents
		}
		breakdown.CommissionCents = fixed
	default:
		return nil, pkgerrors.New(pkgerrors.CodeCommissionConfig, "commission rule has neither rate nor fixed amount")
	}

	breakdown.VendorCents = totalCents - breakdown.CommissionCents
	return breakdown, nil
}

// Record persists the split for the order and appends the audit event.
// Safe to call again for the same order: the row is upserted on order id.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, order *models.Order, breakdown *Breakdown) (*models.PlatformCommission, error) {
	if order == nil || breakdown == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order and breakdown required")
	}

	repo := s.repo.WithTx(tx)
	commission := &models.PlatformCommission{
		OrderID:         order.ID,
		VendorID:        order.VendorID,
		ConfigID:        breakdown.ConfigID,
		Scope:           breakdown.Scope,
		BaseCents:       breakdown.BaseCents,
		RatePct:         breakdown.RatePct,
		CommissionCents: breakdown.CommissionCents,
		VendorCents:     breakdown.VendorCents,
		Status:          enums.CommissionStatusPending,
	}
	if err := repo.UpsertCommission(ctx, commission); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record commission")
	}

	metadata, err := json.Marshal(map[string]any{
		"scope":            breakdown.Scope,
		"base_cents":       breakdown.BaseCents,
		"commission_cents": breakdown.CommissionCents,
		"vendor_cents":     breakdown.VendorCents,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode commission metadata")
	}

	ledgerSvc := s.ledger.WithTx(ledger.NewRepository(tx))
	if _, err := ledgerSvc.RecordEvent(ctx, ledger.RecordEventInput{
		OrderID:     order.ID,
		VendorID:    &order.VendorID,
		Type:        enums.LedgerCommissionCalculated,
		AmountCents: breakdown.CommissionCents,
		Metadata:    metadata,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record commission ledger event")
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "commission recorded")
	return commission, nil
}

// MarkRecorded finalizes the commission row once escrow release completes.
func (s *Service) MarkRecorded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if err := s.repo.WithTx(tx).MarkRecorded(ctx, orderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize commission")
	}
	return nil
}
