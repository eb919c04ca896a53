package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/internal/inventory"
	"github.com/luisorozco/mercaflow-backend/internal/orders"
	"github.com/luisorozco/mercaflow-backend/pkg/config"
	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service opens payment sessions, reserving inventory up front and
// rolling the reservation back when the provider call fails.
type Service struct {
	tx        txRunner
	repo      orders.Repository
	inventory *inventory.Service
	registry  *Registry
	checkout  config.CheckoutConfig
	logg      *logger.Logger
}

// NewService wires the payment session service.
func NewService(tx txRunner, repo orders.Repository, inventorySvc *inventory.Service, registry *Registry, checkout config.CheckoutConfig, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if inventorySvc == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if checkout.SessionTTL <= 0 {
		checkout.SessionTTL = 30 * time.Minute
	}
	return &Service{
		tx:        tx,
		repo:      repo,
		inventory: inventorySvc,
		registry:  registry,
		checkout:  checkout,
		logg:      logg,
	}, nil
}

// SessionResult is returned to the caller for redirecting the customer.
type SessionResult struct {
	CheckoutURL       string        `json:"checkout_url"`
	ProviderSessionID string        `json:"provider_session_id"`
	ExpiresAt         time.Time     `json:"expires_at"`
	Provider          string        `json:"provider"`
	Order             *models.Order `json:"-"`
}

// CreateSession reserves stock for the order and opens a hosted checkout
// with the chosen provider. Stock is held until the webhook settles the
// payment or the expiry sweeper cancels the order.
func (s *Service) CreateSession(ctx context.Context, orderID uuid.UUID, providerName enums.PaymentProvider) (*SessionResult, error) {
	if !providerName.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider")
	}
	provider, err := s.registry.Provider(providerName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment provider unavailable")
	}

	logCtx := s.logg.WithProvider(s.logg.WithOrderID(ctx, orderID.String()), providerName.String())

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err = repo.FindOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.EmailVerified {
			return pkgerrors.New(pkgerrors.CodeValidation, "order email is not verified")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
				WithDetails(map[string]string{"status": order.Status.String()})
		}
		if len(order.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "order has no line items")
		}
		return s.inventory.ReserveOrder(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	// Unique per attempt so a retry after a failed payment never reuses
	// the previous attempt's reference at the provider.
	merchantRef := fmt.Sprintf("%s-%d", order.ID, time.Now().UTC().UnixNano())

	// Provider call happens outside the transaction so a slow gateway
	// cannot hold row locks.
	session, err := provider.CreateSession(ctx, SessionRequest{
		OrderReference:    order.Reference,
		MerchantReference: merchantRef,
		AmountCents:       order.TotalCents,
		Currency:          order.Currency,
		CustomerEmail:     order.Email,
		RedirectURL:       s.checkout.RedirectURL,
	})
	if err != nil {
		s.logg.Error(logCtx, "session creation failed, releasing reservation", err)
		if releaseErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.inventory.ReleaseOrder(ctx, tx, order)
		}); releaseErr != nil {
			s.logg.Error(logCtx, "reservation rollback failed", releaseErr)
		}
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(s.checkout.SessionTTL)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sessionID := session.ProviderSessionID
		payment := &models.Payment{
			OrderID:           order.ID,
			VendorID:          order.VendorID,
			Provider:          providerName,
			ProviderSessionID: &sessionID,
			MerchantReference: merchantRef,
			AmountCents:       order.TotalCents,
			Currency:          order.Currency,
			Status:            enums.PaymentStatusInitiated,
			RawPayload:        session.RawResponse,
		}
		if _, err := repo.CreatePayment(ctx, payment); err != nil {
			return err
		}
		order.Status = enums.OrderStatusInitiated
		order.ExpiresAt = &expiresAt
		return repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":     enums.OrderStatusInitiated,
			"expires_at": expiresAt,
		})
	})
	if err != nil {
		s.logg.Error(logCtx, "persisting session failed, releasing reservation", err)
		if releaseErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.inventory.ReleaseOrder(ctx, tx, order)
		}); releaseErr != nil {
			s.logg.Error(logCtx, "reservation rollback failed", releaseErr)
		}
		return nil, err
	}

	s.logg.Info(logCtx, "payment session created")
	return &SessionResult{
		CheckoutURL:       session.CheckoutURL,
		ProviderSessionID: session.ProviderSessionID,
		ExpiresAt:         expiresAt,
		Provider:          providerName.String(),
		Order:             order,
	}, nil
}
