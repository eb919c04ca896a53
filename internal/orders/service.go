package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service covers order lifecycle operations outside the payment pipeline:
// claiming guest orders and delivery confirmation.
type Service struct {
	tx   txRunner
	repo Repository
	logg *logger.Logger
}

func NewService(tx txRunner, repo Repository, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{tx: tx, repo: repo, logg: logg}, nil
}

// ClaimOrder attaches a user to a guest order. Claiming an order that
// already belongs to the same user is a no-op; a different user is a
// conflict.
func (s *Service) ClaimOrder(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	var claimed *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != nil {
			if *order.UserID == userID {
				claimed = order
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "order already claimed by another user")
		}
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{"user_id": userID}); err != nil {
			return err
		}
		order.UserID = &userID
		claimed = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	s.logg.Info(logCtx, "order claimed")
	return claimed, nil
}

// MarkDelivered records delivery confirmation from the fulfilment side.
// Only paid orders can move to delivered.
func (s *Service) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var delivered *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusDelivered {
			delivered = order
			return nil
		}
		if order.Status != enums.OrderStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be delivered")
		}
		now := nowFunc()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":       enums.OrderStatusDelivered,
			"delivered_at": now,
		}); err != nil {
			return err
		}
		order.Status = enums.OrderStatusDelivered
		order.DeliveredAt = &now
		delivered = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, orderID.String())
	s.logg.Info(logCtx, "order marked delivered")
	return delivered, nil
}
