package inventory

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
)

// Service exposes order-level reservation operations. The order row's
// reservation_active flag is flipped in the same transaction as the stock
// movement, which makes release and commit safe to call more than once.
type Service struct {
	logg *logger.Logger
}

func NewService(logg *logger.Logger) (*Service, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{logg: logg}, nil
}

func requestsForOrder(order *models.Order) []ReservationRequest {
	requests := make([]ReservationRequest, 0, len(order.Items))
	for _, item := range order.Items {
		requests = append(requests, ReservationRequest{
			LineItemID: item.ID,
			ProductID:  item.ProductID,
			VendorID:   order.VendorID,
			Qty:        item.Quantity,
		})
	}
	return requests
}

// ReserveOrder holds stock for every line item, all or nothing. The caller
// must run it inside a transaction so a partial reservation rolls back.
func (s *Service) ReserveOrder(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order == nil || len(order.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no line items")
	}

	res := tx.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND reservation_active = ?", order.ID, false).
		Update("reservation_active", true)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "marking reservation active")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "inventory already reserved for order")
	}

	results, err := ReserveInventory(ctx, tx, requestsForOrder(order))
	if err != nil {
		return err
	}

	var failed []string
	for _, result := range results {
		if !result.Reserved {
			failed = append(failed, result.ProductID.String())
		}
	}
	if len(failed) > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for products: "+strings.Join(failed, ", "))
	}

	order.ReservationActive = true
	return nil
}

// ReleaseOrder returns the order's hold to the available pool. Orders
// without an active reservation are a no-op.
func (s *Service) ReleaseOrder(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}

	res := tx.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND reservation_active = ?", order.ID, true).
		Update("reservation_active", false)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "clearing reservation flag")
	}
	if res.RowsAffected == 0 {
		return nil
	}

	if err := ReleaseInventory(ctx, tx, requestsForOrder(order)); err != nil {
		return err
	}
	order.ReservationActive = false
	return nil
}

// CommitOrder converts the order's hold into a permanent stock decrement.
// Orders without an active reservation are a no-op so webhook reprocessing
// cannot double-commit.
func (s *Service) CommitOrder(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}

	res := tx.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND reservation_active = ?", order.ID, true).
		Update("reservation_active", false)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "clearing reservation flag")
	}
	if res.RowsAffected == 0 {
		return nil
	}

	if err := CommitInventory(ctx, tx, requestsForOrder(order)); err != nil {
		return err
	}
	order.ReservationActive = false
	return nil
}
