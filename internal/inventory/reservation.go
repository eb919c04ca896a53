package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
)

// ReservationRequest asks for qty units of one product from one vendor.
type ReservationRequest struct {
	LineItemID uuid.UUID
	ProductID  uuid.UUID
	VendorID   uuid.UUID
	Qty        int
}

// ReservationResult reports the per-line outcome of a reservation pass.
type ReservationResult struct {
	LineItemID uuid.UUID
	ProductID  uuid.UUID
	Reserved   bool
	Reason     string
}

// ReserveInventory moves qty from available to reserved for each request
// using conditional updates, so concurrent reservations against the same
// row cannot oversell. A failed line is reported in its result; the caller
// decides whether to roll back the transaction.
func ReserveInventory(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) ([]ReservationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	results := make([]ReservationResult, 0, len(requests))
	for _, req := range requests {
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity %d for product %s", req.Qty, req.ProductID))
		}
		res := tx.WithContext(ctx).Model(&models.InventoryItem{}).
			Where("product_id = ? AND vendor_id = ? AND available_qty >= ?", req.ProductID, req.VendorID, req.Qty).
			Updates(map[string]any{
				"available_qty": gorm.Expr("available_qty - ?", req.Qty),
				"reserved_qty":  gorm.Expr("reserved_qty + ?", req.Qty),
			})
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "reserving inventory")
		}
		result := ReservationResult{
			LineItemID: req.LineItemID,
			ProductID:  req.ProductID,
			Reserved:   res.RowsAffected == 1,
		}
		if !result.Reserved {
			result.Reason = "insufficient stock"
		}
		results = append(results, result)
	}
	return results, nil
}

// ReleaseInventory returns reserved units to the available pool. Rows whose
// reserved count no longer covers the quantity are skipped rather than
// driven negative.
func ReleaseInventory(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	for _, req := range requests {
		if req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity %d for product %s", req.Qty, req.ProductID))
		}
		res := tx.WithContext(ctx).Model(&models.InventoryItem{}).
			Where("product_id = ? AND vendor_id = ? AND reserved_qty >= ?", req.ProductID, req.VendorID, req.Qty).
			Updates(map[string]any{
				"available_qty": gorm.Expr("available_qty + ?", req.Qty),
				"reserved_qty":  gorm.Expr("reserved_qty - ?", req.Qty),
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "releasing inventory")
		}
	}
	return nil
}

// CommitInventory converts reserved units into a permanent stock decrement
// after a confirmed payment.
func CommitInventory(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	for _, req := range requests {
		if req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity %d for product %s", req.Qty, req.ProductID))
		}
		res := tx.WithContext(ctx).Model(&models.InventoryItem{}).
			Where("product_id = ? AND vendor_id = ? AND reserved_qty >= ?", req.ProductID, req.VendorID, req.Qty).
			Updates(map[string]any{
				"reserved_qty": gorm.Expr("reserved_qty - ?", req.Qty),
			})
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, res.Error, "committing inventory")
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("no active reservation for product %s", req.ProductID))
		}
	}
	return nil
}
