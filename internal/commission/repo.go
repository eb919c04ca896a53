package commission

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// Repository resolves commission policy and persists computed splits.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveVendorConfig(ctx context.Context, vendorID uuid.UUID) (*models.CommissionConfig, error)
	FindActiveCategoryConfig(ctx context.Context, category string) (*models.CommissionConfig, error)
	FindActivePlatformConfig(ctx context.Context) (*models.CommissionConfig, error)
	UpsertCommission(ctx context.Context, commission *models.PlatformCommission) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PlatformCommission, error)
	MarkRecorded(ctx context.Context, orderID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a commission repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) findActive(ctx context.Context, scope enums.CommissionScope, apply func(*gorm.DB) *gorm.DB) (*models.CommissionConfig, error) {
	var config models.CommissionConfig
	query := r.db.WithContext(ctx).
		Where("scope = ? AND active = ?", scope, true).
		Order("created_at DESC")
	err := apply(query).First(&config).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &config, nil
}

func (r *repository) FindActiveVendorConfig(ctx context.Context, vendorID uuid.UUID) (*models.CommissionConfig, error) {
	return r.findActive(ctx, enums.CommissionScopeVendor, func(q *gorm.DB) *gorm.DB {
		return q.Where("vendor_id = ?", vendorID)
	})
}

func (r *repository) FindActiveCategoryConfig(ctx context.Context, category string) (*models.CommissionConfig, error) {
	return r.findActive(ctx, enums.CommissionScopeCategory, func(q *gorm.DB) *gorm.DB {
		return q.Where("category = ?", category)
	})
}

func (r *repository) FindActivePlatformConfig(ctx context.Context) (*models.CommissionConfig, error) {
	return r.findActive(ctx, enums.CommissionScopePlatform, func(q *gorm.DB) *gorm.DB {
		return q
	})
}

func (r *repository) UpsertCommission(ctx context.Context, commission *models.PlatformCommission) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"config_id", "scope", "base_cents", "rate_pct",
				"commission_cents", "vendor_cents", "updated_at",
			}),
		}).
		Create(commission).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.PlatformCommission, error) {
	var commission models.PlatformCommission
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&commission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *repository) MarkRecorded(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PlatformCommission{}).
		Where("order_id = ?", orderID).
		Update("status", enums.CommissionStatusRecorded).Error
}
