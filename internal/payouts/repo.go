package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// Repository persists vendor payouts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error)
	FindByProviderPayoutID(ctx context.Context, providerPayoutID string) (*models.VendorPayout, error)
	FindStuckPending(ctx context.Context, cutoff time.Time, limit int) ([]models.VendorPayout, error)
	Update(ctx context.Context, payout *models.VendorPayout) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, payoutID uuid.UUID) (*models.VendorPayout, error) {
	var payout models.VendorPayout
	err := r.db.WithContext(ctx).Where("id = ?", payoutID).First(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByProviderPayoutID(ctx context.Context, providerPayoutID string) (*models.VendorPayout, error) {
	var payout models.VendorPayout
	err := r.db.WithContext(ctx).Where("provider_payout_id = ?", providerPayoutID).First(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// FindStuckPending lists payouts still pending past the cutoff, oldest
// first, for the reconciliation job to re-trigger.
func (r *repository) FindStuckPending(ctx context.Context, cutoff time.Time, limit int) ([]models.VendorPayout, error) {
	var payouts []models.VendorPayout
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.PayoutStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) Update(ctx context.Context, payout *models.VendorPayout) error {
	return r.db.WithContext(ctx).Save(payout).Error
}
