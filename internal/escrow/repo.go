package escrow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
)

// Repository persists escrow releases and the payouts they spawn.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.EscrowRelease, error)
	Claim(ctx context.Context, release *models.EscrowRelease) (bool, error)
	Update(ctx context.Context, release *models.EscrowRelease) error
	Delete(ctx context.Context, releaseID uuid.UUID) error
	CreatePayout(ctx context.Context, payout *models.VendorPayout) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an escrow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.EscrowRelease, error) {
	var release models.EscrowRelease
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&release).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &release, nil
}

// Claim inserts the pending release row. The unique order id means only
// one caller wins; everyone else sees false.
func (r *repository) Claim(ctx context.Context, release *models.EscrowRelease) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).
		Create(release)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Update(ctx context.Context, release *models.EscrowRelease) error {
	return r.db.WithContext(ctx).Save(release).Error
}

func (r *repository) Delete(ctx context.Context, releaseID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.EscrowRelease{}, "id = ?", releaseID).Error
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.VendorPayout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}
