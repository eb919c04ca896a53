package webhooks

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// LogRepository persists the webhook idempotency ledger.
type LogRepository interface {
	WithTx(tx *gorm.DB) LogRepository
	Find(ctx context.Context, provider enums.PaymentProvider, eventID string) (*models.WebhookLog, error)
	Record(ctx context.Context, log *models.WebhookLog) error
}

type logRepository struct {
	db *gorm.DB
}

// NewLogRepository returns a webhook log repository bound to the database.
func NewLogRepository(db *gorm.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) WithTx(tx *gorm.DB) LogRepository {
	if tx == nil {
		return r
	}
	return &logRepository{db: tx}
}

func (r *logRepository) Find(ctx context.Context, provider enums.PaymentProvider, eventID string) (*models.WebhookLog, error) {
	var log models.WebhookLog
	err := r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		First(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// Record upserts the ledger row for (provider, event id). A failed row
// replayed to success keeps a single row with the final outcome.
func (r *logRepository) Record(ctx context.Context, log *models.WebhookLog) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"event_type", "outcome", "error_text", "duration_ms", "payload", "updated_at",
			}),
		}).
		Create(log).Error
}
