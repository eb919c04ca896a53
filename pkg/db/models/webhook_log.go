package models

import (
	"encoding/json"
	"time"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// WebhookLog is the idempotency ledger for inbound provider events. One row
// per (provider, event id); a success row makes redelivery a no-op while a
// failed row lets the next delivery reprocess.
type WebhookLog struct {
	ID         int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	Provider   enums.PaymentProvider `gorm:"column:provider;type:text;not null;uniqueIndex:idx_webhook_logs_provider_event"`
	EventID    string                `gorm:"column:event_id;not null;uniqueIndex:idx_webhook_logs_provider_event"`
	EventType  string                `gorm:"column:event_type;not null"`
	Outcome    enums.WebhookOutcome  `gorm:"column:outcome;type:text;not null"`
	ErrorText  *string               `gorm:"column:error_text"`
	DurationMS int64                 `gorm:"column:duration_ms;not null;default:0"`
	Payload    json.RawMessage       `gorm:"column:payload;type:jsonb"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
