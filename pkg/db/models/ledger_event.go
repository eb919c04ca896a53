package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// LedgerEvent is an append-only financial audit record. Rows are never
// updated or deleted.
type LedgerEvent struct {
	ID          int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	EventType   enums.LedgerEventType `gorm:"column:event_type;type:text;not null"`
	OrderID     uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	VendorID    *uuid.UUID            `gorm:"column:vendor_id;type:uuid"`
	AmountCents int64                 `gorm:"column:amount_cents;not null"`
	Metadata    json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}
