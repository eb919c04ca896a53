package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// EscrowRelease is the durable idempotency boundary for releasing an
// order's escrowed funds. A completed row short-circuits repeat requests.
type EscrowRelease struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	VendorID          uuid.UUID                 `gorm:"column:vendor_id;type:uuid;not null"`
	TotalCents        int64                     `gorm:"column:total_cents;not null"`
	VendorCents       int64                     `gorm:"column:vendor_cents;not null"`
	PlatformCents     int64                     `gorm:"column:platform_cents;not null"`
	Trigger           enums.ReleaseTrigger      `gorm:"column:trigger;type:text;not null"`
	IdempotencyKey    string                    `gorm:"column:idempotency_key;not null"`
	ProviderReleaseID *string                   `gorm:"column:provider_release_id"`
	Status            enums.EscrowReleaseStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ReleasedAt        *time.Time                `gorm:"column:released_at"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
