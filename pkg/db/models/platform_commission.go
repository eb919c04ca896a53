package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// PlatformCommission records the computed split for an order. The unique
// order id makes recalculation an upsert rather than a duplicate.
type PlatformCommission struct {
	ID              uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	VendorID        uuid.UUID              `gorm:"column:vendor_id;type:uuid;not null"`
	ConfigID        uuid.UUID              `gorm:"column:config_id;type:uuid;not null"`
	Scope           enums.CommissionScope  `gorm:"column:scope;type:text;not null"`
	BaseCents       int64                  `gorm:"column:base_cents;not null"`
	RatePct         *decimal.Decimal       `gorm:"column:rate_pct;type:numeric(5,2)"`
	CommissionCents int64                  `gorm:"column:commission_cents;not null"`
	VendorCents     int64                  `gorm:"column:vendor_cents;not null"`
	Status          enums.CommissionStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt       time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
