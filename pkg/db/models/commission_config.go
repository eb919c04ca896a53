package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// CommissionConfig is a commission policy at vendor, category, or platform
// scope. Exactly one of RatePct or FixedCents is set.
type CommissionConfig struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Scope      enums.CommissionScope `gorm:"column:scope;type:text;not null"`
	VendorID   *uuid.UUID            `gorm:"column:vendor_id;type:uuid"`
	Category   *string               `gorm:"column:category"`
	RatePct    *decimal.Decimal      `gorm:"column:rate_pct;type:numeric(5,2)"`
	FixedCents *int64                `gorm:"column:fixed_cents"`
	Active     bool                  `gorm:"column:active;not null"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
