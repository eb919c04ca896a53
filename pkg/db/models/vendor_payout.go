package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// VendorPayout tracks the transfer of a vendor's share after escrow
// release. Completion is confirmed only by the payout webhook.
type VendorPayout struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	EscrowReleaseID  uuid.UUID          `gorm:"column:escrow_release_id;type:uuid;not null;uniqueIndex"`
	OrderID          uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	VendorID         uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null"`
	AmountCents      int64              `gorm:"column:amount_cents;not null"`
	Currency         enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status           enums.PayoutStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	RecipientID      *string            `gorm:"column:recipient_id"`
	ProviderPayoutID *string            `gorm:"column:provider_payout_id"`
	FailureReason    *string            `gorm:"column:failure_reason"`
	InitiatedAt      *time.Time         `gorm:"column:initiated_at"`
	CompletedAt      *time.Time         `gorm:"column:completed_at"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
