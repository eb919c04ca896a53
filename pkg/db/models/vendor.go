package models

import (
	"time"

	"github.com/google/uuid"
)

// Vendor is the seller party on an order. PayoutRecipientID is the external
// rail identifier funds are sent to; payouts without one are parked on hold.
type Vendor struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name              string    `gorm:"column:name;not null"`
	OwnerUserID       uuid.UUID `gorm:"column:owner_user_id;type:uuid;not null"`
	PayoutRecipientID *string   `gorm:"column:payout_recipient_id"`
	Active            bool      `gorm:"column:active;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
