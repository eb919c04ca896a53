package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// Order is a customer purchase intent. UserID is nil for guest orders until
// the claim endpoint attaches one. ReservationActive marks whether the
// order currently holds inventory; clearing it is the release/commit guard.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Reference         string            `gorm:"column:reference;not null;uniqueIndex"`
	VendorID          uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null"`
	UserID            *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	Email             string            `gorm:"column:email;not null"`
	EmailVerified     bool              `gorm:"column:email_verified;not null;default:false"`
	Currency          enums.Currency    `gorm:"column:currency;type:text;not null;default:'USD'"`
	TotalCents        int64             `gorm:"column:total_cents;not null"`
	Status            enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ReservationActive bool              `gorm:"column:reservation_active;not null;default:false"`
	ExpiresAt         *time.Time        `gorm:"column:expires_at"`
	DeliveredAt       *time.Time        `gorm:"column:delivered_at"`
	CancelledAt       *time.Time        `gorm:"column:cancelled_at"`
	Items             []OrderLineItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment           *Payment          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
