package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// Payment is one attempt against an order; a new checkout after a failed
// payment inserts a new row. ProviderSessionID is unique per provider once
// the gateway responds; RawPayload keeps the provider's last response or
// webhook body verbatim for audit.
type Payment struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	VendorID          uuid.UUID             `gorm:"column:vendor_id;type:uuid;not null"`
	Provider          enums.PaymentProvider `gorm:"column:provider;type:text;not null"`
	ProviderSessionID *string               `gorm:"column:provider_session_id;uniqueIndex:idx_payments_provider_session"`
	ProviderPaymentID *string               `gorm:"column:provider_payment_id"`
	MerchantReference string                `gorm:"column:merchant_reference;not null"`
	AmountCents       int64                 `gorm:"column:amount_cents;not null"`
	Currency          enums.Currency        `gorm:"column:currency;type:text;not null;default:'USD'"`
	Status            enums.PaymentStatus   `gorm:"column:status;type:text;not null;default:'initiated'"`
	FailureReason     *string               `gorm:"column:failure_reason"`
	RawPayload        json.RawMessage       `gorm:"column:raw_payload;type:jsonb"`
	ConfirmedAt       *time.Time            `gorm:"column:confirmed_at"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
