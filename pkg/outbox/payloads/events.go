package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaidEvent is published when webhook processing confirms a payment.
type OrderPaidEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	VendorID    uuid.UUID `json:"vendorId"`
	PaymentID   uuid.UUID `json:"paymentId"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
}

// OrderExpiredEvent is published when the expiry sweeper cancels an order.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"orderId"`
	VendorID  uuid.UUID `json:"vendorId"`
	ExpiredAt time.Time `json:"expiredAt"`
}

// EscrowReleasedEvent is published after the external escrow release succeeds.
type EscrowReleasedEvent struct {
	OrderID         uuid.UUID `json:"orderId"`
	EscrowReleaseID uuid.UUID `json:"escrowReleaseId"`
	VendorID        uuid.UUID `json:"vendorId"`
	VendorCents     int64     `json:"vendorCents"`
	PlatformCents   int64     `json:"platformCents"`
}

// PayoutRequestedEvent asks the payout worker to initiate a pending payout.
type PayoutRequestedEvent struct {
	PayoutID    uuid.UUID `json:"payoutId"`
	OrderID     uuid.UUID `json:"orderId"`
	VendorID    uuid.UUID `json:"vendorId"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
}

// PayoutCompletedEvent is published when the payout webhook confirms completion.
type PayoutCompletedEvent struct {
	PayoutID         uuid.UUID `json:"payoutId"`
	OrderID          uuid.UUID `json:"orderId"`
	VendorID         uuid.UUID `json:"vendorId"`
	ProviderPayoutID string    `json:"providerPayoutId"`
}

// PayoutFailedEvent is published when the payout webhook reports a failure.
type PayoutFailedEvent struct {
	PayoutID uuid.UUID `json:"payoutId"`
	OrderID  uuid.UUID `json:"orderId"`
	VendorID uuid.UUID `json:"vendorId"`
	Reason   string    `json:"reason"`
}
