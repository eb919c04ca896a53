package enums

import "fmt"

// LedgerEventType classifies append-only settlement ledger entries.
type LedgerEventType string

const (
	LedgerCommissionCalculated LedgerEventType = "commission_calculated"
	LedgerEscrowReleased       LedgerEventType = "escrow_released"
	LedgerPayoutInitiated      LedgerEventType = "payout_initiated"
	LedgerPayoutCompleted      LedgerEventType = "payout_completed"
	LedgerPayoutFailed         LedgerEventType = "payout_failed"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerCommissionCalculated,
	LedgerEscrowReleased,
	LedgerPayoutInitiated,
	LedgerPayoutCompleted,
	LedgerPayoutFailed,
}

// String implements fmt.Stringer.
func (t LedgerEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known LedgerEventType.
func (t LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into a LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}
