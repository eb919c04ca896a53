package enums

import "fmt"

// OutboxAggregateType identifies the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateOrder  OutboxAggregateType = "order"
	OutboxAggregateEscrow OutboxAggregateType = "escrow"
	OutboxAggregatePayout OutboxAggregateType = "payout"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	OutboxAggregateOrder,
	OutboxAggregateEscrow,
	OutboxAggregatePayout,
}

// IsValid reports whether the value is a known OutboxAggregateType.
func (t OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into an OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validOutboxAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox aggregate type %q", value)
}

// OutboxEventType names the settlement events published through the outbox.
type OutboxEventType string

const (
	OutboxEventOrderPaid       OutboxEventType = "order.paid"
	OutboxEventOrderExpired    OutboxEventType = "order.expired"
	OutboxEventEscrowReleased  OutboxEventType = "escrow.released"
	OutboxEventPayoutRequested OutboxEventType = "payout.requested"
	OutboxEventPayoutCompleted OutboxEventType = "payout.completed"
	OutboxEventPayoutFailed    OutboxEventType = "payout.failed"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventOrderPaid,
	OutboxEventOrderExpired,
	OutboxEventEscrowReleased,
	OutboxEventPayoutRequested,
	OutboxEventPayoutCompleted,
	OutboxEventPayoutFailed,
}

// String implements fmt.Stringer.
func (t OutboxEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known OutboxEventType.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
