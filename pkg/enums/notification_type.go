package enums

import "fmt"

// NotificationType classifies vendor-facing settlement notifications.
type NotificationType string

const (
	NotificationPaymentReceived NotificationType = "payment_received"
	NotificationOrderCancelled  NotificationType = "order_cancelled"
	NotificationEscrowReleased  NotificationType = "escrow_released"
	NotificationPayoutCompleted NotificationType = "payout_completed"
	NotificationPayoutFailed    NotificationType = "payout_failed"
)

var validNotificationTypes = []NotificationType{
	NotificationPaymentReceived,
	NotificationOrderCancelled,
	NotificationEscrowReleased,
	NotificationPayoutCompleted,
	NotificationPayoutFailed,
}

// String implements fmt.Stringer.
func (t NotificationType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known NotificationType.
func (t NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
