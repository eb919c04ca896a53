package enums

import "fmt"

// WebhookOutcome records how processing of an ingested webhook ended.
// Failed rows stay eligible for reprocessing on redelivery.
type WebhookOutcome string

const (
	WebhookOutcomeSuccess WebhookOutcome = "success"
	WebhookOutcomeFailed  WebhookOutcome = "failed"
)

var validWebhookOutcomes = []WebhookOutcome{
	WebhookOutcomeSuccess,
	WebhookOutcomeFailed,
}

// String implements fmt.Stringer.
func (o WebhookOutcome) String() string {
	return string(o)
}

// IsValid reports whether the value is a known WebhookOutcome.
func (o WebhookOutcome) IsValid() bool {
	for _, candidate := range validWebhookOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseWebhookOutcome converts raw input into a WebhookOutcome.
func ParseWebhookOutcome(value string) (WebhookOutcome, error) {
	for _, candidate := range validWebhookOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook outcome %q", value)
}
