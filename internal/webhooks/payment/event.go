package paymentwebhook

import (
	"encoding/json"
	"strings"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
)

// ProviderEvent is the normalized form of an inbound payment webhook.
// Providers disagree on field names, so parsing walks a fixed precedence
// chain for each attribute.
type ProviderEvent struct {
	EventID       string
	EventType     string
	SessionID     string
	PaymentID     string
	Reference     string
	Status        enums.PaymentStatus
	RawStatus     string
	FailureReason string
}

// rawEvent covers the union of field names the supported providers send.
type rawEvent struct {
	EventID string `json:"event_id"`
	ID      string `json:"id"`
	Type    string `json:"type"`

	SessionID     string `json:"session_id"`
	TransactionID string `json:"transaction_id"`

	PaymentID string `json:"payment_id"`
	ChargeID  string `json:"charge_id"`

	Reference      string `json:"reference"`
	OrderReference string `json:"order_reference"`
	Metadata       struct {
		OrderRef string `json:"order_ref"`
	} `json:"metadata"`

	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
	ErrorMessage  string `json:"error"`
	Message       string `json:"message"`
}

// succeededStatuses and failedStatuses normalize the provider status
// vocabularies onto the internal payment statuses.
var (
	succeededStatuses = map[string]struct{}{
		"success": {}, "succeeded": {}, "paid": {}, "completed": {},
	}
	failedStatuses = map[string]struct{}{
		"failed": {}, "declined": {}, "cancelled": {},
	}
)

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// ParseEvent decodes and normalizes a provider payload. A payload that is
// not valid JSON is a validation error; the caller rejects it before any
// ledger row is written.
func ParseEvent(payload []byte) (*ProviderEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}

	event := &ProviderEvent{
		EventID:       firstNonEmpty(raw.EventID, raw.ID),
		EventType:     strings.TrimSpace(raw.Type),
		SessionID:     firstNonEmpty(raw.SessionID, raw.TransactionID, raw.ID),
		PaymentID:     firstNonEmpty(raw.PaymentID, raw.ChargeID),
		Reference:     firstNonEmpty(raw.Reference, raw.OrderReference, raw.Metadata.OrderRef),
		RawStatus:     strings.ToLower(strings.TrimSpace(raw.Status)),
		FailureReason: firstNonEmpty(raw.FailureReason, raw.ErrorMessage, raw.Message),
	}

	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event id missing")
	}
	if event.RawStatus == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook status missing")
	}

	// Statuses outside the known vocabularies are intermediate events
	// (processing, requires_action). They keep the payment at initiated.
	if _, ok := succeededStatuses[event.RawStatus]; ok {
		event.Status = enums.PaymentStatusSucceeded
	} else if _, ok := failedStatuses[event.RawStatus]; ok {
		event.Status = enums.PaymentStatusFailed
	} else {
		event.Status = enums.PaymentStatusInitiated
	}

	return event, nil
}
