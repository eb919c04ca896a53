package payoutwebhook

import (
	"encoding/json"
	"strings"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
)

// PayoutEvent is the normalized form of an inbound payout-rail webhook.
type PayoutEvent struct {
	EventID       string
	EventType     string
	PayoutID      string
	Status        enums.PayoutStatus
	RawStatus     string
	FailureReason string
}

type rawPayoutEvent struct {
	EventID string `json:"event_id"`
	ID      string `json:"id"`
	Type    string `json:"type"`

	PayoutID   string `json:"payout_id"`
	TransferID string `json:"transfer_id"`

	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
	ErrorMessage  string `json:"error"`
	Message       string `json:"message"`
}

var (
	completedStatuses = map[string]struct{}{
		"completed": {}, "paid": {}, "settled": {}, "success": {},
	}
	failedPayoutStatuses = map[string]struct{}{
		"failed": {}, "rejected": {}, "returned": {},
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

// ParseEvent decodes and normalizes a payout-rail payload.
func ParseEvent(payload []byte) (*PayoutEvent, error) {
	var raw rawPayoutEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}

	event := &PayoutEvent{
		EventID:       firstNonEmpty(raw.EventID, raw.ID),
		EventType:     strings.TrimSpace(raw.Type),
		PayoutID:      firstNonEmpty(raw.PayoutID, raw.TransferID),
		RawStatus:     strings.ToLower(strings.TrimSpace(raw.Status)),
		FailureReason: firstNonEmpty(raw.FailureReason, raw.ErrorMessage, raw.Message),
	}

	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event id missing")
	}
	if event.PayoutID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payout id missing")
	}
	if event.RawStatus == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook status missing")
	}

	if _, ok := completedStatuses[event.RawStatus]; ok {
		event.Status = enums.PayoutStatusCompleted
	} else if _, ok := failedPayoutStatuses[event.RawStatus]; ok {
		event.Status = enums.PayoutStatusFailed
	} else {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unrecognized payout status").
			WithDetails(map[string]string{"status": event.RawStatus})
	}

	return event, nil
}
