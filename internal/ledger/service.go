package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
)

// Service defines operations that record financial audit events.
type Service interface {
	WithTx(tx Repository) Service
	RecordEvent(ctx context.Context, input RecordEventInput) (*models.LedgerEvent, error)
	HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error)
}

type service struct {
	repo Repository
}

// RecordEventInput captures the immutable data a ledger event requires.
type RecordEventInput struct {
	OrderID     uuid.UUID             `json:"order_id"`
	VendorID    *uuid.UUID            `json:"vendor_id,omitempty"`
	Type        enums.LedgerEventType `json:"type"`
	AmountCents int64                 `json:"amount_cents"`
	Metadata    json.RawMessage       `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(repo Repository) Service {
	if repo == nil {
		return s
	}
	return &service{repo: repo}
}

func (s *service) RecordEvent(ctx context.Context, input RecordEventInput) (*models.LedgerEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger event type %q", input.Type)
	}

	event := &models.LedgerEvent{
		EventType:   input.Type,
		OrderID:     input.OrderID,
		VendorID:    input.VendorID,
		AmountCents: input.AmountCents,
		Metadata:    input.Metadata,
	}

	if err := s.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *service) HasEvent(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) (bool, error) {
	if orderID == uuid.Nil {
		return false, fmt.Errorf("order id is required")
	}
	if !eventType.IsValid() {
		return false, fmt.Errorf("invalid ledger event type %q", eventType)
	}
	return s.repo.Exists(ctx, orderID, eventType)
}
