package payouts

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	pkgerrors "github.com/luisorozco/mercaflow-backend/pkg/errors"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox/idempotency"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox/payloads"
)

const payoutWorkerConsumer = "payout-worker"

type processor interface {
	Process(ctx context.Context, payoutID uuid.UUID) (*ProcessOutcome, error)
}

// Consumer drives the payout processor from payout.requested events.
type Consumer struct {
	processor    processor
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a payout worker consumer.
func NewConsumer(proc processor, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if proc == nil {
		return nil, fmt.Errorf("payout processor required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("payout subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		processor:    proc,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if enums.OutboxEventType(eventType) != enums.OutboxEventPayoutRequested {
		c.logg.Info(logCtx, "skipping unhandled event")
		return true
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return true
	}

	var payload payloads.PayoutRequestedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to decode payout request", err)
		return true
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, payoutWorkerConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return false
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return true
	}

	if _, err := c.processor.Process(ctx, payload.PayoutID); err != nil {
		// Durable rejections will no-op or re-park on redelivery, so
		// only transient failures are worth a retry.
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeDependency {
			c.logg.Error(logCtx, "payout processing failed, retrying", err)
			_ = c.idempotency.Delete(ctx, payoutWorkerConsumer, eventID)
			return false
		}
		c.logg.Error(logCtx, "payout processing failed", err)
		return true
	}

	return true
}
