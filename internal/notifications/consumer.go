package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/luisorozco/mercaflow-backend/pkg/db/models"
	"github.com/luisorozco/mercaflow-backend/pkg/enums"
	"github.com/luisorozco/mercaflow-backend/pkg/logger"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox/idempotency"
	"github.com/luisorozco/mercaflow-backend/pkg/outbox/payloads"
)

const settlementNotificationConsumer = "settlement-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// recipientDirectory resolves which users a settlement event should reach.
type recipientDirectory interface {
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindVendor(ctx context.Context, vendorID uuid.UUID) (*models.Vendor, error)
}

// Consumer watches settlement events and fans them out as user notifications.
type Consumer struct {
	repo         repository
	directory    recipientDirectory
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a settlement notification consumer.
func NewConsumer(repo repository, directory recipientDirectory, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if directory == nil {
		return nil, fmt.Errorf("recipient directory required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("settlement subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		directory:    directory,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	handler, ok := c.handlerFor(enums.OutboxEventType(eventType))
	if !ok {
		c.logg.Info(logCtx, "skipping unhandled event")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, settlementNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := handler(ctx, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, settlementNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

type eventHandler func(ctx context.Context, data json.RawMessage, logCtx context.Context) error

func (c *Consumer) handlerFor(eventType enums.OutboxEventType) (eventHandler, bool) {
	switch eventType {
	case enums.OutboxEventOrderPaid:
		return c.handleOrderPaid, true
	case enums.OutboxEventOrderExpired:
		return c.handleOrderExpired, true
	case enums.OutboxEventEscrowReleased:
		return c.handleEscrowReleased, true
	case enums.OutboxEventPayoutCompleted:
		return c.handlePayoutCompleted, true
	case enums.OutboxEventPayoutFailed:
		return c.handlePayoutFailed, true
	default:
		return nil, false
	}
}

func (c *Consumer) handleOrderPaid(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.OrderPaidEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse order paid payload: %w", err)
	}

	order, err := c.directory.FindOrder(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	if order.UserID != nil {
		if err := c.notify(ctx, *order.UserID, enums.NotificationPaymentReceived,
			"Payment received",
			fmt.Sprintf("Your payment for order %s was confirmed.", order.Reference),
			data); err != nil {
			return err
		}
	}

	owner, err := c.vendorOwner(ctx, payload.VendorID)
	if err != nil {
		return err
	}
	if owner != uuid.Nil {
		if err := c.notify(ctx, owner, enums.NotificationPaymentReceived,
			"Order paid",
			fmt.Sprintf("Order %s has been paid and is awaiting fulfillment.", order.Reference),
			data); err != nil {
			return err
		}
	}

	c.logg.Info(logCtx, "payment notifications created")
	return nil
}

func (c *Consumer) handleOrderExpired(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.OrderExpiredEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse order expired payload: %w", err)
	}

	order, err := c.directory.FindOrder(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	if order.UserID == nil {
		c.logg.Info(logCtx, "expired order has no claimed user")
		return nil
	}

	if err := c.notify(ctx, *order.UserID, enums.NotificationOrderCancelled,
		"Order cancelled",
		fmt.Sprintf("Order %s expired before payment completed and was cancelled.", order.Reference),
		data); err != nil {
		return err
	}

	c.logg.Info(logCtx, "expiry notification created")
	return nil
}

func (c *Consumer) handleEscrowReleased(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.EscrowReleasedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse escrow released payload: %w", err)
	}

	owner, err := c.vendorOwner(ctx, payload.VendorID)
	if err != nil {
		return err
	}
	if owner == uuid.Nil {
		c.logg.Info(logCtx, "vendor has no owner to notify")
		return nil
	}

	return c.notify(ctx, owner, enums.NotificationEscrowReleased,
		"Escrow released",
		fmt.Sprintf("Funds for order %s were released. Your share is %s.", payload.OrderID, formatCents(payload.VendorCents)),
		data)
}

func (c *Consumer) handlePayoutCompleted(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.PayoutCompletedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse payout completed payload: %w", err)
	}

	owner, err := c.vendorOwner(ctx, payload.VendorID)
	if err != nil {
		return err
	}
	if owner == uuid.Nil {
		c.logg.Info(logCtx, "vendor has no owner to notify")
		return nil
	}

	return c.notify(ctx, owner, enums.NotificationPayoutCompleted,
		"Payout completed",
		fmt.Sprintf("Your payout for order %s has been delivered.", payload.OrderID),
		data)
}

func (c *Consumer) handlePayoutFailed(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.PayoutFailedEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse payout failed payload: %w", err)
	}

	owner, err := c.vendorOwner(ctx, payload.VendorID)
	if err != nil {
		return err
	}
	if owner == uuid.Nil {
		c.logg.Info(logCtx, "vendor has no owner to notify")
		return nil
	}

	message := fmt.Sprintf("Your payout for order %s failed.", payload.OrderID)
	if payload.Reason != "" {
		message = fmt.Sprintf("Your payout for order %s failed: %s", payload.OrderID, payload.Reason)
	}
	return c.notify(ctx, owner, enums.NotificationPayoutFailed, "Payout failed", message, data)
}

func (c *Consumer) vendorOwner(ctx context.Context, vendorID uuid.UUID) (uuid.UUID, error) {
	if vendorID == uuid.Nil {
		return uuid.Nil, nil
	}
	vendor, err := c.directory.FindVendor(ctx, vendorID)
	if err != nil {
		return uuid.Nil, err
	}
	return vendor.OwnerUserID, nil
}

func (c *Consumer) notify(ctx context.Context, userID uuid.UUID, typ enums.NotificationType, title, message string, data json.RawMessage) error {
	return c.repo.Create(ctx, &models.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
		Data:    data,
	})
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
