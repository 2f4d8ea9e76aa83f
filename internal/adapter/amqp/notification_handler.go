package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

type NotificationHandler struct {
	logger logger.Logger
	out    io.Writer
}

func NewNotificationHandler(logger logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		logger: logger,
		out:    os.Stdout,
	}
}

func (h *NotificationHandler) HandleNotification(ctx context.Context, body []byte) error {
	var msg interfaces.EventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse notification", "", nil, err)
		return err
	}

	var ref struct {
		OrderID string `json:"order_id"`
	}
	_ = json.Unmarshal(msg.Payload, &ref)

	h.logger.Debug("notification_received", fmt.Sprintf("Received %s event", msg.Kind), ref.OrderID, map[string]interface{}{
		"event": msg.Kind,
	})

	// Print to console
	fmt.Fprintf(h.out, "[%s] %s\n", msg.OccurredAt.Format("15:04:05"), describe(msg.Kind, ref.OrderID, msg.Payload))

	return nil
}

func describe(kind domain.EventKind, orderID string, payload json.RawMessage) string {
	switch kind {
	case domain.EventOrderQueued:
		var e domain.OrderQueued
		_ = json.Unmarshal(payload, &e)
		return fmt.Sprintf("Order %s queued at position %d (%s, ~%ds)", e.OrderID, e.Position, e.Priority, e.EstimatedWait)
	case domain.EventProcessingStarted:
		return fmt.Sprintf("Order %s is being prepared", orderID)
	case domain.EventOrderCompleted:
		var e domain.OrderCompleted
		_ = json.Unmarshal(payload, &e)
		return fmt.Sprintf("Order %s is ready after %ds", e.OrderID, e.PreparationSeconds)
	case domain.EventOrderFailed:
		var e domain.OrderFailed
		_ = json.Unmarshal(payload, &e)
		return fmt.Sprintf("Order %s failed: %s", e.OrderID, e.Reason)
	case domain.EventOrderCancelled:
		var e domain.OrderCancelled
		_ = json.Unmarshal(payload, &e)
		return fmt.Sprintf("Order %s cancelled: %s", e.OrderID, e.Reason)
	case domain.EventOrderDemoted:
		var e domain.OrderDemoted
		_ = json.Unmarshal(payload, &e)
		return fmt.Sprintf("Order %s moved %s -> %s, %s is short", e.OrderID, e.From, e.To, e.Ingredient)
	case domain.EventQueueFull:
		var e domain.QueueFull
		_ = json.Unmarshal(payload, &e)
		return fmt.Sprintf("Queue full (%d/%d)", e.QueueSize, e.MaxSize)
	case domain.EventQueueCleared:
		var e domain.QueueCleared
		_ = json.Unmarshal(payload, &e)
		return fmt.Sprintf("Queue cleared, %d orders cancelled (%s)", e.Cleared, e.Reason)
	case domain.EventStatsUpdated:
		var e domain.StatsUpdated
		_ = json.Unmarshal(payload, &e)
		return fmt.Sprintf("Stats: %d waiting, %d processing, ~%ds wait", e.Stats.QueueSize, e.Stats.ProcessingCount, e.Stats.EstimatedWaitSeconds)
	default:
		return fmt.Sprintf("%s %s", kind, orderID)
	}
}
