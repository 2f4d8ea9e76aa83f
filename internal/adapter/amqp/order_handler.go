package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

const defaultFullBackoff = 2 * time.Second

type OrderHandler struct {
	service interfaces.SchedulerService
	logger  logger.Logger
	backoff time.Duration
}

func NewOrderHandler(service interfaces.SchedulerService, logger logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: service,
		logger:  logger,
		backoff: defaultFullBackoff,
	}
}

// HandleOrder admits an order from the intake queue. Malformed payloads are
// dead-lettered; a full queue waits briefly and asks for a requeue.
func (h *OrderHandler) HandleOrder(ctx context.Context, body []byte) error {
	var req domain.OrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse order message", "", nil, err)
		return err
	}

	result, err := h.service.Submit(ctx, req)
	switch {
	case err == nil:
		h.logger.Debug("order_received", "Order admitted from queue", result.OrderID, map[string]interface{}{
			"queue_position": result.QueuePosition,
		})
		return nil

	case errors.Is(err, domain.ErrQueueFull):
		select {
		case <-ctx.Done():
		case <-time.After(h.backoff):
		}
		return fmt.Errorf("%v: %w", err, interfaces.ErrRequeue)

	default:
		return err
	}
}
