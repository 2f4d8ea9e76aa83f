package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

type InventoryHandler struct {
	service interfaces.SchedulerService
	logger  logger.Logger
}

func NewInventoryHandler(service interfaces.SchedulerService, logger logger.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: service,
		logger:  logger,
	}
}

func (h *InventoryHandler) HandleShortage(ctx context.Context, body []byte) error {
	var msg interfaces.ShortageMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse shortage message", "", nil, err)
		return err
	}

	ingredient := strings.TrimSpace(msg.Ingredient)
	if ingredient == "" {
		return fmt.Errorf("shortage message without ingredient")
	}

	demoted := h.service.NotifyShortage(ctx, ingredient)
	h.logger.Debug("shortage_received", "Shortage applied", "", map[string]interface{}{
		"ingredient": ingredient,
		"level":      msg.Level,
		"demoted":    demoted,
	})
	return nil
}
