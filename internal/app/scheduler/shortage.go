package scheduler

import (
	"context"
	"strings"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

// NotifyShortage demotes every queued order that needs the ingredient by one
// tier, clamped at low, and moves it to the back of its new tier. The order
// in the slot is not touched. It returns the number of orders moved.
func (s *Scheduler) NotifyShortage(ctx context.Context, ingredient string) int {
	ingredient = strings.TrimSpace(ingredient)
	if ingredient == "" {
		return 0
	}
	now := s.now()

	s.queueMu.Lock()
	var demoted []domain.OrderDemoted
	for _, e := range s.queue.Ordered() {
		if !e.Order.NeedsIngredient(ingredient) {
			continue
		}
		from := e.Order.Priority
		to := from.Demote()
		s.queue.Reprioritize(e.Order.ID, to, now)
		demoted = append(demoted, domain.OrderDemoted{
			OrderID:    e.Order.ID,
			Ingredient: ingredient,
			From:       from,
			To:         to,
			At:         now,
		})
	}
	s.queueMu.Unlock()

	for _, ev := range demoted {
		s.logger.Info("order_demoted", "Order moved back for missing ingredient", ev.OrderID, map[string]interface{}{
			"ingredient": ingredient,
			"from":       ev.From.String(),
			"to":         ev.To.String(),
		})
		if ev.From != ev.To {
			if err := s.repo.UpdateOrderPriority(ctx, ev.OrderID, ev.To); err != nil {
				s.logger.Error("db_update_failed", "Failed to persist order priority", ev.OrderID, nil, err)
			}
		}
		s.publish(ctx, ev)
	}
	return len(demoted)
}
