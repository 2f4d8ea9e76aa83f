package scheduler

import (
	"context"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

// ClearQueue cancels every queued order. The busy order keeps running.
func (s *Scheduler) ClearQueue(ctx context.Context, reason string) int {
	if reason == "" {
		reason = domain.ReasonMaintenance
	}
	now := s.now()

	s.queueMu.Lock()
	var cleared []*domain.Order
	for _, e := range s.queue.Drain() {
		record, err := s.finalizeLocked(e.Order, domain.StatusCancelled, now, reason)
		if err != nil {
			s.logger.Error("clear_failed", "Failed to cancel queued order", e.Order.ID, nil, err)
			continue
		}
		cleared = append(cleared, record)
	}
	s.queueMu.Unlock()

	for _, order := range cleared {
		s.announceFinal(ctx, order)
	}

	s.logger.Warn("queue_cleared", "Queue cleared", "", map[string]interface{}{
		"reason":         reason,
		"orders_cleared": len(cleared),
	})
	s.publish(ctx, domain.QueueCleared{Reason: reason, Cleared: len(cleared), At: now})
	return len(cleared)
}

// cleanup drops finalized orders older than the retention window from the
// in-memory indices. Persisted copies stay in the repository.
func (s *Scheduler) cleanup(_ context.Context) {
	cutoff := s.now().Add(-s.cfg.Retention())

	s.queueMu.Lock()
	removed := make(map[string]struct{})
	keep := func(orders []*domain.Order) []*domain.Order {
		out := orders[:0]
		for _, o := range orders {
			if at := o.FinishedAt(); at != nil && at.Before(cutoff) {
				removed[o.ID] = struct{}{}
				continue
			}
			out = append(out, o)
		}
		return out
	}
	s.completed = keep(s.completed)
	s.failed = keep(s.failed)
	s.cancelled = keep(s.cancelled)

	for id := range removed {
		delete(s.index, id)
	}
	for customerID, ids := range s.customers {
		live := ids[:0]
		for _, id := range ids {
			if _, ok := s.index[id]; ok {
				live = append(live, id)
			}
		}
		if len(live) == 0 {
			delete(s.customers, customerID)
		} else {
			s.customers[customerID] = live
		}
	}
	s.queueMu.Unlock()

	s.logger.Debug("cleanup_done", "Old orders removed from memory", "", map[string]interface{}{
		"removed": len(removed),
		"cutoff":  cutoff.Format(time.RFC3339),
	})
}
