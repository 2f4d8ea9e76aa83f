package scheduler

import (
	"context"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

// sweepProcessing force-fails the busy order once it has run longer than the
// processing timeout.
func (s *Scheduler) sweepProcessing(ctx context.Context) {
	now := s.now()

	s.slotMu.Lock()
	var (
		orderID string
		elapsed time.Duration
	)
	if s.busy != nil && s.busy.StartedAt != nil {
		orderID = s.busy.ID
		elapsed = now.Sub(*s.busy.StartedAt)
	}
	s.slotMu.Unlock()

	if orderID == "" || elapsed <= s.cfg.ProcessingTimeout() {
		return
	}

	s.logger.Warn("processing_timeout", "Order exceeded processing timeout", orderID, map[string]interface{}{
		"elapsed_seconds": int(elapsed / time.Second),
	})
	s.finishBusy(ctx, orderID, domain.StatusFailed, domain.ReasonProcessingTimeout, true)
}

// sweepQueue cancels queued orders that have waited longer than the max
// wait, one order per critical section. Age is measured from admission, so
// a demotion does not restart the clock.
func (s *Scheduler) sweepQueue(ctx context.Context) {
	for _, orderID := range s.expiredQueued(s.now()) {
		if ctx.Err() != nil {
			return
		}
		s.evictQueued(ctx, orderID)
	}
}

func (s *Scheduler) expiredQueued(now time.Time) []string {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	var expired []string
	for _, e := range s.queue.Ordered() {
		if now.Sub(e.Order.CreatedAt) > s.cfg.MaxWait() {
			expired = append(expired, e.Order.ID)
		}
	}
	return expired
}

func (s *Scheduler) evictQueued(ctx context.Context, orderID string) {
	now := s.now()

	s.queueMu.Lock()
	order, ok := s.queue.Remove(orderID)
	if !ok {
		// dispatched or cancelled since the scan
		s.queueMu.Unlock()
		return
	}
	waited := now.Sub(order.CreatedAt)
	record, err := s.finalizeLocked(order, domain.StatusCancelled, now, domain.ReasonQueueTimeout)
	s.queueMu.Unlock()
	if err != nil {
		s.logger.Error("queue_timeout_failed", "Failed to evict order", orderID, nil, err)
		return
	}

	s.logger.Warn("queue_timeout", "Order waited too long in queue", orderID, map[string]interface{}{
		"waited_seconds": int(waited / time.Second),
	})
	s.announceFinal(ctx, record)
}
