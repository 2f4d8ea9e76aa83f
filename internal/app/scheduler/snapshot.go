package scheduler

import (
	"context"
	"fmt"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

// Export captures the live queue, the busy order and today's counts.
func (s *Scheduler) Export() *domain.Snapshot {
	now := s.now()

	s.slotMu.Lock()
	s.queueMu.Lock()
	defer s.slotMu.Unlock()
	defer s.queueMu.Unlock()

	entries := s.queue.Ordered()
	snapshot := &domain.Snapshot{
		Timestamp:           now,
		Queued:              make([]domain.QueuedOrder, 0, len(entries)),
		CompletedTodayCount: countFinishedOn(s.completed, now),
		FailedTodayCount:    countFinishedOn(s.failed, now),
		Stats:               s.computeStatsLocked(now),
	}
	for _, e := range entries {
		snapshot.Queued = append(snapshot.Queued, domain.QueuedOrder{Order: e.Order.Clone(), QueuedAt: e.QueuedAt})
	}
	if s.busy != nil {
		snapshot.ProcessingOrder = s.busy.Clone()
	}
	return snapshot
}

// Import replaces the live queue with the snapshot's entries. Heap order is
// rebuilt from each entry's priority and queued time. A processing order
// that is not the current busy order is queued again as pending. Orders this
// scheduler already finalized are skipped. Entries beyond the queue capacity
// are dropped in dequeue order.
func (s *Scheduler) Import(ctx context.Context, snapshot *domain.Snapshot) (int, error) {
	if snapshot == nil {
		return 0, fmt.Errorf("import queue: empty snapshot")
	}

	for i, q := range snapshot.Queued {
		if q.Order == nil || q.Order.ID == "" {
			return 0, fmt.Errorf("import queue: entry %d has no order id", i)
		}
	}

	s.slotMu.Lock()
	entries := make([]domain.QueuedOrder, 0, len(snapshot.Queued)+1)
	if p := snapshot.ProcessingOrder; p != nil && p.ID != "" && (s.busy == nil || s.busy.ID != p.ID) {
		// an interrupted order is ordered by its admission time
		requeued := p.Clone()
		requeued.StartedAt = nil
		entries = append(entries, domain.QueuedOrder{Order: requeued, QueuedAt: requeued.CreatedAt})
	}
	entries = append(entries, snapshot.Queued...)

	s.queueMu.Lock()
	for _, e := range s.queue.Drain() {
		delete(s.index, e.Order.ID)
	}

	imported, dropped := 0, 0
	var finalized []string
	for _, q := range entries {
		order := q.Order.Clone()
		if s.busy != nil && s.busy.ID == order.ID {
			continue
		}
		if known, ok := s.index[order.ID]; ok && known.Status.IsTerminal() {
			finalized = append(finalized, order.ID)
			continue
		}
		order.Status = domain.StatusPending
		queuedAt := q.QueuedAt
		if queuedAt.IsZero() {
			queuedAt = order.CreatedAt
		}
		if !s.queue.Push(order, queuedAt) {
			continue
		}
		if _, known := s.index[order.ID]; !known {
			s.customers[order.CustomerID] = append(s.customers[order.CustomerID], order.ID)
		}
		s.index[order.ID] = order
		imported++
	}
	for s.queue.Len() > s.cfg.MaxQueueSize {
		last := s.queue.Ordered()[s.queue.Len()-1]
		s.queue.Remove(last.Order.ID)
		delete(s.index, last.Order.ID)
		imported--
		dropped++
	}
	s.queueMu.Unlock()
	s.slotMu.Unlock()

	s.logger.Info("queue_imported", "Queue imported from snapshot", "", map[string]interface{}{
		"imported": imported,
		"dropped":  dropped,
	})
	if len(finalized) > 0 {
		s.logger.Warn("queue_import_skipped", "Snapshot listed orders that are already finalized", "", map[string]interface{}{
			"order_ids": finalized,
		})
	}
	if dropped > 0 {
		s.logger.Warn("queue_import_truncated", "Snapshot exceeded queue capacity", "", map[string]interface{}{
			"dropped": dropped,
		})
	}

	s.dispatch(ctx)
	return imported, nil
}
