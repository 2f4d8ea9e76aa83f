package scheduler

import (
	"context"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

// SlotReady is the hardware signal that the pipeline can take an order.
func (s *Scheduler) SlotReady(ctx context.Context) {
	s.dispatch(ctx)
}

// dispatch moves the next order into the slot when it is idle. Attempts
// against a busy slot return immediately.
func (s *Scheduler) dispatch(ctx context.Context) {
	now := s.now()

	s.slotMu.Lock()
	if s.busy != nil {
		s.slotMu.Unlock()
		return
	}

	s.queueMu.Lock()
	next, batched := s.consolidator.Next(s.queue, s.last)
	order := next.Order
	if order == nil {
		s.queueMu.Unlock()
		s.slotMu.Unlock()
		return
	}
	if err := order.TransitionTo(domain.StatusProcessing, now, ""); err != nil {
		// only pending orders are ever queued
		s.queueMu.Unlock()
		s.slotMu.Unlock()
		s.logger.Error("dispatch_failed", "Queued order is not pending", order.ID, nil, err)
		return
	}
	record := order.Clone()
	s.queueMu.Unlock()

	previous := s.last
	s.busy = order
	s.last = order
	s.slotMu.Unlock()

	s.logger.Info("order_processing_started", "Order dispatched to machine", record.ID, map[string]interface{}{
		"priority": record.Priority.String(),
		"batched":  batched,
	})

	s.persistStatus(ctx, record)
	s.publish(ctx, domain.ProcessingStarted{
		OrderID:          record.ID,
		CustomerID:       record.CustomerID,
		Items:            record.Items,
		EstimatedSeconds: record.EstimatedSeconds,
		At:               now,
	})

	if err := s.machine.Start(ctx, record); err != nil {
		s.logger.Error("machine_handoff_failed", "Machine rejected order", record.ID, nil, err)
		s.returnToQueue(ctx, order, next.QueuedAt, previous)
	}
}

// returnToQueue rolls back a dispatch the machine refused. The order goes back
// to its old queue position and the slot stays idle until the next SlotReady.
func (s *Scheduler) returnToQueue(ctx context.Context, order *domain.Order, queuedAt time.Time, previous *domain.Order) {
	s.slotMu.Lock()
	if s.busy != order {
		// finalized or cancelled while the handoff was in flight
		s.slotMu.Unlock()
		return
	}

	s.queueMu.Lock()
	if err := order.ReturnToQueue(); err != nil {
		s.queueMu.Unlock()
		s.slotMu.Unlock()
		s.logger.Error("requeue_failed", "Failed to return order to the queue", order.ID, nil, err)
		return
	}
	s.queue.Push(order, queuedAt)
	record := order.Clone()
	s.queueMu.Unlock()

	s.busy = nil
	if s.last == order {
		s.last = previous
	}
	s.slotMu.Unlock()

	s.logger.Warn("order_requeued", "Order returned to the queue after a refused handoff", record.ID, map[string]interface{}{
		"queued_at": queuedAt,
	})
	s.persistStatus(ctx, record)
}
