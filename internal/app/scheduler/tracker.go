package scheduler

import (
	"context"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

// Complete finalizes the busy order as served. Any other id is a no-op.
func (s *Scheduler) Complete(ctx context.Context, orderID string) bool {
	return s.finishBusy(ctx, orderID, domain.StatusServed, "", false)
}

// Fail finalizes the busy order as failed. Any other id is a no-op.
func (s *Scheduler) Fail(ctx context.Context, orderID, reason string) bool {
	return s.finishBusy(ctx, orderID, domain.StatusFailed, reason, false)
}

// Cancel removes a queued or processing order. It reports false when the id
// is neither queued nor in the slot, including orders already finalized.
func (s *Scheduler) Cancel(ctx context.Context, orderID, reason string) bool {
	if reason == "" {
		reason = domain.ReasonCustomerCancelled
	}
	now := s.now()

	s.slotMu.Lock()
	if s.busy != nil && s.busy.ID == orderID {
		s.slotMu.Unlock()
		return s.finishBusy(ctx, orderID, domain.StatusCancelled, reason, true)
	}

	s.queueMu.Lock()
	order, ok := s.queue.Remove(orderID)
	if !ok {
		s.queueMu.Unlock()
		s.slotMu.Unlock()
		s.logger.Warn("cancel_ignored", "Order is not queued or processing", orderID, nil)
		return false
	}
	record, err := s.finalizeLocked(order, domain.StatusCancelled, now, reason)
	s.queueMu.Unlock()
	s.slotMu.Unlock()
	if err != nil {
		s.logger.Error("cancel_failed", "Failed to cancel order", orderID, nil, err)
		return false
	}

	s.announceFinal(ctx, record)
	return true
}

// finishBusy finalizes the slot order and frees the slot. abandon is set when
// the scheduler decides the outcome itself; the machine is then told to drop
// the order before the next one is dispatched.
func (s *Scheduler) finishBusy(ctx context.Context, orderID string, status domain.Status, reason string, abandon bool) bool {
	now := s.now()

	s.slotMu.Lock()
	if s.busy == nil || s.busy.ID != orderID {
		s.slotMu.Unlock()
		s.logger.Warn("finish_ignored", "Order is not in the machine slot", orderID, map[string]interface{}{
			"status": status,
		})
		return false
	}

	s.queueMu.Lock()
	record, err := s.finalizeLocked(s.busy, status, now, reason)
	s.queueMu.Unlock()
	if err != nil {
		s.slotMu.Unlock()
		s.logger.Error("finish_failed", "Failed to finalize order", orderID, nil, err)
		return false
	}
	s.busy = nil
	s.slotMu.Unlock()

	s.announceFinal(ctx, record)
	if abandon {
		if err := s.machine.Abandon(ctx, orderID); err != nil {
			s.logger.Error("machine_abandon_failed", "Machine did not drop the order", orderID, map[string]interface{}{
				"status": status,
			}, err)
		}
	}
	s.dispatch(ctx)
	return true
}

// finalizeLocked moves order to a terminal status and into its history.
// queueMu must be held; the returned copy is safe to use after unlocking.
func (s *Scheduler) finalizeLocked(order *domain.Order, status domain.Status, at time.Time, reason string) (*domain.Order, error) {
	if err := order.TransitionTo(status, at, reason); err != nil {
		return nil, err
	}

	switch status {
	case domain.StatusServed:
		s.completed = append(s.completed, order)
	case domain.StatusFailed:
		s.failed = append(s.failed, order)
	case domain.StatusCancelled:
		s.cancelled = append(s.cancelled, order)
	}
	return order.Clone(), nil
}

func (s *Scheduler) announceFinal(ctx context.Context, order *domain.Order) {
	s.persistStatus(ctx, order)

	details := map[string]interface{}{"customer_id": order.CustomerID}
	if order.Reason != "" {
		details["reason"] = order.Reason
	}

	switch order.Status {
	case domain.StatusServed:
		details["preparation_seconds"] = order.ActualSeconds
		s.logger.Info("order_completed", "Order served", order.ID, details)
		s.publish(ctx, domain.OrderCompleted{
			OrderID:            order.ID,
			CustomerID:         order.CustomerID,
			PreparationSeconds: order.ActualSeconds,
			At:                 *order.CompletedAt,
		})
	case domain.StatusFailed:
		s.logger.Warn("order_failed", "Order failed", order.ID, details)
		s.publish(ctx, domain.OrderFailed{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Reason:     order.Reason,
			At:         *order.FailedAt,
		})
	case domain.StatusCancelled:
		s.logger.Info("order_cancelled", "Order cancelled", order.ID, details)
		s.publish(ctx, domain.OrderCancelled{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Reason:     order.Reason,
			At:         *order.CancelledAt,
		})
	}
}
