package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

const idAttempts = 16

var errIDExhausted = errors.New("could not generate a unique order id")

// Submit validates and admits an order, then tries to dispatch.
func (s *Scheduler) Submit(ctx context.Context, req domain.OrderRequest) (*interfaces.SubmitResult, error) {
	now := s.now()

	order, err := domain.NewOrder(req, now)
	if err != nil {
		s.logger.Debug("order_rejected", "Order failed validation", "", map[string]interface{}{
			"customer_id": req.CustomerID,
			"error":       err.Error(),
		})
		return nil, err
	}

	// 1. Reserve capacity and a unique id
	s.queueMu.Lock()
	size := s.queue.Len() + s.admitting
	if size >= s.cfg.MaxQueueSize {
		s.queueMu.Unlock()
		s.logger.Warn("queue_full", "Order queue is full", "", map[string]interface{}{
			"queue_size": size,
			"max_size":   s.cfg.MaxQueueSize,
		})
		s.publish(ctx, domain.QueueFull{QueueSize: size, MaxSize: s.cfg.MaxQueueSize, At: now})
		return nil, &domain.QueueFullError{Size: size, Max: s.cfg.MaxQueueSize}
	}
	id, err := s.uniqueIDLocked(now)
	if err != nil {
		s.queueMu.Unlock()
		return nil, err
	}
	order.ID = id
	s.index[id] = order
	s.admitting++
	record := order.Clone()
	s.queueMu.Unlock()

	// 2. Persist outside the lock
	if err := s.repo.InsertOrder(ctx, record); err != nil {
		s.logger.Error("db_insert_failed", "Failed to persist order", id, nil, err)
	}

	// 3. Enqueue
	s.slotMu.Lock()
	s.queueMu.Lock()
	s.admitting--
	s.queue.Push(order, now)
	s.customers[order.CustomerID] = append(s.customers[order.CustomerID], id)
	s.countAdmissionLocked(now)
	position := s.queue.Position(id)
	wait := s.waitAheadLocked(id, now)
	s.queueMu.Unlock()
	s.slotMu.Unlock()

	s.logger.Info("order_queued", "Order added to queue", id, map[string]interface{}{
		"priority": record.Priority.String(),
		"position": position,
	})
	s.publish(ctx, domain.OrderQueued{
		OrderID:       id,
		CustomerID:    record.CustomerID,
		Priority:      record.Priority,
		Position:      position,
		EstimatedWait: wait,
		At:            now,
	})

	// 4. Opportunistic dispatch
	s.dispatch(ctx)

	return &interfaces.SubmitResult{
		OrderID:       id,
		QueuePosition: position,
		EstimatedWait: wait,
		Status:        "queued",
	}, nil
}

func (s *Scheduler) uniqueIDLocked(now time.Time) (string, error) {
	for i := 0; i < idAttempts; i++ {
		id := s.newID(now)
		if _, taken := s.index[id]; !taken {
			return id, nil
		}
	}
	return "", errIDExhausted
}
