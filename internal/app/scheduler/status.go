package scheduler

import (
	"context"
	"errors"
	"sort"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

// QueueStatus reports the live queue for monitoring.
func (s *Scheduler) QueueStatus() interfaces.QueueStatus {
	now := s.now()

	s.slotMu.Lock()
	s.queueMu.Lock()
	defer s.slotMu.Unlock()
	defer s.queueMu.Unlock()

	customers := make(map[string]struct{})
	for _, e := range s.queue.Ordered() {
		customers[e.Order.CustomerID] = struct{}{}
	}

	status := interfaces.QueueStatus{
		QueueSize:        s.queue.Len(),
		WaitingCustomers: len(customers),
		EstimatedWait:    s.estimatedWaitLocked(now),
		Stats:            s.stats,
		AsOf:             now,
	}
	if s.busy != nil {
		status.ProcessingCount = 1
	}
	if next := s.queue.Peek(); next != nil {
		status.NextOrderID = next.ID
	}
	return status
}

// OrderStatus looks the order up in memory, then in the repository.
func (s *Scheduler) OrderStatus(ctx context.Context, orderID string) (*domain.Order, bool) {
	s.queueMu.Lock()
	order, ok := s.index[orderID]
	if ok {
		order = order.Clone()
	}
	s.queueMu.Unlock()
	if ok {
		return order, true
	}

	stored, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.Warn("order_not_found", "Order not found", orderID, nil)
		} else {
			s.logger.Error("db_query_failed", "Failed to load order", orderID, nil, err)
		}
		return nil, false
	}
	return stored, stored != nil
}

// CustomerOrders merges in-memory orders with persisted ones, newest first.
// In-memory copies win over persisted copies of the same id.
func (s *Scheduler) CustomerOrders(ctx context.Context, customerID string) []*domain.Order {
	seen := make(map[string]struct{})
	var orders []*domain.Order

	s.queueMu.Lock()
	for _, id := range s.customers[customerID] {
		order, ok := s.index[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		orders = append(orders, order.Clone())
	}
	s.queueMu.Unlock()

	stored, err := s.repo.GetCustomerOrders(ctx, customerID)
	if err != nil {
		s.logger.Error("db_query_failed", "Failed to load customer orders", "", map[string]interface{}{
			"customer_id": customerID,
		}, err)
	}
	for _, order := range stored {
		if _, dup := seen[order.ID]; dup {
			continue
		}
		seen[order.ID] = struct{}{}
		orders = append(orders, order)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders
}
