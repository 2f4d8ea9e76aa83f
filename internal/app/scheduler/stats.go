package scheduler

import (
	"context"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

const dayLayout = "2006-01-02"

// refreshStats recomputes the stats snapshot and publishes it.
func (s *Scheduler) refreshStats(ctx context.Context) domain.Stats {
	now := s.now()

	s.slotMu.Lock()
	s.queueMu.Lock()
	stats := s.computeStatsLocked(now)
	s.stats = stats
	s.queueMu.Unlock()
	s.slotMu.Unlock()

	s.logger.Debug("stats_updated", "Queue statistics updated", "", map[string]interface{}{
		"queue_size":     stats.QueueSize,
		"estimated_wait": stats.EstimatedWaitSeconds,
	})
	s.publish(ctx, domain.StatsUpdated{Stats: stats, At: now})
	return stats
}

// computeStatsLocked requires slotMu and queueMu.
func (s *Scheduler) computeStatsLocked(now time.Time) domain.Stats {
	s.rollDayLocked(now)

	stats := domain.Stats{
		TotalOrders:          s.totalOrders,
		OrdersToday:          s.ordersToday,
		QueueSize:            s.queue.Len(),
		EstimatedWaitSeconds: s.estimatedWaitLocked(now),
		CompletedCount:       len(s.completed),
		FailedCount:          len(s.failed),
		CancelledCount:       len(s.cancelled),
		UpdatedAt:            now,
	}
	if s.busy != nil {
		stats.ProcessingCount = 1
	}

	recent := s.completed
	if len(recent) > statsHistoryWindow {
		recent = recent[len(recent)-statsHistoryWindow:]
	}
	if len(recent) > 0 {
		total := 0
		for _, o := range recent {
			total += o.ActualSeconds
		}
		stats.AvgPreparationSeconds = float64(total) / float64(len(recent))
	}
	return stats
}

// estimatedWaitLocked is the wait a new arrival would see: the estimates of
// the first few queued orders plus what is left of the busy order.
func (s *Scheduler) estimatedWaitLocked(now time.Time) int {
	total := 0
	for _, e := range s.queue.Head(waitEstimateWindow) {
		total += e.Order.EstimatedSeconds
	}
	return total + s.busyRemainingLocked(now)
}

// waitAheadLocked is the wait for a queued order: every order ahead of it
// plus what is left of the busy order.
func (s *Scheduler) waitAheadLocked(orderID string, now time.Time) int {
	total := 0
	for _, e := range s.queue.Ordered() {
		if e.Order.ID == orderID {
			break
		}
		total += e.Order.EstimatedSeconds
	}
	return total + s.busyRemainingLocked(now)
}

func (s *Scheduler) busyRemainingLocked(now time.Time) int {
	if s.busy == nil || s.busy.StartedAt == nil {
		return 0
	}
	elapsed := int(now.Sub(*s.busy.StartedAt) / time.Second)
	if remaining := s.busy.EstimatedSeconds - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

func (s *Scheduler) countAdmissionLocked(now time.Time) {
	s.rollDayLocked(now)
	s.totalOrders++
	s.ordersToday++
}

// rollDayLocked resets the daily counter at local midnight.
func (s *Scheduler) rollDayLocked(now time.Time) {
	day := now.Local().Format(dayLayout)
	if s.day != day {
		s.day = day
		s.ordersToday = 0
	}
}

func sameDay(a, b time.Time) bool {
	return a.Local().Format(dayLayout) == b.Local().Format(dayLayout)
}

func countFinishedOn(orders []*domain.Order, now time.Time) int {
	n := 0
	for _, o := range orders {
		if at := o.FinishedAt(); at != nil && sameDay(*at, now) {
			n++
		}
	}
	return n
}
