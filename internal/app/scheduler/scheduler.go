// Package scheduler owns the live order queue and the single machine slot.
//
// Two locks guard the state. slotMu guards the busy order and the batching
// reference. queueMu guards the heap, the order and customer indices, the
// finalized histories and the counters; every write to an order record is
// made with queueMu held. When both are needed slotMu is taken first.
// Neither lock is held across persistence, publishing or machine calls.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/app/queue"
	"github.com/YelzhanWeb/burger-queue/internal/config"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

const (
	statsHistoryWindow = 100
	waitEstimateWindow = 5
)

var ErrAlreadyStarted = errors.New("scheduler already started")

type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithIDGenerator replaces domain.NewOrderID.
func WithIDGenerator(gen func(time.Time) string) Option {
	return func(s *Scheduler) { s.newID = gen }
}

// WithSnapshotStore enables restore on Start and export on Shutdown.
func WithSnapshotStore(store interfaces.SnapshotStore, restore bool) Option {
	return func(s *Scheduler) {
		s.snapshots = store
		s.restoreOnStart = restore
	}
}

type Scheduler struct {
	cfg            config.SchedulerConfig
	repo           interfaces.OrderRepository
	publisher      interfaces.EventPublisher
	machine        interfaces.Machine
	snapshots      interfaces.SnapshotStore
	restoreOnStart bool
	logger         logger.Logger
	consolidator   queue.Consolidator
	now            func() time.Time
	newID          func(time.Time) string

	slotMu sync.Mutex
	busy   *domain.Order
	last   *domain.Order

	queueMu     sync.Mutex
	queue       *queue.Queue
	index       map[string]*domain.Order
	customers   map[string][]string
	admitting   int
	completed   []*domain.Order
	failed      []*domain.Order
	cancelled   []*domain.Order
	totalOrders int
	ordersToday int
	day         string
	stats       domain.Stats

	runMu   sync.Mutex
	stop    context.CancelFunc
	workers sync.WaitGroup
}

func New(
	cfg config.SchedulerConfig,
	repo interfaces.OrderRepository,
	publisher interfaces.EventPublisher,
	machine interfaces.Machine,
	log logger.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		cfg:          cfg,
		repo:         repo,
		publisher:    publisher,
		machine:      machine,
		logger:       log,
		consolidator: queue.NewConsolidator(cfg.BatchingEnabled(), cfg.BatchWindow),
		now:          time.Now,
		newID:        domain.NewOrderID,
		queue:        queue.New(),
		index:        make(map[string]*domain.Order),
		customers:    make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start restores the last snapshot if configured and launches the
// supervisor, statistics and cleanup workers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stop != nil {
		return ErrAlreadyStarted
	}

	if s.snapshots != nil && s.restoreOnStart {
		s.restore(ctx)
	}

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = stop

	s.runEvery(runCtx, "processing_sweep", s.cfg.ProcessingSweep(), s.sweepProcessing)
	s.runEvery(runCtx, "queue_sweep", s.cfg.QueueSweep(), s.sweepQueue)
	s.runEvery(runCtx, "stats", s.cfg.StatsInterval(), func(ctx context.Context) { s.refreshStats(ctx) })
	s.runEvery(runCtx, "cleanup", s.cfg.CleanupInterval(), s.cleanup)

	s.logger.Info("scheduler_started", "Scheduler started", "", map[string]interface{}{
		"max_queue_size": s.cfg.MaxQueueSize,
		"batching":       s.consolidator.Enabled,
	})

	s.dispatch(ctx)
	s.refreshStats(ctx)
	return nil
}

// Shutdown signals every worker, waits for them and exports the queue to
// the snapshot store.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.runMu.Lock()
	stop := s.stop
	s.stop = nil
	s.runMu.Unlock()

	if stop != nil {
		stop()
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if s.snapshots != nil {
		snapshot := s.Export()
		if err := s.snapshots.Save(ctx, snapshot); err != nil {
			s.logger.Error("snapshot_save_failed", "Failed to save queue snapshot", "", nil, err)
			return err
		}
		s.logger.Info("snapshot_saved", "Queue snapshot saved", "", map[string]interface{}{
			"queued": len(snapshot.Queued),
		})
	}

	s.logger.Info("scheduler_stopped", "Scheduler stopped", "", nil)
	return nil
}

func (s *Scheduler) runEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("worker_stopped", "Worker stopped", "", map[string]interface{}{"worker": name})
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

func (s *Scheduler) restore(ctx context.Context) {
	snapshot, err := s.snapshots.Load(ctx)
	if err != nil {
		s.logger.Error("snapshot_load_failed", "Failed to load queue snapshot", "", nil, err)
		return
	}
	if snapshot == nil {
		return
	}
	if _, err := s.Import(ctx, snapshot); err != nil {
		s.logger.Error("snapshot_import_failed", "Failed to import queue snapshot", "", nil, err)
	}
}

func (s *Scheduler) publish(ctx context.Context, event domain.Event) {
	s.publisher.Publish(ctx, event)
}

func (s *Scheduler) persistStatus(ctx context.Context, order *domain.Order) {
	detail := interfaces.StatusDetail{
		ActualSeconds: order.ActualSeconds,
		Reason:        order.Reason,
	}
	switch {
	case order.FinishedAt() != nil:
		detail.At = *order.FinishedAt()
	case order.StartedAt != nil:
		detail.At = *order.StartedAt
	default:
		detail.At = s.now()
	}

	err := s.repo.UpdateOrderStatus(ctx, order.ID, order.Status, detail)
	if errors.Is(err, domain.ErrStaleStatus) {
		s.logger.Warn("db_update_skipped", "Stored order already finalized", order.ID, map[string]interface{}{
			"status": order.Status,
			"error":  err.Error(),
		})
		return
	}
	if err != nil {
		s.logger.Error("db_update_failed", "Failed to persist order status", order.ID, map[string]interface{}{
			"status": order.Status,
		}, err)
	}
}

var _ interfaces.SchedulerService = (*Scheduler)(nil)
