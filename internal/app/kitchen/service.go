// Package kitchen simulates the burger machine when no hardware link is configured.
package kitchen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

var (
	ErrNotBound = errors.New("simulator has no processing reporter")
	ErrBusy     = errors.New("simulator is already cooking")
)

// Simulator cooks one order at a time for EstimatedSeconds/speedup, then
// reports completion. It also sends a periodic slot-ready heartbeat.
type Simulator struct {
	logger            logger.Logger
	speedup           int
	heartbeatInterval time.Duration
	failIngredient    string

	mu       sync.Mutex
	reporter interfaces.ProcessingReporter
	current  string
	dropped  chan struct{}
	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func NewSimulator(logger logger.Logger, speedup int, heartbeatInterval time.Duration) *Simulator {
	if speedup < 1 {
		speedup = 1
	}
	return &Simulator{
		logger:            logger,
		speedup:           speedup,
		heartbeatInterval: heartbeatInterval,
		stop:              make(chan struct{}),
	}
}

// FailOn makes every order that needs the ingredient fail instead of cooking.
func (s *Simulator) FailOn(ingredient string) {
	s.mu.Lock()
	s.failIngredient = ingredient
	s.mu.Unlock()
}

// Bind attaches the scheduler that receives completions.
func (s *Simulator) Bind(reporter interfaces.ProcessingReporter) {
	s.mu.Lock()
	s.reporter = reporter
	s.mu.Unlock()
}

// Run sends the slot-ready heartbeat until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	if s.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			reporter, idle := s.reporter, s.current == ""
			s.mu.Unlock()
			if reporter != nil && idle {
				s.logger.Debug("slot_ready", "Machine slot ready", "", nil)
				reporter.SlotReady(ctx)
			}
		}
	}
}

// Start implements interfaces.Machine. Cooking outlives ctx and ends only
// on completion, Abandon or Stop.
func (s *Simulator) Start(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	if s.reporter == nil {
		s.mu.Unlock()
		return ErrNotBound
	}
	if s.current != "" {
		busy := s.current
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBusy, busy)
	}
	s.current = order.ID
	s.dropped = make(chan struct{})
	dropped := s.dropped
	reporter := s.reporter
	failIngredient := s.failIngredient
	s.mu.Unlock()

	cookingTime := s.CookingTime(order)
	s.logger.Debug("cooking_started", fmt.Sprintf("Cooking order %s", order.ID), order.ID, map[string]interface{}{
		"cooking_time": cookingTime.String(),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.cook(reporter, order.ID, dropped, cookingTime, failIngredient != "" && order.NeedsIngredient(failIngredient), failIngredient)
	}()
	return nil
}

// Abandon implements interfaces.Machine. The order being cooked is dropped
// without a report and the slot frees at once. Other ids are ignored.
func (s *Simulator) Abandon(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != orderID {
		return nil
	}
	close(s.dropped)
	s.current = ""
	s.dropped = nil
	s.logger.Debug("cooking_abandoned", fmt.Sprintf("Order %s dropped from the grill", orderID), orderID, nil)
	return nil
}

func (s *Simulator) cook(reporter interfaces.ProcessingReporter, orderID string, dropped <-chan struct{}, cookingTime time.Duration, fail bool, ingredient string) {
	timer := time.NewTimer(cookingTime)
	defer timer.Stop()

	select {
	case <-dropped:
		return
	case <-s.stop:
		s.release(orderID)
		s.logger.Debug("cooking_interrupted", "Cooking interrupted by shutdown", orderID, nil)
		return
	case <-timer.C:
	}

	ctx := context.Background()
	s.release(orderID)
	if fail {
		reporter.Fail(ctx, orderID, fmt.Sprintf("out of %s", ingredient))
		return
	}
	reporter.Complete(ctx, orderID)
	s.logger.Debug("cooking_completed", fmt.Sprintf("Order %s cooked", orderID), orderID, nil)
}

func (s *Simulator) release(orderID string) {
	s.mu.Lock()
	if s.current == orderID {
		s.current = ""
		s.dropped = nil
	}
	s.mu.Unlock()
}

// CookingTime scales the order estimate by the speedup factor.
func (s *Simulator) CookingTime(order *domain.Order) time.Duration {
	return time.Duration(order.EstimatedSeconds) * time.Second / time.Duration(s.speedup)
}

// Stop interrupts any order being cooked without reporting it.
func (s *Simulator) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Wait blocks until every cooking goroutine has returned.
func (s *Simulator) Wait() {
	s.wg.Wait()
}

var _ interfaces.Machine = (*Simulator)(nil)
