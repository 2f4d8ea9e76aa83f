package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/app/kitchen"
	"github.com/YelzhanWeb/burger-queue/internal/config"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

func (h *harness) submit(t *testing.T, req domain.OrderRequest) string {
	t.Helper()
	res, err := h.Submit(context.Background(), req)
	require.NoError(t, err)
	return res.OrderID
}

func (h *harness) status(t *testing.T, id string) *domain.Order {
	t.Helper()
	order, ok := h.OrderStatus(context.Background(), id)
	require.True(t, ok, "order %s not found", id)
	return order
}

func queuedIDs(s *Scheduler) []string {
	var ids []string
	for _, q := range s.Export().Queued {
		ids = append(ids, q.Order.ID)
	}
	return ids
}

func TestSubmitDispatchesWhenIdle(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.Submit(context.Background(), burgerRequest("alice", "classic"))
	require.NoError(t, err)
	assert.Equal(t, "ORD-001", res.OrderID)
	assert.Equal(t, 1, res.QueuePosition)
	assert.Equal(t, "queued", res.Status)

	assert.Equal(t, []string{"ORD-001"}, h.machine.Started())
	order := h.status(t, "ORD-001")
	assert.Equal(t, domain.StatusProcessing, order.Status)
	require.NotNil(t, order.StartedAt)

	_, ok := h.repo.orders["ORD-001"]
	assert.True(t, ok)
	assert.Len(t, h.publisher.ofKind(domain.EventOrderQueued), 1)
	assert.Len(t, h.publisher.ofKind(domain.EventProcessingStarted), 1)
}

func TestSubmitRejectsInvalidWithoutStateChange(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.Submit(context.Background(), domain.OrderRequest{CustomerID: "bob"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, h.machine.Started())
	assert.Empty(t, h.repo.orders)
	assert.Empty(t, h.publisher.events)
	assert.Zero(t, h.QueueStatus().QueueSize)
}

func TestLargeOrderWithoutTagIsLow(t *testing.T) {
	h := newHarness(t, nil)
	h.submit(t, burgerRequest("blocker", "classic"))

	req := domain.OrderRequest{CustomerID: "big"}
	for i := 0; i < 12; i++ {
		req.Items = append(req.Items, domain.OrderItem{Product: domain.ItemTypeBurger, BurgerType: "classic", Quantity: 1})
	}
	id := h.submit(t, req)
	assert.Equal(t, domain.PriorityLow, h.status(t, id).Priority)
}

func TestVIPAfterNormalDequeuesFirst(t *testing.T) {
	h := newHarness(t, noBatching)
	ctx := context.Background()

	blocker := h.submit(t, burgerRequest("blocker", "classic"))
	h.clock.Advance(time.Second)
	normal := h.submit(t, burgerRequest("n", "classic"))
	h.clock.Advance(time.Second)
	vipReq := burgerRequest("v", "classic")
	vipReq.VIP = true
	vip := h.submit(t, vipReq)

	require.True(t, h.Complete(ctx, blocker))
	assert.Equal(t, []string{blocker, vip}, h.machine.Started())

	require.True(t, h.Complete(ctx, vip))
	assert.Equal(t, []string{blocker, vip, normal}, h.machine.Started())
}

func TestQueueFullLeavesQueueUntouched(t *testing.T) {
	h := newHarness(t, func(cfg *config.SchedulerConfig) { cfg.MaxQueueSize = 1 })

	h.submit(t, burgerRequest("blocker", "classic"))
	h.submit(t, burgerRequest("o1", "classic"))
	require.Equal(t, 1, h.QueueStatus().QueueSize)

	res, err := h.Submit(context.Background(), burgerRequest("o2", "classic"))
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQueueFull))

	var full *domain.QueueFullError
	require.ErrorAs(t, err, &full)
	assert.Equal(t, 1, full.Max)

	assert.Equal(t, 1, h.QueueStatus().QueueSize)
	assert.Len(t, h.publisher.ofKind(domain.EventQueueFull), 1)
	assert.Len(t, h.repo.orders, 2)
}

func TestCapacityHoldsAtMaximum(t *testing.T) {
	h := newHarness(t, func(cfg *config.SchedulerConfig) { cfg.MaxQueueSize = 3 })
	h.submit(t, burgerRequest("blocker", "classic"))

	for i := 0; i < 3; i++ {
		h.submit(t, burgerRequest("c", "classic"))
	}
	_, err := h.Submit(context.Background(), burgerRequest("c", "classic"))
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Equal(t, 3, h.QueueStatus().QueueSize)
}

func TestProcessingTimeoutFailsAndDispatchesNext(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	o1 := h.submit(t, burgerRequest("a", "classic"))
	o2 := h.submit(t, burgerRequest("b", "veggie"))

	h.clock.Advance(599 * time.Second)
	h.sweepProcessing(ctx)
	assert.Equal(t, domain.StatusProcessing, h.status(t, o1).Status)

	h.clock.Advance(2 * time.Second)
	h.sweepProcessing(ctx)

	failed := h.status(t, o1)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Contains(t, failed.Reason, "timeout")
	assert.Equal(t, domain.StatusProcessing, h.status(t, o2).Status)
	assert.Equal(t, []string{o1, o2}, h.machine.Started())
	assert.Equal(t, []string{o1}, h.machine.Abandoned())

	events := h.publisher.ofKind(domain.EventOrderFailed)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReasonProcessingTimeout, events[0].(domain.OrderFailed).Reason)
}

func TestBatchingPrefersSharedSubtype(t *testing.T) {
	h := newHarness(t, nil)

	busy := h.submit(t, burgerRequest("x", "classic"))
	h.clock.Advance(time.Second)
	o1 := h.submit(t, burgerRequest("y", "veggie"))
	h.clock.Advance(time.Second)
	o2 := h.submit(t, burgerRequest("z", "classic"))

	require.True(t, h.Complete(context.Background(), busy))
	assert.Equal(t, []string{busy, o2}, h.machine.Started())
	assert.Equal(t, []string{o1}, queuedIDs(h.Scheduler))
}

func TestAtMostOneProcessingUnderConcurrentDispatch(t *testing.T) {
	h := newHarnessWithLogger(t, logger.NewNop(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.Submit(ctx, burgerRequest("c", "classic"))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			h.SlotReady(ctx)
		}()
	}
	wg.Wait()

	assert.Len(t, h.machine.Started(), 1)
	st := h.QueueStatus()
	assert.Equal(t, 1, st.ProcessingCount)
	assert.Equal(t, 19, st.QueueSize)
}

func TestMachineCompletingAsynchronouslyNeverOverlaps(t *testing.T) {
	h := newHarnessWithLogger(t, logger.NewNop(), nil)
	ctx := context.Background()

	var active, maxActive int32
	h.machine.onStart = func(order *domain.Order) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		go func() {
			atomic.AddInt32(&active, -1)
			h.Complete(ctx, order.ID)
		}()
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.Submit(ctx, burgerRequest("c", "classic", "veggie"))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		h.queueMu.Lock()
		defer h.queueMu.Unlock()
		return len(h.completed) == 20
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestCompleteAndFailIgnoreOtherIDs(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	busy := h.submit(t, burgerRequest("a", "classic"))
	queued := h.submit(t, burgerRequest("b", "classic"))
	before := len(h.publisher.events)

	assert.False(t, h.Complete(ctx, queued))
	assert.False(t, h.Fail(ctx, "ORD-404", "boom"))
	assert.False(t, h.Complete(ctx, ""))

	assert.Equal(t, domain.StatusProcessing, h.status(t, busy).Status)
	assert.Equal(t, domain.StatusPending, h.status(t, queued).Status)
	assert.Len(t, h.publisher.events, before)

	require.True(t, h.Complete(ctx, busy))
	assert.False(t, h.Complete(ctx, busy), "second completion is a no-op")
}

func TestCompleteRecordsActualSeconds(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, burgerRequest("a", "classic"))

	h.clock.Advance(97*time.Second + 600*time.Millisecond)
	require.True(t, h.Complete(context.Background(), id))

	order := h.status(t, id)
	assert.Equal(t, domain.StatusServed, order.Status)
	assert.Equal(t, 97, order.ActualSeconds)

	last := h.repo.statuses[len(h.repo.statuses)-1]
	assert.Equal(t, domain.StatusServed, last.Status)
	assert.Equal(t, 97, last.Detail.ActualSeconds)
}

func TestCancelIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.submit(t, burgerRequest("a", "classic"))
	queued := h.submit(t, burgerRequest("b", "classic"))

	assert.True(t, h.Cancel(ctx, queued, ""))
	assert.False(t, h.Cancel(ctx, queued, ""))
	assert.False(t, h.Cancel(ctx, "ORD-404", ""))

	events := h.publisher.ofKind(domain.EventOrderCancelled)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ReasonCustomerCancelled, events[0].(domain.OrderCancelled).Reason)
	assert.Zero(t, h.QueueStatus().QueueSize)
}

func TestCancelProcessingFreesSlot(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	busy := h.submit(t, burgerRequest("a", "classic"))
	next := h.submit(t, burgerRequest("b", "veggie"))

	require.True(t, h.Cancel(ctx, busy, "changed mind"))
	assert.Equal(t, domain.StatusCancelled, h.status(t, busy).Status)
	assert.Equal(t, "changed mind", h.status(t, busy).Reason)
	assert.Equal(t, []string{busy, next}, h.machine.Started())
	assert.Equal(t, []string{busy}, h.machine.Abandoned())
}

func TestMachineCompletionDoesNotAbandon(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	id := h.submit(t, burgerRequest("a", "classic"))
	require.True(t, h.Complete(ctx, id))
	assert.Empty(t, h.machine.Abandoned())
}

func TestRefusedHandoffReturnsOrderToQueue(t *testing.T) {
	h := newHarness(t, noBatching)
	ctx := context.Background()
	h.machine.setErr(errors.New("pipeline offline"))

	first := h.submit(t, burgerRequest("a", "classic"))
	h.clock.Advance(time.Second)
	second := h.submit(t, burgerRequest("b", "veggie"))

	order := h.status(t, first)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Nil(t, order.StartedAt)
	assert.Equal(t, domain.StatusPending, h.status(t, second).Status)

	status := h.QueueStatus()
	assert.Zero(t, status.ProcessingCount)
	assert.Equal(t, 2, status.QueueSize)
	assert.Empty(t, h.publisher.ofKind(domain.EventOrderFailed))

	h.machine.setErr(nil)
	h.SlotReady(ctx)

	assert.Equal(t, domain.StatusProcessing, h.status(t, first).Status)
	assert.Equal(t, domain.StatusPending, h.status(t, second).Status)
	assert.Equal(t, []string{first, first, first}, h.machine.Started())

	h.repo.mu.Lock()
	writes := append([]statusWrite(nil), h.repo.statuses...)
	h.repo.mu.Unlock()
	var rollbacks int
	for _, w := range writes {
		if w.OrderID == first && w.Status == domain.StatusPending {
			rollbacks++
		}
	}
	assert.Equal(t, 2, rollbacks)
}

func TestCancelProcessingWithSimulatorKeepsQueueFlowing(t *testing.T) {
	log := logger.NewWithZap(zaptest.NewLogger(t))
	sim := kitchen.NewSimulator(log, 1, 0)
	t.Cleanup(func() {
		sim.Stop()
		sim.Wait()
	})

	clock := &fakeClock{t: t0}
	s := New(config.Default().Scheduler, newFakeRepo(), &fakePublisher{}, sim, log,
		WithClock(clock.Now), WithIDGenerator(sequentialIDs("ORD")))
	sim.Bind(s)
	ctx := context.Background()

	for _, customer := range []string{"a", "b", "c", "d"} {
		_, err := s.Submit(ctx, burgerRequest(customer, "classic"))
		require.NoError(t, err)
	}

	require.True(t, s.Cancel(ctx, "ORD-001", ""))

	want := map[string]domain.Status{
		"ORD-001": domain.StatusCancelled,
		"ORD-002": domain.StatusProcessing,
		"ORD-003": domain.StatusPending,
		"ORD-004": domain.StatusPending,
	}
	for id, status := range want {
		order, ok := s.OrderStatus(ctx, id)
		require.True(t, ok, id)
		assert.Equal(t, status, order.Status, id)
	}
	assert.Equal(t, 1, s.QueueStatus().ProcessingCount)
	assert.Equal(t, 2, s.QueueStatus().QueueSize)
}

func TestPersistenceFailureDoesNotBlockAdmission(t *testing.T) {
	h := newHarness(t, nil)
	h.repo.insertErr = errors.New("db down")

	id := h.submit(t, burgerRequest("a", "classic"))
	assert.Equal(t, domain.StatusProcessing, h.status(t, id).Status)
}

func TestStartPublishesStatsImmediately(t *testing.T) {
	store := &fakeSnapshotStore{saved: &domain.Snapshot{
		Timestamp: t0,
		Queued: []domain.QueuedOrder{
			{Order: &domain.Order{ID: "S-1", CustomerID: "a", Priority: domain.PriorityNormal, Status: domain.StatusPending, EstimatedSeconds: 120, CreatedAt: t0}, QueuedAt: t0},
			{Order: &domain.Order{ID: "S-2", CustomerID: "b", Priority: domain.PriorityNormal, Status: domain.StatusPending, EstimatedSeconds: 120, CreatedAt: t0}, QueuedAt: t0.Add(time.Second)},
		},
	}}
	h := newHarness(t, nil, WithSnapshotStore(store, true))
	ctx := context.Background()

	require.NoError(t, h.Start(ctx))
	defer func() { require.NoError(t, h.Shutdown(ctx)) }()

	stats := h.QueueStatus().Stats
	assert.Equal(t, t0, stats.UpdatedAt)
	assert.Equal(t, 1, stats.QueueSize)
	assert.Equal(t, 1, stats.ProcessingCount)
	assert.Len(t, h.publisher.ofKind(domain.EventStatsUpdated), 1)
}

func TestStartRestoresAndShutdownSaves(t *testing.T) {
	store := &fakeSnapshotStore{}
	h := newHarness(t, nil, WithSnapshotStore(store, true))
	ctx := context.Background()

	require.NoError(t, h.Start(ctx))
	assert.ErrorIs(t, h.Start(ctx), ErrAlreadyStarted)

	busy := h.submit(t, burgerRequest("a", "classic"))
	queued := h.submit(t, burgerRequest("b", "veggie"))
	require.NoError(t, h.Shutdown(ctx))

	require.NotNil(t, store.saved)
	require.Len(t, store.saved.Queued, 1)
	assert.Equal(t, queued, store.saved.Queued[0].Order.ID)
	require.NotNil(t, store.saved.ProcessingOrder)
	assert.Equal(t, busy, store.saved.ProcessingOrder.ID)

	restarted := newHarness(t, nil, WithSnapshotStore(store, true), WithIDGenerator(sequentialIDs("NEW")))
	require.NoError(t, restarted.Start(ctx))
	defer func() { require.NoError(t, restarted.Shutdown(ctx)) }()

	// the interrupted order goes first again
	assert.Equal(t, []string{busy}, restarted.machine.Started())
	assert.Equal(t, []string{queued}, queuedIDs(restarted.Scheduler))
}
