package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/config"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

var t0 = time.Date(2026, 6, 15, 11, 0, 0, 0, time.Local)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type statusWrite struct {
	OrderID string
	Status  domain.Status
	Detail  interfaces.StatusDetail
}

type fakeRepo struct {
	mu         sync.Mutex
	orders     map[string]*domain.Order
	statuses   []statusWrite
	priorities map[string]domain.Priority
	insertErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{orders: make(map[string]*domain.Order), priorities: make(map[string]domain.Priority)}
}

func (r *fakeRepo) InsertOrder(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *fakeRepo) UpdateOrderStatus(_ context.Context, orderID string, status domain.Status, detail interfaces.StatusDetail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, statusWrite{OrderID: orderID, Status: status, Detail: detail})
	if o, ok := r.orders[orderID]; ok {
		o.Status = status
		o.Reason = detail.Reason
	}
	return nil
}

func (r *fakeRepo) UpdateOrderPriority(_ context.Context, orderID string, priority domain.Priority) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.priorities[orderID] = priority
	return nil
}

func (r *fakeRepo) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *fakeRepo) GetCustomerOrders(_ context.Context, customerID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

func (r *fakeRepo) put(order *domain.Order) {
	r.mu.Lock()
	r.orders[order.ID] = order.Clone()
	r.mu.Unlock()
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *fakePublisher) Publish(_ context.Context, event domain.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *fakePublisher) ofKind(kind domain.EventKind) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Kind() == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeMachine struct {
	mu        sync.Mutex
	started   []string
	abandoned []string
	err       error
	onStart   func(order *domain.Order)
}

func (m *fakeMachine) Start(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	m.started = append(m.started, order.ID)
	err, hook := m.err, m.onStart
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(order)
	}
	return nil
}

func (m *fakeMachine) Abandon(_ context.Context, orderID string) error {
	m.mu.Lock()
	m.abandoned = append(m.abandoned, orderID)
	m.mu.Unlock()
	return nil
}

func (m *fakeMachine) Started() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.started...)
}

func (m *fakeMachine) Abandoned() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.abandoned...)
}

func (m *fakeMachine) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

type fakeSnapshotStore struct {
	mu    sync.Mutex
	saved *domain.Snapshot
}

func (f *fakeSnapshotStore) Save(_ context.Context, snapshot *domain.Snapshot) error {
	f.mu.Lock()
	f.saved = snapshot
	f.mu.Unlock()
	return nil
}

func (f *fakeSnapshotStore) Load(context.Context) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved, nil
}

func (f *fakeSnapshotStore) Close() error { return nil }

type harness struct {
	*Scheduler
	clock     *fakeClock
	repo      *fakeRepo
	publisher *fakePublisher
	machine   *fakeMachine
}

func sequentialIDs(prefix string) func(time.Time) string {
	n := 0
	return func(time.Time) string {
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

func newHarness(t *testing.T, tweak func(*config.SchedulerConfig), opts ...Option) *harness {
	return newHarnessWithLogger(t, logger.NewWithZap(zaptest.NewLogger(t)), tweak, opts...)
}

func newHarnessWithLogger(t *testing.T, log logger.Logger, tweak func(*config.SchedulerConfig), opts ...Option) *harness {
	t.Helper()

	cfg := config.Default().Scheduler
	if tweak != nil {
		tweak(&cfg)
	}

	h := &harness{
		clock:     &fakeClock{t: t0},
		repo:      newFakeRepo(),
		publisher: &fakePublisher{},
		machine:   &fakeMachine{},
	}
	opts = append([]Option{WithClock(h.clock.Now), WithIDGenerator(sequentialIDs("ORD"))}, opts...)
	h.Scheduler = New(cfg, h.repo, h.publisher, h.machine, log, opts...)
	return h
}

func noBatching(cfg *config.SchedulerConfig) {
	off := false
	cfg.Batching = &off
}

func burgerRequest(customer string, burgerTypes ...string) domain.OrderRequest {
	req := domain.OrderRequest{CustomerID: customer}
	for _, bt := range burgerTypes {
		req.Items = append(req.Items, domain.OrderItem{Product: domain.ItemTypeBurger, BurgerType: bt, Quantity: 1})
	}
	return req
}
