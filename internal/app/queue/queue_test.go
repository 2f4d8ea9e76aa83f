package queue

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newOrder(id string, p domain.Priority, burgerTypes ...string) *domain.Order {
	items := make([]domain.OrderItem, 0, len(burgerTypes))
	for _, bt := range burgerTypes {
		items = append(items, domain.OrderItem{Product: domain.ItemTypeBurger, BurgerType: bt, Quantity: 1})
	}
	return &domain.Order{ID: id, Priority: p, Status: domain.StatusPending, Items: items}
}

func ids(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Order.ID
	}
	return out
}

func TestDequeueOrderIsNonDecreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	q := New()
	for i := 0; i < 200; i++ {
		p := domain.Priority(rng.Intn(4))
		at := t0.Add(time.Duration(rng.Intn(30)) * time.Second)
		require.True(t, q.Push(newOrder(fmt.Sprintf("o%d", i), p), at))
	}

	var prev *Entry
	for q.Len() > 0 {
		head := q.Head(1)
		require.Len(t, head, 1)
		cur := head[0]
		require.Same(t, cur.Order, q.Pop())
		if prev != nil {
			assert.False(t, cur.less(prev), "%s dequeued after %s", cur.Order.ID, prev.Order.ID)
		}
		prev = &cur
	}
	assert.Nil(t, q.Pop())
}

func TestFIFOWithinTier(t *testing.T) {
	q := New()
	q.Push(newOrder("a", domain.PriorityNormal), t0)
	q.Push(newOrder("b", domain.PriorityNormal), t0)
	q.Push(newOrder("c", domain.PriorityNormal), t0.Add(time.Second))

	assert.Equal(t, []string{"a", "b", "c"}, ids(q.Ordered()))
}

func TestVIPAdmittedLaterDequeuesFirst(t *testing.T) {
	q := New()
	q.Push(newOrder("normal", domain.PriorityNormal), t0)
	q.Push(newOrder("vip", domain.PriorityHigh), t0.Add(time.Minute))

	assert.Equal(t, "vip", q.Pop().ID)
	assert.Equal(t, "normal", q.Pop().ID)
}

func TestPushRejectsDuplicateID(t *testing.T) {
	q := New()
	require.True(t, q.Push(newOrder("a", domain.PriorityLow), t0))
	assert.False(t, q.Push(newOrder("a", domain.PriorityHigh), t0))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, domain.PriorityLow, q.Peek().Priority)
}

func TestRemoveKeepsHeapOrder(t *testing.T) {
	q := New()
	for i, p := range []domain.Priority{2, 0, 1, 3, 1, 0} {
		q.Push(newOrder(fmt.Sprintf("o%d", i), p), t0.Add(time.Duration(i)*time.Second))
	}

	removed, ok := q.Remove("o2")
	require.True(t, ok)
	assert.Equal(t, "o2", removed.ID)

	_, ok = q.Remove("o2")
	assert.False(t, ok)
	_, ok = q.Get("o2")
	assert.False(t, ok)

	assert.Equal(t, []string{"o1", "o5", "o4", "o0", "o3"}, ids(q.Ordered()))
	for _, want := range []string{"o1", "o5", "o4", "o0", "o3"} {
		assert.Equal(t, want, q.Pop().ID)
	}
}

func TestReprioritizeMovesToBackOfNewTier(t *testing.T) {
	q := New()
	q.Push(newOrder("high", domain.PriorityHigh), t0)
	q.Push(newOrder("n1", domain.PriorityNormal), t0.Add(time.Second))
	q.Push(newOrder("n2", domain.PriorityNormal), t0.Add(2*time.Second))

	require.True(t, q.Reprioritize("high", domain.PriorityNormal, t0.Add(3*time.Second)))
	assert.False(t, q.Reprioritize("missing", domain.PriorityLow, t0))

	assert.Equal(t, []string{"n1", "n2", "high"}, ids(q.Ordered()))
	order, _ := q.Get("high")
	assert.Equal(t, domain.PriorityNormal, order.Priority)
}

func TestPositionAndDrain(t *testing.T) {
	q := New()
	q.Push(newOrder("b", domain.PriorityNormal), t0)
	q.Push(newOrder("a", domain.PriorityHigh), t0)

	assert.Equal(t, 1, q.Position("a"))
	assert.Equal(t, 2, q.Position("b"))
	assert.Equal(t, 0, q.Position("zzz"))

	drained := q.Drain()
	assert.Equal(t, []string{"a", "b"}, ids(drained))
	assert.Equal(t, 0, q.Len())
	_, ok := q.Get("a")
	assert.False(t, ok)
}

func TestHeadDoesNotMutate(t *testing.T) {
	q := New()
	for i := 0; i < 8; i++ {
		q.Push(newOrder(fmt.Sprintf("o%d", i), domain.PriorityNormal), t0.Add(time.Duration(i)*time.Second))
	}
	assert.Len(t, q.Head(5), 5)
	assert.Len(t, q.Head(20), 8)
	assert.Equal(t, 8, q.Len())
	assert.Equal(t, "o0", q.Peek().ID)
}
