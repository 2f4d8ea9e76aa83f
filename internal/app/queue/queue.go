// Package queue holds the order heap and the dispatch-time batch heuristic.
//
// Queue is not safe for concurrent use. The scheduler serializes every call
// under its queue lock, which also guards its own indices.
package queue

import (
	"container/heap"
	"sort"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

// Entry is a queued order with its heap ordering key. QueuedAt decides FIFO
// order inside a tier; it is reset when an order is re-inserted after a
// demotion, while Order.CreatedAt keeps the original admission time.
type Entry struct {
	Order    *domain.Order
	QueuedAt time.Time

	seq   uint64
	index int
}

func (e *Entry) less(other *Entry) bool {
	if e.Order.Priority != other.Order.Priority {
		return e.Order.Priority < other.Order.Priority
	}
	if !e.QueuedAt.Equal(other.QueuedAt) {
		return e.QueuedAt.Before(other.QueuedAt)
	}
	return e.seq < other.seq
}

type entryHeap []*Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].less(h[j]) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a min-heap keyed by (priority tier, queued time) with an id index.
// Entries carry their heap position, so removal and priority changes are O(log n).
type Queue struct {
	h    entryHeap
	byID map[string]*Entry
	seq  uint64
}

func New() *Queue {
	return &Queue{byID: make(map[string]*Entry)}
}

func (q *Queue) Len() int {
	return len(q.h)
}

// Push inserts the order. An order already present is left untouched and
// Push reports false.
func (q *Queue) Push(order *domain.Order, queuedAt time.Time) bool {
	if _, exists := q.byID[order.ID]; exists {
		return false
	}
	q.seq++
	e := &Entry{Order: order, QueuedAt: queuedAt, seq: q.seq}
	heap.Push(&q.h, e)
	q.byID[order.ID] = e
	return true
}

// Pop removes and returns the top order, or nil when the queue is empty.
func (q *Queue) Pop() *domain.Order {
	e, ok := q.popEntry()
	if !ok {
		return nil
	}
	return e.Order
}

func (q *Queue) popEntry() (Entry, bool) {
	if len(q.h) == 0 {
		return Entry{}, false
	}
	e := heap.Pop(&q.h).(*Entry)
	delete(q.byID, e.Order.ID)
	return Entry{Order: e.Order, QueuedAt: e.QueuedAt, seq: e.seq, index: -1}, true
}

func (q *Queue) Peek() *domain.Order {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0].Order
}

func (q *Queue) Get(id string) (*domain.Order, bool) {
	e, ok := q.byID[id]
	if !ok {
		return nil, false
	}
	return e.Order, true
}

// Remove takes the order out of heap order.
func (q *Queue) Remove(id string) (*domain.Order, bool) {
	e, ok := q.removeEntry(id)
	if !ok {
		return nil, false
	}
	return e.Order, true
}

func (q *Queue) removeEntry(id string) (Entry, bool) {
	e, ok := q.byID[id]
	if !ok {
		return Entry{}, false
	}
	heap.Remove(&q.h, e.index)
	delete(q.byID, id)
	return Entry{Order: e.Order, QueuedAt: e.QueuedAt, seq: e.seq, index: -1}, true
}

// Reprioritize sets a new tier and moves the order to the back of it.
func (q *Queue) Reprioritize(id string, priority domain.Priority, queuedAt time.Time) bool {
	e, ok := q.byID[id]
	if !ok {
		return false
	}
	q.seq++
	e.Order.Priority = priority
	e.QueuedAt = queuedAt
	e.seq = q.seq
	heap.Fix(&q.h, e.index)
	return true
}

// Position returns the 1-based dequeue position of id under strict ordering.
func (q *Queue) Position(id string) int {
	for i, e := range q.Ordered() {
		if e.Order.ID == id {
			return i + 1
		}
	}
	return 0
}

// Head returns up to n entries in dequeue order without modifying the heap.
func (q *Queue) Head(n int) []Entry {
	ordered := q.Ordered()
	if n < len(ordered) {
		ordered = ordered[:n]
	}
	return ordered
}

// Ordered returns a copy of every entry sorted in dequeue order.
func (q *Queue) Ordered() []Entry {
	sorted := make([]*Entry, len(q.h))
	copy(sorted, q.h)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].less(sorted[j]) })

	out := make([]Entry, len(sorted))
	for i, e := range sorted {
		out[i] = Entry{Order: e.Order, QueuedAt: e.QueuedAt, seq: e.seq, index: -1}
	}
	return out
}

// Drain empties the queue and returns its entries in dequeue order.
func (q *Queue) Drain() []Entry {
	out := q.Ordered()
	q.h = nil
	q.byID = make(map[string]*Entry)
	return out
}
