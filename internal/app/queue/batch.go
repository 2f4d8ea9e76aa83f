package queue

import "github.com/YelzhanWeb/burger-queue/internal/domain"

const DefaultBatchWindow = 5

// Consolidator picks the next order to dispatch. When enabled it prefers an
// order that shares a burger subtype with the reference order (the one that
// just used the grill), looking only at the first Window entries. This gives
// up strict priority order for fewer machine reconfigurations.
type Consolidator struct {
	Enabled bool
	Window  int
}

func NewConsolidator(enabled bool, window int) Consolidator {
	if window < 1 {
		window = DefaultBatchWindow
	}
	return Consolidator{Enabled: enabled, Window: window}
}

// Next removes and returns the entry to dispatch. The returned entry has a nil
// Order when q is empty. reference is nil on cold start, before any order has
// been processed.
func (c Consolidator) Next(q *Queue, reference *domain.Order) (next Entry, batched bool) {
	if q.Len() == 0 {
		return Entry{}, false
	}
	if !c.Enabled || reference == nil {
		next, _ = q.popEntry()
		return next, false
	}

	head := q.Head(c.Window)
	for i, e := range head {
		if !e.Order.SharesBurgerType(reference) {
			continue
		}
		next, _ = q.removeEntry(e.Order.ID)
		return next, i > 0
	}
	next, _ = q.popEntry()
	return next, false
}
