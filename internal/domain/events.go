package domain

import "time"

// EventKind names one notification the scheduler emits. The set is closed:
// every kind has exactly one payload type below.
type EventKind string

const (
	EventOrderQueued       EventKind = "order.queued"
	EventQueueFull         EventKind = "queue.full"
	EventProcessingStarted EventKind = "order.processing.started"
	EventOrderCompleted    EventKind = "order.completed"
	EventOrderFailed       EventKind = "order.failed"
	EventOrderCancelled    EventKind = "order.cancelled"
	EventOrderDemoted      EventKind = "order.demoted"
	EventStatsUpdated      EventKind = "queue.stats.updated"
	EventQueueCleared      EventKind = "queue.cleared"
)

// EventKinds lists every kind, in a stable order.
var EventKinds = []EventKind{
	EventOrderQueued,
	EventQueueFull,
	EventProcessingStarted,
	EventOrderCompleted,
	EventOrderFailed,
	EventOrderCancelled,
	EventOrderDemoted,
	EventStatsUpdated,
	EventQueueCleared,
}

// Event is implemented only by the payload types in this file.
type Event interface {
	Kind() EventKind
	OccurredAt() time.Time
	sealed()
}

type OrderQueued struct {
	OrderID       string    `json:"order_id"`
	CustomerID    string    `json:"customer_id"`
	Priority      Priority  `json:"priority"`
	Position      int       `json:"position"`
	EstimatedWait int       `json:"estimated_wait"`
	At            time.Time `json:"timestamp"`
}

type QueueFull struct {
	QueueSize int       `json:"queue_size"`
	MaxSize   int       `json:"max_size"`
	At        time.Time `json:"timestamp"`
}

type ProcessingStarted struct {
	OrderID          string      `json:"order_id"`
	CustomerID       string      `json:"customer_id"`
	Items            []OrderItem `json:"items"`
	EstimatedSeconds int         `json:"estimated_time"`
	At               time.Time   `json:"timestamp"`
}

type OrderCompleted struct {
	OrderID            string    `json:"order_id"`
	CustomerID         string    `json:"customer_id"`
	PreparationSeconds int       `json:"preparation_time"`
	At                 time.Time `json:"timestamp"`
}

type OrderFailed struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Reason     string    `json:"error"`
	At         time.Time `json:"timestamp"`
}

type OrderCancelled struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"timestamp"`
}

type OrderDemoted struct {
	OrderID    string    `json:"order_id"`
	Ingredient string    `json:"ingredient"`
	From       Priority  `json:"from"`
	To         Priority  `json:"to"`
	At         time.Time `json:"timestamp"`
}

type StatsUpdated struct {
	Stats Stats     `json:"stats"`
	At    time.Time `json:"timestamp"`
}

type QueueCleared struct {
	Reason  string    `json:"reason"`
	Cleared int       `json:"orders_cleared"`
	At      time.Time `json:"timestamp"`
}

func (e OrderQueued) Kind() EventKind       { return EventOrderQueued }
func (e QueueFull) Kind() EventKind         { return EventQueueFull }
func (e ProcessingStarted) Kind() EventKind { return EventProcessingStarted }
func (e OrderCompleted) Kind() EventKind    { return EventOrderCompleted }
func (e OrderFailed) Kind() EventKind       { return EventOrderFailed }
func (e OrderCancelled) Kind() EventKind    { return EventOrderCancelled }
func (e OrderDemoted) Kind() EventKind      { return EventOrderDemoted }
func (e StatsUpdated) Kind() EventKind      { return EventStatsUpdated }
func (e QueueCleared) Kind() EventKind      { return EventQueueCleared }

func (e OrderQueued) OccurredAt() time.Time       { return e.At }
func (e QueueFull) OccurredAt() time.Time         { return e.At }
func (e ProcessingStarted) OccurredAt() time.Time { return e.At }
func (e OrderCompleted) OccurredAt() time.Time    { return e.At }
func (e OrderFailed) OccurredAt() time.Time       { return e.At }
func (e OrderCancelled) OccurredAt() time.Time    { return e.At }
func (e OrderDemoted) OccurredAt() time.Time      { return e.At }
func (e StatsUpdated) OccurredAt() time.Time      { return e.At }
func (e QueueCleared) OccurredAt() time.Time      { return e.At }

func (OrderQueued) sealed()       {}
func (QueueFull) sealed()         {}
func (ProcessingStarted) sealed() {}
func (OrderCompleted) sealed()    {}
func (OrderFailed) sealed()       {}
func (OrderCancelled) sealed()    {}
func (OrderDemoted) sealed()      {}
func (StatsUpdated) sealed()      {}
func (QueueCleared) sealed()      {}

// Stats is the periodic queue metrics snapshot.
type Stats struct {
	TotalOrders           int       `json:"total_orders"`
	OrdersToday           int       `json:"orders_today"`
	AvgPreparationSeconds float64   `json:"avg_processing_time"`
	QueueSize             int       `json:"queue_size"`
	ProcessingCount       int       `json:"processing_count"`
	EstimatedWaitSeconds  int       `json:"estimated_wait"`
	CompletedCount        int       `json:"completed_count"`
	FailedCount           int       `json:"failed_count"`
	CancelledCount        int       `json:"cancelled_count"`
	UpdatedAt             time.Time `json:"updated_at"`
}
