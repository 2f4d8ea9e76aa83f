package interfaces

import (
	"context"
	"encoding/json"
	"time"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
)

// EventPublisher is fire-and-forget: implementations must not block the
// caller and report their own failures through logging.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}

// Machine hands a dispatched order to the physical pipeline. The machine
// later reports the outcome through ProcessingReporter. Abandon tells it to
// drop an order the scheduler finalized on its own (cancel, timeout); no
// report is expected for it afterwards.
type Machine interface {
	Start(ctx context.Context, order *domain.Order) error
	Abandon(ctx context.Context, orderID string) error
}

// ProcessingReporter is what the hardware collaborator calls back into.
type ProcessingReporter interface {
	Complete(ctx context.Context, orderID string) bool
	Fail(ctx context.Context, orderID, reason string) bool
	SlotReady(ctx context.Context)
}

// EventMessage is the wire form of a published event. The routing key is
// the event kind.
type EventMessage struct {
	Kind       domain.EventKind `json:"event"`
	OccurredAt time.Time        `json:"timestamp"`
	Payload    json.RawMessage  `json:"payload"`
}

// Messages consumed from RabbitMQ
type ShortageMessage struct {
	Ingredient string `json:"ingredient"`
	Level      int    `json:"level,omitempty"`
}

type MessageConsumer interface {
	// Consume reads a durable queue with a dead-letter queue until ctx is done.
	Consume(ctx context.Context, binding QueueBinding, handler MessageHandler) error
	// Subscribe reads a private auto-delete queue bound to exchange.
	Subscribe(ctx context.Context, exchange, routingKey string, handler MessageHandler) error
}

// QueueBinding describes a durable queue bound to a topic exchange.
type QueueBinding struct {
	Exchange   string
	Queue      string
	RoutingKey string
	Prefetch   int
}

// MessageHandler returns ErrRequeue to nack with requeue; any other error
// dead-letters the message.
type MessageHandler func(ctx context.Context, body []byte) error
