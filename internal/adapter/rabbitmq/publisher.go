package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

const (
	EventsExchange       = "order_events"
	defaultPublishBuffer = 256
)

// Publisher sends scheduler events to the order_events topic exchange.
// Publish only enqueues into a buffer; Run does the network I/O. When the
// buffer is full the event is dropped and logged.
type Publisher struct {
	conn   Connection
	logger logger.Logger
	queue  chan domain.Event

	closing atomic.Bool
	done    chan struct{}

	mu sync.Mutex
	ch Channel
}

func NewPublisher(conn Connection, logger logger.Logger, buffer int) *Publisher {
	if buffer < 1 {
		buffer = defaultPublishBuffer
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
		queue:  make(chan domain.Event, buffer),
		done:   make(chan struct{}),
	}
}

func (p *Publisher) Publish(_ context.Context, event domain.Event) {
	if p.closing.Load() {
		return
	}

	select {
	case p.queue <- event:
	default:
		p.logger.Warn("rabbitmq_publish_dropped", "Event buffer full, dropping event", "", map[string]interface{}{
			"event": event.Kind(),
		})
	}
}

// Run drains the buffer until ctx is done, then flushes what is left.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	defer p.closeChannel()

	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case event := <-p.queue:
			p.send(event)
		}
	}
}

// Close stops accepting events and waits until Run has flushed. Run exits
// when its context is done.
func (p *Publisher) Close() {
	p.closing.Store(true)
	<-p.done
}

func (p *Publisher) flush() {
	for {
		select {
		case event := <-p.queue:
			p.send(event)
		default:
			return
		}
	}
}

func (p *Publisher) send(event domain.Event) {
	body, err := encodeEvent(event)
	if err != nil {
		p.logger.Error("rabbitmq_publish_failed", "Failed to encode event", "", map[string]interface{}{
			"event": event.Kind(),
		}, err)
		return
	}

	ch, err := p.channel()
	if err != nil {
		p.logger.Error("rabbitmq_publish_failed", "Failed to open channel", "", nil, err)
		return
	}

	err = ch.Publish(EventsExchange, string(event.Kind()), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt(),
		Type:         string(event.Kind()),
		Body:         body,
	})
	if err != nil {
		// reopen on the next event
		p.closeChannel()
		p.logger.Error("rabbitmq_publish_failed", "Failed to publish event", "", map[string]interface{}{
			"event": event.Kind(),
		}, err)
		return
	}
	p.logger.Debug("event_published", "Event published", "", map[string]interface{}{"event": event.Kind()})
}

func (p *Publisher) channel() (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		return p.ch, nil
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) closeChannel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
}

func encodeEvent(event domain.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return json.Marshal(interfaces.EventMessage{
		Kind:       event.Kind(),
		OccurredAt: event.OccurredAt(),
		Payload:    payload,
	})
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
