package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

const reconnectDelay = 5 * time.Second

// Order intake and inventory channels.
var (
	OrdersBinding = interfaces.QueueBinding{
		Exchange:   "orders_topic",
		Queue:      "machine_orders",
		RoutingKey: "orders.#",
		Prefetch:   10,
	}
	InventoryBinding = interfaces.QueueBinding{
		Exchange:   "inventory_topic",
		Queue:      "machine_inventory",
		RoutingKey: "inventory.low.#",
		Prefetch:   10,
	}
)

type consumer struct {
	conn   Connection
	logger logger.Logger
	delay  time.Duration
}

func NewConsumer(conn Connection, logger logger.Logger) interfaces.MessageConsumer {
	return &consumer{conn: conn, logger: logger, delay: reconnectDelay}
}

func (c *consumer) Consume(ctx context.Context, binding interfaces.QueueBinding, handler interfaces.MessageHandler) error {
	return c.withReconnect(ctx, binding.Queue, func() error {
		return c.consumeDurable(ctx, binding, handler)
	})
}

func (c *consumer) Subscribe(ctx context.Context, exchange, routingKey string, handler interfaces.MessageHandler) error {
	return c.withReconnect(ctx, exchange, func() error {
		return c.consumeSubscription(ctx, exchange, routingKey, handler)
	})
}

func (c *consumer) withReconnect(ctx context.Context, name string, run func() error) error {
	for {
		err := run()

		// Stop when the context is cancelled or the connection was closed on purpose
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil || errors.Is(err, ErrConnectionClosed) {
			return err
		}

		c.logger.Error("rabbitmq_consumer_disconnected", "Consumer disconnected, reconnecting", "", map[string]interface{}{
			"queue": name,
			"delay": c.delay.String(),
		}, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.delay):
		}
	}
}

func (c *consumer) consumeDurable(ctx context.Context, binding interfaces.QueueBinding, handler interfaces.MessageHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose()

	prefetch := binding.Prefetch
	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := setupDurable(ch, binding); err != nil {
		return err
	}

	msgs, err := ch.Consume(binding.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("rabbitmq_consumer_started", "Consuming queue", "", map[string]interface{}{
		"queue":       binding.Queue,
		"routing_key": binding.RoutingKey,
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return fmt.Errorf("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}
			c.deliver(ctx, binding.Queue, msg, handler)
		}
	}
}

func (c *consumer) deliver(ctx context.Context, queue string, msg amqp.Delivery, handler interfaces.MessageHandler) {
	err := handler(ctx, msg.Body)
	switch {
	case err == nil:
		msg.Ack(false)
	case errors.Is(err, interfaces.ErrRequeue):
		msg.Nack(false, true)
	default:
		// dead-letter
		c.logger.Warn("rabbitmq_message_rejected", "Message sent to dead-letter queue", "", map[string]interface{}{
			"queue": queue,
			"error": err.Error(),
		})
		msg.Nack(false, false)
	}
}

func (c *consumer) consumeSubscription(ctx context.Context, exchange, routingKey string, handler interfaces.MessageHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Temporary exclusive queue
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return fmt.Errorf("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}
			// auto-acked; handler errors are only logged
			if err := handler(ctx, msg.Body); err != nil {
				c.logger.Debug("notification_skipped", "Handler rejected notification", "", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// setupDurable declares the topic exchange, the dead-letter exchange and
// queue, and the main queue bound to the routing key.
func setupDurable(ch Channel, binding interfaces.QueueBinding) error {
	if err := ch.ExchangeDeclare(binding.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", binding.Exchange, err)
	}

	dlqExchange := binding.Exchange + "_dlq"
	if err := ch.ExchangeDeclare(dlqExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	dlqQueue := binding.Queue + "_dlq"
	if _, err := ch.QueueDeclare(dlqQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueue, "#", dlqExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlqExchange,
		"x-dead-letter-routing-key": binding.Queue,
	}
	q, err := ch.QueueDeclare(binding.Queue, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", binding.Queue, err)
	}
	if err := ch.QueueBind(q.Name, binding.RoutingKey, binding.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", binding.Queue, err)
	}
	return nil
}
