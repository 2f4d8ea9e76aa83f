package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/burger-queue/internal/adapter/logger"
	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

var at = time.Date(2026, 6, 15, 11, 0, 0, 0, time.UTC)

func TestPublisherRoutesByEventKind(t *testing.T) {
	conn := &fakeConnection{}
	pub := NewPublisher(conn, logger.NewNop(), 8)

	pub.Publish(context.Background(), domain.OrderQueued{OrderID: "ORD-1", Position: 1, At: at})
	pub.Publish(context.Background(), domain.OrderCompleted{OrderID: "ORD-1", PreparationSeconds: 90, At: at})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.Run(ctx)

	opened := conn.Opened()
	require.Len(t, opened, 1)
	ch := opened[0]
	assert.Contains(t, ch.exchanges, EventsExchange+":topic")
	assert.True(t, ch.closed)

	sent := ch.Published()
	require.Len(t, sent, 2)
	assert.Equal(t, EventsExchange, sent[0].exchange)
	assert.Equal(t, string(domain.EventOrderQueued), sent[0].key)
	assert.Equal(t, string(domain.EventOrderCompleted), sent[1].key)

	var msg interfaces.EventMessage
	require.NoError(t, json.Unmarshal(sent[1].msg.Body, &msg))
	assert.Equal(t, domain.EventOrderCompleted, msg.Kind)
	assert.True(t, at.Equal(msg.OccurredAt))

	var payload domain.OrderCompleted
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "ORD-1", payload.OrderID)
	assert.Equal(t, 90, payload.PreparationSeconds)
}

func TestPublisherDropsWhenBufferFull(t *testing.T) {
	conn := &fakeConnection{}
	pub := NewPublisher(conn, logger.NewNop(), 1)

	pub.Publish(context.Background(), domain.QueueCleared{Reason: "a", At: at})
	pub.Publish(context.Background(), domain.QueueCleared{Reason: "b", At: at})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.Run(ctx)

	sent := conn.Opened()[0].Published()
	require.Len(t, sent, 1)

	var msg interfaces.EventMessage
	require.NoError(t, json.Unmarshal(sent[0].msg.Body, &msg))
	var payload domain.QueueCleared
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, "a", payload.Reason)
}

func TestPublisherReopensChannelAfterFailure(t *testing.T) {
	first := newFakeChannel()
	first.publishErr = errBroker
	conn := &fakeConnection{next: first}
	pub := NewPublisher(conn, logger.NewNop(), 4)

	pub.Publish(context.Background(), domain.QueueFull{QueueSize: 50, MaxSize: 50, At: at})
	pub.Publish(context.Background(), domain.QueueFull{QueueSize: 50, MaxSize: 50, At: at})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.Run(ctx)

	opened := conn.Opened()
	require.Len(t, opened, 2)
	assert.True(t, opened[0].closed)
	assert.Empty(t, opened[0].Published())
	assert.Len(t, opened[1].Published(), 1)
}

func TestPublisherIgnoresEventsAfterClose(t *testing.T) {
	conn := &fakeConnection{}
	pub := NewPublisher(conn, logger.NewNop(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	go pub.Run(ctx)
	cancel()
	pub.Close()

	pub.Publish(context.Background(), domain.QueueFull{At: at})
	assert.Empty(t, conn.Opened())
}
