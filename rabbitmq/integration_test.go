//go:build integration

package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	txevents "github.com/littlemiaor/lib-txevents"
	"github.com/littlemiaor/lib-txevents/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcrabbit "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testRabbitMQImage  = "rabbitmq:3-management-alpine"
	testStartupTimeout = 60 * time.Second
	testConsumeTimeout = 10 * time.Second
)

func setupBroker(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := tcrabbit.Run(ctx,
		testRabbitMQImage,
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(testStartupTimeout),
		),
	)
	require.NoError(t, err, "failed to start RabbitMQ container")

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	amqpURL, err := container.AmqpURL(ctx)
	require.NoError(t, err, "failed to get AMQP URL from container")

	return amqpURL
}

func dialChannel(t *testing.T, amqpURL string) *amqp.Channel {
	t.Helper()

	conn, err := amqp.Dial(amqpURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	channel, err := conn.Channel()
	require.NoError(t, err)

	return channel
}

func TestIntegration_ForwardPublishesToQueue(t *testing.T) {
	amqpURL := setupBroker(t)

	publishChannel := dialChannel(t, amqpURL)
	consumeChannel := dialChannel(t, amqpURL)

	queue, err := consumeChannel.QueueDeclare("txevents.orders", false, true, false, false, nil)
	require.NoError(t, err)

	forwarder, err := NewForwarder(publishChannel, "",
		WithRoutingKey(func(txevents.Event) string { return queue.Name }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = forwarder.Close() })

	event, err := txevents.NewEvent("orders.created", map[string]any{"order_id": 7})
	require.NoError(t, err)

	_, err = forwarder.Forward(context.Background(), event)
	require.NoError(t, err)

	deliveries, err := consumeChannel.Consume(queue.Name, "", true, false, false, false, nil)
	require.NoError(t, err)

	select {
	case delivery := <-deliveries:
		var decoded envelope

		require.NoError(t, json.Unmarshal(delivery.Body, &decoded))
		assert.Equal(t, event.ID.String(), decoded.ID)
		assert.Equal(t, "orders.created", decoded.Name)
		assert.Equal(t, map[string]any{"order_id": float64(7)}, decoded.Payload)
	case <-time.After(testConsumeTimeout):
		t.Fatal("timed out waiting for the published event")
	}
}

func TestIntegration_DispatcherCommitFlushReachesBroker(t *testing.T) {
	amqpURL := setupBroker(t)

	publishChannel := dialChannel(t, amqpURL)
	consumeChannel := dialChannel(t, amqpURL)

	queue, err := consumeChannel.QueueDeclare("txevents.flush", false, true, false, false, nil)
	require.NoError(t, err)

	forwarder, err := NewForwarder(publishChannel, "",
		WithRoutingKey(func(txevents.Event) string { return queue.Name }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = forwarder.Close() })

	dispatcher, err := txevents.NewDispatcher(forwarder, log.NewNop(), nil,
		txevents.WithIncludedPatterns("orders.*"))
	require.NoError(t, err)

	ctx := context.Background()

	deliveries, err := consumeChannel.Consume(queue.Name, "", true, false, false, false, nil)
	require.NoError(t, err)

	dispatcher.NotifyBegin(ctx)

	event, err := txevents.NewEvent("orders.created", nil)
	require.NoError(t, err)

	outcome, err := dispatcher.Dispatch(ctx, event)
	require.NoError(t, err)
	require.True(t, outcome.Deferred)

	select {
	case <-deliveries:
		t.Fatal("event must not reach the broker before commit")
	case <-time.After(500 * time.Millisecond):
	}

	result, err := dispatcher.NotifyCommit(ctx)
	require.NoError(t, err)
	assert.Equal(t, txevents.FlushResult{Forwarded: 1}, result)

	select {
	case delivery := <-deliveries:
		var decoded envelope

		require.NoError(t, json.Unmarshal(delivery.Body, &decoded))
		assert.Equal(t, "orders.created", decoded.Name)
	case <-time.After(testConsumeTimeout):
		t.Fatal("timed out waiting for the flushed event")
	}
}
