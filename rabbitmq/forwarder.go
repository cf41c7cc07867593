package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	txevents "github.com/littlemiaor/lib-txevents"
	"github.com/littlemiaor/lib-txevents/backoff"
	"github.com/littlemiaor/lib-txevents/internal/nilcheck"
	"github.com/littlemiaor/lib-txevents/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrForwarderRequired      = errors.New("rabbitmq forwarder is required")
	ErrChannelRequired        = errors.New("rabbitmq channel is required")
	ErrConfirmModeUnavailable = errors.New("channel does not support confirm mode")
	ErrPublishNacked          = errors.New("message was nacked by broker")
	ErrConfirmTimeout         = errors.New("confirmation timed out")
	ErrForwarderClosed        = errors.New("forwarder is closed")
)

const (
	// DefaultConfirmTimeout is the default wait for one broker confirmation.
	DefaultConfirmTimeout = 5 * time.Second

	// DefaultMaxAttempts is the default number of publish attempts per event.
	DefaultMaxAttempts = 3

	// DefaultRetryBackoff is the base delay between publish attempts.
	DefaultRetryBackoff = 100 * time.Millisecond

	// confirmChannelBuffer sizes the confirmation channel. Publishes are
	// serialized, so one slot would do; the headroom absorbs late
	// confirmations after a timeout.
	confirmChannelBuffer = 256

	contentTypeJSON = "application/json"
)

// Channel is the slice of an AMQP channel the forwarder drives. It is
// satisfied by *amqp.Channel and by fakes in unit tests. The channel must be
// dedicated to this forwarder: confirm mode pairs confirmations with
// publishes in order, and a shared channel would interleave them.
type Channel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RoutingKeyFunc derives the routing key for one event.
type RoutingKeyFunc func(event txevents.Event) string

// envelope is the JSON wire form of one forwarded event.
type envelope struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

// Forwarder publishes dispatched events to an exchange and waits for the
// broker confirmation of each publish. It implements txevents.Forwarder;
// listener results are always nil since a broker publish returns nothing.
//
// Publish and confirm run as one serialized flow per forwarder, preserving
// confirm ordering without delivery-tag correlation state. Shard across
// forwarders on dedicated channels for higher throughput.
type Forwarder struct {
	channel        Channel
	confirms       chan amqp.Confirmation
	exchange       string
	routingKey     RoutingKeyFunc
	logger         log.Logger
	confirmTimeout time.Duration
	maxAttempts    int
	retryBackoff   time.Duration

	mu     sync.Mutex
	closed bool
}

var _ txevents.Forwarder = (*Forwarder)(nil)

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithRoutingKey derives routing keys per event. By default the event name
// is the routing key. A nil function is ignored.
func WithRoutingKey(fn RoutingKeyFunc) ForwarderOption {
	return func(forwarder *Forwarder) {
		if fn != nil {
			forwarder.routingKey = fn
		}
	}
}

// WithConfirmTimeout bounds the wait for one broker confirmation.
func WithConfirmTimeout(timeout time.Duration) ForwarderOption {
	return func(forwarder *Forwarder) {
		if timeout > 0 {
			forwarder.confirmTimeout = timeout
		}
	}
}

// WithMaxAttempts sets the number of publish attempts per event.
func WithMaxAttempts(attempts int) ForwarderOption {
	return func(forwarder *Forwarder) {
		if attempts > 0 {
			forwarder.maxAttempts = attempts
		}
	}
}

// WithRetryBackoff sets the base delay between publish attempts. The delay
// grows exponentially with full jitter.
func WithRetryBackoff(base time.Duration) ForwarderOption {
	return func(forwarder *Forwarder) {
		if base > 0 {
			forwarder.retryBackoff = base
		}
	}
}

// WithLogger sets a structured logger for publish failures.
func WithLogger(logger log.Logger) ForwarderOption {
	return func(forwarder *Forwarder) {
		if nilcheck.Interface(logger) {
			return
		}

		forwarder.logger = logger
	}
}

// NewForwarder puts the channel into confirm mode and wires the
// confirmation stream. The empty exchange publishes through the AMQP
// default exchange, routing directly to the queue named by the routing key.
func NewForwarder(channel Channel, exchange string, opts ...ForwarderOption) (*Forwarder, error) {
	if nilcheck.Interface(channel) {
		return nil, ErrChannelRequired
	}

	if err := channel.Confirm(false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfirmModeUnavailable, err)
	}

	confirms := make(chan amqp.Confirmation, confirmChannelBuffer)
	channel.NotifyPublish(confirms)

	forwarder := &Forwarder{
		channel:  channel,
		confirms: confirms,
		exchange: exchange,
		routingKey: func(event txevents.Event) string {
			return event.Name
		},
		logger:         log.NewNop(),
		confirmTimeout: DefaultConfirmTimeout,
		maxAttempts:    DefaultMaxAttempts,
		retryBackoff:   DefaultRetryBackoff,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(forwarder)
		}
	}

	return forwarder, nil
}

// Forward implements txevents.Forwarder. Nacks and publish errors are
// retried up to the attempt limit; a confirm timeout or context cancellation
// is returned immediately, since the confirmation left in the stream would
// pair with the wrong publish on a retry.
func (forwarder *Forwarder) Forward(ctx context.Context, event txevents.Event) ([]any, error) {
	if forwarder == nil {
		return nil, ErrForwarderRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	body, err := json.Marshal(envelope{
		ID:         event.ID.String(),
		Name:       event.Name,
		OccurredAt: event.OccurredAt,
		Payload:    event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode event envelope: %w", err)
	}

	msg := amqp.Publishing{
		ContentType: contentTypeJSON,
		MessageId:   event.ID.String(),
		Type:        event.Name,
		Timestamp:   event.OccurredAt,
		Body:        body,
	}

	key := forwarder.routingKey(event)

	forwarder.mu.Lock()
	defer forwarder.mu.Unlock()

	if forwarder.closed {
		return nil, ErrForwarderClosed
	}

	var lastErr error

	for attempt := 0; attempt < forwarder.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff.ExponentialWithJitter(forwarder.retryBackoff, attempt-1)
			if err := backoff.SleepWithContext(ctx, delay); err != nil {
				return nil, err
			}
		}

		lastErr = forwarder.publishOnce(ctx, key, msg)
		if lastErr == nil {
			return nil, nil
		}

		if isConfirmStreamCorrupted(lastErr) {
			return nil, lastErr
		}

		forwarder.logger.Log(ctx, log.LevelWarn, "publish attempt failed",
			log.String("event_name", event.Name),
			log.String("routing_key", key),
			log.Int("attempt", attempt+1),
			log.Err(lastErr),
		)
	}

	return nil, fmt.Errorf("publish %s after %d attempts: %w", event.Name, forwarder.maxAttempts, lastErr)
}

// Close closes the underlying channel. Further Forward calls fail with
// ErrForwarderClosed.
func (forwarder *Forwarder) Close() error {
	if forwarder == nil {
		return ErrForwarderRequired
	}

	forwarder.mu.Lock()
	defer forwarder.mu.Unlock()

	if forwarder.closed {
		return nil
	}

	forwarder.closed = true

	if err := forwarder.channel.Close(); err != nil {
		return fmt.Errorf("close channel: %w", err)
	}

	return nil
}

func (forwarder *Forwarder) publishOnce(ctx context.Context, key string, msg amqp.Publishing) error {
	if err := forwarder.channel.PublishWithContext(ctx, forwarder.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return forwarder.waitForConfirm(ctx)
}

func (forwarder *Forwarder) waitForConfirm(ctx context.Context) error {
	timeout := time.NewTimer(forwarder.confirmTimeout)
	defer timeout.Stop()

	select {
	case confirmed, ok := <-forwarder.confirms:
		if !ok {
			return ErrForwarderClosed
		}

		if !confirmed.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
		}

		return nil

	case <-timeout.C:
		return ErrConfirmTimeout

	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	}
}

// isConfirmStreamCorrupted reports whether the error leaves a pending
// confirmation that would desynchronize the next publish/confirm pair on
// this channel.
func isConfirmStreamCorrupted(err error) bool {
	return errors.Is(err, ErrConfirmTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
