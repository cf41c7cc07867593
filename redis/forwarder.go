package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	txevents "github.com/littlemiaor/lib-txevents"
	"github.com/littlemiaor/lib-txevents/internal/nilcheck"
	"github.com/littlemiaor/lib-txevents/log"
	"github.com/redis/go-redis/v9"
)

var (
	ErrForwarderRequired = errors.New("redis forwarder is required")
	ErrClientRequired    = errors.New("redis client is required")
	ErrStreamRequired    = errors.New("stream name is required")
)

// DefaultStream is the destination stream when none is configured.
const DefaultStream = "txevents"

// StreamFunc derives the destination stream for one event.
type StreamFunc func(event txevents.Event) string

// Forwarder appends dispatched events to a Redis stream via XADD. It
// implements txevents.Forwarder; listener results are always nil. The
// underlying client carries its own synchronization, so one forwarder may
// serve several dispatchers.
type Forwarder struct {
	client redis.UniversalClient
	stream StreamFunc
	maxLen int64
	logger log.Logger
}

var _ txevents.Forwarder = (*Forwarder)(nil)

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithStream sets a static destination stream. Blank names are ignored.
func WithStream(stream string) ForwarderOption {
	return func(forwarder *Forwarder) {
		trimmed := strings.TrimSpace(stream)
		if trimmed == "" {
			return
		}

		forwarder.stream = func(txevents.Event) string { return trimmed }
	}
}

// WithStreamFunc derives the destination stream per event, for hosts
// sharding streams by event name. A nil function is ignored.
func WithStreamFunc(fn StreamFunc) ForwarderOption {
	return func(forwarder *Forwarder) {
		if fn != nil {
			forwarder.stream = fn
		}
	}
}

// WithMaxLen trims the stream to approximately maxLen entries on each add.
func WithMaxLen(maxLen int64) ForwarderOption {
	return func(forwarder *Forwarder) {
		if maxLen > 0 {
			forwarder.maxLen = maxLen
		}
	}
}

// WithLogger sets a structured logger for stream appends.
func WithLogger(logger log.Logger) ForwarderOption {
	return func(forwarder *Forwarder) {
		if nilcheck.Interface(logger) {
			return
		}

		forwarder.logger = logger
	}
}

// NewForwarder creates a stream forwarder on top of client.
func NewForwarder(client redis.UniversalClient, opts ...ForwarderOption) (*Forwarder, error) {
	if nilcheck.Interface(client) {
		return nil, ErrClientRequired
	}

	forwarder := &Forwarder{
		client: client,
		stream: func(txevents.Event) string { return DefaultStream },
		logger: log.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(forwarder)
		}
	}

	return forwarder, nil
}

// Forward implements txevents.Forwarder. The entry carries the envelope as
// flat stream fields with the payload JSON-encoded.
func (forwarder *Forwarder) Forward(ctx context.Context, event txevents.Event) ([]any, error) {
	if forwarder == nil {
		return nil, ErrForwarderRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	stream := strings.TrimSpace(forwarder.stream(event))
	if stream == "" {
		return nil, ErrStreamRequired
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}

	entryID, err := forwarder.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: forwarder.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":          event.ID.String(),
			"name":        event.Name,
			"occurred_at": event.OccurredAt.Format(time.RFC3339Nano),
			"payload":     string(payload),
		},
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xadd %s: %w", stream, err)
	}

	if forwarder.logger.Enabled(log.LevelDebug) {
		forwarder.logger.Log(ctx, log.LevelDebug, "appended event to stream",
			log.String("stream", stream),
			log.String("entry_id", entryID),
			log.String("event_name", event.Name),
		)
	}

	return nil, nil
}
