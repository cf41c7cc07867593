package txevents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/littlemiaor/lib-txevents/internal/nilcheck"
	"github.com/littlemiaor/lib-txevents/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Dispatcher is the entry point events pass through on their way to a
// Forwarder. It classifies each event, buffers transaction-bound events
// while a transaction is open, and reconciles the buffer against the
// transaction lifecycle: flush on outermost commit, demote on nested
// commit, discard on rollback.
//
// A Dispatcher owns one transaction stack and carries no internal locking:
// every Dispatch and Notify call must come from the single execution
// context driving that stack. Hosts running one transaction per worker
// create one Dispatcher per worker; shared collaborators such as
// ListenerRegistry and the broker forwarders keep their own
// synchronization.
type Dispatcher struct {
	forwarder  Forwarder
	classifier Classifier
	tracker    *Tracker
	buffer     *buffer
	logger     log.Logger
	tracer     trace.Tracer
	cfg        Config
	metrics    dispatcherMetrics
}

// DispatchOutcome reports what happened to one dispatched event.
type DispatchOutcome struct {
	// Deferred is true when the event was buffered; no listener results
	// exist until the enclosing transaction commits.
	Deferred bool
	// Results holds the listener results of an immediate forward.
	Results []any
	// HaltResult holds the first non-nil listener result of a halt
	// dispatch.
	HaltResult any
}

// FlushResult counts the per-event outcomes of one outermost commit.
type FlushResult struct {
	// Forwarded events reached the forwarder successfully.
	Forwarded int
	// Failed events were attempted and returned an error.
	Failed int
	// Dropped events were abandoned unforwarded after a FlushFailFast
	// abort.
	Dropped int
}

// DispatchOption adjusts a single Dispatch call.
type DispatchOption func(*dispatchSettings)

type dispatchSettings struct {
	afterCommit bool
	halt        bool
}

// WithAfterCommit forces the transactional disposition for this dispatch,
// regardless of classification.
func WithAfterCommit() DispatchOption {
	return func(settings *dispatchSettings) {
		settings.afterCommit = true
	}
}

// WithHalt requests halt semantics: forward immediately and hand back the
// first non-nil listener result. Buffering is incompatible with an inline
// result, so halt dispatches always bypass, taking precedence over
// WithAfterCommit and the classifier.
func WithHalt() DispatchOption {
	return func(settings *dispatchSettings) {
		settings.halt = true
	}
}

// NewDispatcher creates a dispatcher delivering through forwarder.
func NewDispatcher(forwarder Forwarder, logger log.Logger, tracer trace.Tracer, opts ...DispatcherOption) (*Dispatcher, error) {
	if nilcheck.Interface(forwarder) {
		return nil, ErrForwarderRequired
	}

	if nilcheck.Interface(tracer) {
		tracer = noop.NewTracerProvider().Tracer("txevents.noop")
	}

	if nilcheck.Interface(logger) {
		logger = log.NewNop()
	}

	dispatcher := &Dispatcher{
		forwarder: forwarder,
		logger:    logger,
		tracer:    tracer,
		cfg:       DefaultConfig(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(dispatcher)
		}
	}

	dispatcher.cfg.normalize()

	if dispatcher.tracker == nil {
		dispatcher.tracker = NewTracker()
	}

	dispatcher.buffer = newBuffer(dispatcher.cfg.MaxPendingEvents)

	if dispatcher.classifier == nil {
		dispatcher.classifier = NewPatternClassifier(
			dispatcher.cfg.Enabled,
			dispatcher.cfg.IncludedPatterns,
			dispatcher.cfg.ExcludedPatterns,
			logger,
		)
	}

	metrics, err := newDispatcherMetrics(dispatcher.cfg.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("init txevents metrics: %w", err)
	}

	dispatcher.metrics = metrics

	return dispatcher, nil
}

// Dispatch classifies the event and either buffers it until the enclosing
// transaction resolves or forwards it immediately. A buffered event yields
// DispatchOutcome.Deferred with no results; an immediate forward yields the
// listener results and any forward error.
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, event Event, opts ...DispatchOption) (DispatchOutcome, error) {
	if dispatcher == nil {
		return DispatchOutcome{}, ErrDispatcherRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(event.Name) == "" {
		return DispatchOutcome{}, ErrEventNameRequired
	}

	var settings dispatchSettings

	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	if settings.halt {
		return dispatcher.forwardHalt(ctx, event)
	}

	disposition := dispatcher.classifier.Classify(event)
	if settings.afterCommit {
		disposition = DispositionTransactional
	}

	if disposition == DispositionTransactional && dispatcher.tracker.InTransaction() {
		return dispatcher.bufferEvent(ctx, event)
	}

	results, err := dispatcher.safeForward(ctx, event)
	dispatcher.addBypassed(ctx, 1)

	return DispatchOutcome{Results: results}, err
}

// NotifyBegin records a transaction begin and returns the new nesting
// level (1 = outermost).
func (dispatcher *Dispatcher) NotifyBegin(ctx context.Context) int {
	if dispatcher == nil {
		return 0
	}

	if ctx == nil {
		ctx = context.Background()
	}

	level := dispatcher.tracker.Begin()

	if dispatcher.logger.Enabled(log.LevelDebug) {
		fields := []log.Field{log.Int("level", level)}
		if frame, ok := dispatcher.tracker.Top(); ok {
			fields = append(fields, log.String("transaction_id", frame.ID.String()))
		}

		dispatcher.logger.Log(ctx, log.LevelDebug, "transaction begin", fields...)
	}

	return level
}

// NotifyCommit records a transaction commit. Committing a nested level
// demotes that level's buffered events to the parent; committing the
// outermost level flushes the whole buffer to the forwarder in sequence
// order. A commit with no active transaction is a logged no-op.
//
// Flush failures are reported in FlushResult and the returned error; the
// buffer is empty afterwards in every case.
func (dispatcher *Dispatcher) NotifyCommit(ctx context.Context) (FlushResult, error) {
	if dispatcher == nil {
		return FlushResult{}, ErrDispatcherRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	level, ok := dispatcher.tracker.Commit()
	if !ok {
		dispatcher.protocolViolation(ctx, "commit")

		return FlushResult{}, nil
	}

	if level > 1 {
		demoted := dispatcher.buffer.demote(level, level-1)

		if demoted > 0 && dispatcher.logger.Enabled(log.LevelDebug) {
			dispatcher.logger.Log(ctx, log.LevelDebug, "nested commit demoted buffered events",
				log.Int("level", level),
				log.Int("demoted", demoted),
			)
		}

		return FlushResult{}, nil
	}

	return dispatcher.flush(ctx)
}

// NotifyRollback records a transaction rollback, discarding the buffered
// events raised at or above the rolled-back level. It returns the number of
// events discarded. A rollback with no active transaction is a logged
// no-op.
func (dispatcher *Dispatcher) NotifyRollback(ctx context.Context) int {
	if dispatcher == nil {
		return 0
	}

	if ctx == nil {
		ctx = context.Background()
	}

	level, ok := dispatcher.tracker.Rollback()
	if !ok {
		dispatcher.protocolViolation(ctx, "rollback")

		return 0
	}

	ctx, span := dispatcher.tracer.Start(ctx, "txevents.rollback")
	defer span.End()

	discarded := dispatcher.buffer.discardFrom(level)

	span.SetAttributes(
		attribute.Int("txevents.rollback.level", level),
		attribute.Int("txevents.rollback.discarded", discarded),
	)

	dispatcher.addDiscarded(ctx, int64(discarded), "rollback")
	dispatcher.recordBufferDepth(ctx)

	if discarded > 0 && dispatcher.logger.Enabled(log.LevelDebug) {
		dispatcher.logger.Log(ctx, log.LevelDebug, "rollback discarded buffered events",
			log.Int("level", level),
			log.Int("discarded", discarded),
		)
	}

	return discarded
}

// PendingCount returns the number of buffered events.
func (dispatcher *Dispatcher) PendingCount() int {
	if dispatcher == nil {
		return 0
	}

	return dispatcher.buffer.depth()
}

// Pending returns a copy of the buffered events in sequence order.
func (dispatcher *Dispatcher) Pending() []PendingEvent {
	if dispatcher == nil {
		return nil
	}

	return dispatcher.buffer.snapshot()
}

// CurrentLevel returns the nesting level of the innermost active
// transaction, or 0 when idle.
func (dispatcher *Dispatcher) CurrentLevel() int {
	if dispatcher == nil {
		return 0
	}

	return dispatcher.tracker.CurrentLevel()
}

// InTransaction reports whether a transaction is currently active.
func (dispatcher *Dispatcher) InTransaction() bool {
	if dispatcher == nil {
		return false
	}

	return dispatcher.tracker.InTransaction()
}

func (dispatcher *Dispatcher) bufferEvent(ctx context.Context, event Event) (DispatchOutcome, error) {
	if dispatcher.buffer.full() {
		return DispatchOutcome{}, fmt.Errorf("%w: %d events pending", ErrBufferFull, dispatcher.buffer.depth())
	}

	entry := dispatcher.buffer.enqueue(event, dispatcher.tracker.CurrentLevel())

	dispatcher.addBuffered(ctx, 1)
	dispatcher.recordBufferDepth(ctx)

	if dispatcher.logger.Enabled(log.LevelDebug) {
		dispatcher.logger.Log(ctx, log.LevelDebug, "buffered event until commit",
			log.String("event_name", event.Name),
			log.Int("level", entry.Level),
			log.Uint64("sequence", entry.Sequence),
		)
	}

	return DispatchOutcome{Deferred: true}, nil
}

// flush drains the buffer after an outermost commit and forwards every
// entry in sequence order. The buffer is empty when flush returns,
// whichever policy applies.
func (dispatcher *Dispatcher) flush(ctx context.Context) (FlushResult, error) {
	entries := dispatcher.buffer.flushAll()

	dispatcher.recordBufferDepth(ctx)

	if len(entries) == 0 {
		return FlushResult{}, nil
	}

	ctx, span := dispatcher.tracer.Start(ctx, "txevents.flush")
	defer span.End()

	start := time.Now().UTC()

	var (
		result FlushResult
		errs   []error
	)

	for index, entry := range entries {
		_, err := dispatcher.safeForward(ctx, entry.Event)
		if err == nil {
			result.Forwarded++

			continue
		}

		result.Failed++

		errs = append(errs, fmt.Errorf("forward %s (sequence %d): %w", entry.Event.Name, entry.Sequence, err))

		dispatcher.logger.Log(ctx, log.LevelError, "flush forward failed",
			log.String("event_name", entry.Event.Name),
			log.Uint64("sequence", entry.Sequence),
			log.Err(err),
		)

		if dispatcher.cfg.FlushPolicy == FlushFailFast {
			result.Dropped = len(entries) - index - 1

			break
		}
	}

	flushErr := errors.Join(errs...)

	span.SetAttributes(
		attribute.Int("txevents.flush.forwarded", result.Forwarded),
		attribute.Int("txevents.flush.failed", result.Failed),
		attribute.Int("txevents.flush.dropped", result.Dropped),
	)
	handleSpanError(span, "flush forward failed", flushErr)

	dispatcher.addFlushed(ctx, int64(result.Forwarded))
	dispatcher.addFlushFailed(ctx, int64(result.Failed))
	dispatcher.addDiscarded(ctx, int64(result.Dropped), "flush_abort")
	dispatcher.recordFlushDuration(ctx, time.Since(start).Seconds())

	if result.Dropped > 0 {
		dispatcher.logger.Log(ctx, log.LevelWarn, "flush aborted, dropping remaining buffered events",
			log.Int("dropped", result.Dropped),
		)
	}

	return result, flushErr
}

func (dispatcher *Dispatcher) forwardHalt(ctx context.Context, event Event) (DispatchOutcome, error) {
	dispatcher.addBypassed(ctx, 1)

	if halting, ok := dispatcher.forwarder.(HaltForwarder); ok {
		result, err := dispatcher.safeForwardHalt(ctx, halting, event)

		return DispatchOutcome{HaltResult: result}, err
	}

	results, err := dispatcher.safeForward(ctx, event)

	outcome := DispatchOutcome{Results: results}
	for _, result := range results {
		if result != nil {
			outcome.HaltResult = result

			break
		}
	}

	return outcome, err
}

// safeForward invokes the forwarder, converting a panic into a delivery
// error so a misbehaving listener cannot corrupt buffer state.
func (dispatcher *Dispatcher) safeForward(ctx context.Context, event Event) (results []any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("forwarder panic: %v", recovered)
		}
	}()

	return dispatcher.forwarder.Forward(ctx, event)
}

func (dispatcher *Dispatcher) safeForwardHalt(ctx context.Context, halting HaltForwarder, event Event) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("forwarder panic: %v", recovered)
		}
	}()

	return halting.ForwardHalt(ctx, event)
}

func (dispatcher *Dispatcher) protocolViolation(ctx context.Context, notification string) {
	dispatcher.logger.Log(ctx, log.LevelWarn, "transaction notification received with no active transaction",
		log.String("notification", notification),
	)

	if dispatcher.metrics.protocolViolations == nil {
		return
	}

	dispatcher.metrics.protocolViolations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("notification", notification)))
}

func (dispatcher *Dispatcher) addBuffered(ctx context.Context, count int64) {
	if dispatcher.metrics.eventsBuffered == nil || count <= 0 {
		return
	}

	dispatcher.metrics.eventsBuffered.Add(ctx, count)
}

func (dispatcher *Dispatcher) addBypassed(ctx context.Context, count int64) {
	if dispatcher.metrics.eventsBypassed == nil || count <= 0 {
		return
	}

	dispatcher.metrics.eventsBypassed.Add(ctx, count)
}

func (dispatcher *Dispatcher) addFlushed(ctx context.Context, count int64) {
	if dispatcher.metrics.eventsFlushed == nil || count <= 0 {
		return
	}

	dispatcher.metrics.eventsFlushed.Add(ctx, count)
}

func (dispatcher *Dispatcher) addFlushFailed(ctx context.Context, count int64) {
	if dispatcher.metrics.eventsFlushFailed == nil || count <= 0 {
		return
	}

	dispatcher.metrics.eventsFlushFailed.Add(ctx, count)
}

func (dispatcher *Dispatcher) addDiscarded(ctx context.Context, count int64, reason string) {
	if dispatcher.metrics.eventsDiscarded == nil || count <= 0 {
		return
	}

	dispatcher.metrics.eventsDiscarded.Add(ctx, count,
		metric.WithAttributes(attribute.String("reason", reason)))
}

func (dispatcher *Dispatcher) recordFlushDuration(ctx context.Context, seconds float64) {
	if dispatcher.metrics.flushDuration == nil {
		return
	}

	dispatcher.metrics.flushDuration.Record(ctx, seconds)
}

func (dispatcher *Dispatcher) recordBufferDepth(ctx context.Context) {
	if dispatcher.metrics.bufferDepth == nil {
		return
	}

	dispatcher.metrics.bufferDepth.Record(ctx, int64(dispatcher.buffer.depth()))
}

func handleSpanError(span trace.Span, message string, err error) {
	if span == nil || err == nil {
		return
	}

	span.SetStatus(codes.Error, message+": "+err.Error())
	span.RecordError(err)
}
