package txevents

import (
	"github.com/littlemiaor/lib-txevents/internal/nilcheck"
	"go.opentelemetry.io/otel/metric"
)

// FlushPolicy selects how a commit flush proceeds when forwarding one of
// the buffered events fails.
type FlushPolicy int

const (
	// FlushContinueOnError attempts every buffered event and joins the
	// per-event failures into the error returned by NotifyCommit.
	FlushContinueOnError FlushPolicy = iota
	// FlushFailFast stops at the first failure; the remaining buffered
	// events are dropped unforwarded and counted in FlushResult.Dropped.
	FlushFailFast
)

// String returns the string representation of a flush policy.
func (policy FlushPolicy) String() string {
	switch policy {
	case FlushContinueOnError:
		return "continue_on_error"
	case FlushFailFast:
		return "fail_fast"
	default:
		return "unknown"
	}
}

// IsValid reports whether the policy is a known flush policy.
func (policy FlushPolicy) IsValid() bool {
	switch policy {
	case FlushContinueOnError, FlushFailFast:
		return true
	default:
		return false
	}
}

// Config controls classification, buffering, and flush behavior. It is read
// once at construction: pattern changes after NewDispatcher have no effect.
type Config struct {
	// Enabled toggles transactional buffering. When false, only payloads
	// implementing AfterCommitEvent and dispatches using WithAfterCommit
	// are buffered; everything else bypasses.
	Enabled bool
	// IncludedPatterns lists event name globs classified Transactional,
	// e.g. "orders.*".
	IncludedPatterns []string
	// ExcludedPatterns lists event name globs classified Bypass. Exclusion
	// beats inclusion.
	ExcludedPatterns []string
	// FlushPolicy selects the failure behavior of a commit flush.
	FlushPolicy FlushPolicy
	// MaxPendingEvents caps the buffer; Dispatch returns ErrBufferFull at
	// the cap. Zero disables the cap.
	MaxPendingEvents int
	// MeterProvider overrides the default global meter provider when set.
	MeterProvider metric.MeterProvider
}

// DefaultConfig returns the baseline dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		IncludedPatterns: nil,
		ExcludedPatterns: nil,
		FlushPolicy:      FlushContinueOnError,
		MaxPendingEvents: 0,
		MeterProvider:    nil,
	}
}

func (cfg *Config) normalize() {
	if !cfg.FlushPolicy.IsValid() {
		cfg.FlushPolicy = FlushContinueOnError
	}

	if cfg.MaxPendingEvents < 0 {
		cfg.MaxPendingEvents = 0
	}
}

// DispatcherOption mutates dispatcher configuration at construction.
type DispatcherOption func(*Dispatcher)

// WithConfig replaces the whole configuration. Combine with the granular
// options below; later options win.
func WithConfig(cfg Config) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.cfg = cfg
	}
}

// WithIncludedPatterns sets the event name globs classified Transactional.
func WithIncludedPatterns(patterns ...string) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.cfg.IncludedPatterns = append([]string(nil), patterns...)
	}
}

// WithExcludedPatterns sets the event name globs classified Bypass.
func WithExcludedPatterns(patterns ...string) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.cfg.ExcludedPatterns = append([]string(nil), patterns...)
	}
}

// WithDisabled turns transactional buffering off. Payloads implementing
// AfterCommitEvent and dispatches using WithAfterCommit are still buffered.
func WithDisabled() DispatcherOption {
	return func(dispatcher *Dispatcher) {
		dispatcher.cfg.Enabled = false
	}
}

// WithFlushPolicy sets the failure behavior of a commit flush. Unknown
// policies are ignored.
func WithFlushPolicy(policy FlushPolicy) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if policy.IsValid() {
			dispatcher.cfg.FlushPolicy = policy
		}
	}
}

// WithMaxPendingEvents caps the number of buffered events. Zero or negative
// values are ignored; the cap is disabled by default.
func WithMaxPendingEvents(limit int) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if limit > 0 {
			dispatcher.cfg.MaxPendingEvents = limit
		}
	}
}

// WithClassifier replaces the pattern classifier built from the
// configuration. Passing nil keeps the default.
func WithClassifier(classifier Classifier) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if nilcheck.Interface(classifier) {
			dispatcher.classifier = nil

			return
		}

		dispatcher.classifier = classifier
	}
}

// WithTracker injects the transaction tracker, for hosts sharing one
// tracker between the dispatcher and their own transaction bookkeeping.
// Passing nil keeps the dispatcher-owned tracker.
func WithTracker(tracker *Tracker) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if tracker != nil {
			dispatcher.tracker = tracker
		}
	}
}

// WithMeterProvider injects a custom meter provider for dispatcher metrics.
// Passing nil keeps the default global OpenTelemetry meter provider.
func WithMeterProvider(provider metric.MeterProvider) DispatcherOption {
	return func(dispatcher *Dispatcher) {
		if nilcheck.Interface(provider) {
			dispatcher.cfg.MeterProvider = nil

			return
		}

		dispatcher.cfg.MeterProvider = provider
	}
}
