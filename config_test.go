//go:build unit

package txevents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlushPolicy_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "continue_on_error", FlushContinueOnError.String())
	assert.Equal(t, "fail_fast", FlushFailFast.String())
	assert.Equal(t, "unknown", FlushPolicy(42).String())
}

func TestFlushPolicy_IsValid(t *testing.T) {
	t.Parallel()

	assert.True(t, FlushContinueOnError.IsValid())
	assert.True(t, FlushFailFast.IsValid())
	assert.False(t, FlushPolicy(42).IsValid())
	assert.False(t, FlushPolicy(-1).IsValid())
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.Nil(t, cfg.IncludedPatterns)
	assert.Nil(t, cfg.ExcludedPatterns)
	assert.Equal(t, FlushContinueOnError, cfg.FlushPolicy)
	assert.Equal(t, 0, cfg.MaxPendingEvents)
	assert.Nil(t, cfg.MeterProvider)
}

func TestConfig_Normalize(t *testing.T) {
	t.Parallel()

	cfg := Config{FlushPolicy: FlushPolicy(42), MaxPendingEvents: -3}
	cfg.normalize()

	assert.Equal(t, FlushContinueOnError, cfg.FlushPolicy)
	assert.Equal(t, 0, cfg.MaxPendingEvents)

	valid := Config{Enabled: true, FlushPolicy: FlushFailFast, MaxPendingEvents: 10}
	valid.normalize()

	assert.Equal(t, FlushFailFast, valid.FlushPolicy)
	assert.Equal(t, 10, valid.MaxPendingEvents)
}

func TestWithConfig_ReplacesAndNormalizes(t *testing.T) {
	t.Parallel()

	dispatcher := newTestDispatcher(t, &captureForwarder{}, WithConfig(Config{
		Enabled:          true,
		FlushPolicy:      FlushPolicy(42),
		MaxPendingEvents: -1,
	}))

	assert.Equal(t, FlushContinueOnError, dispatcher.cfg.FlushPolicy)
	assert.Equal(t, 0, dispatcher.cfg.MaxPendingEvents)
	assert.True(t, dispatcher.cfg.Enabled)
}

func TestWithFlushPolicy_IgnoresUnknownPolicy(t *testing.T) {
	t.Parallel()

	dispatcher := newTestDispatcher(t, &captureForwarder{}, WithFlushPolicy(FlushPolicy(42)))
	assert.Equal(t, FlushContinueOnError, dispatcher.cfg.FlushPolicy)

	dispatcher = newTestDispatcher(t, &captureForwarder{}, WithFlushPolicy(FlushFailFast))
	assert.Equal(t, FlushFailFast, dispatcher.cfg.FlushPolicy)
}

func TestWithMaxPendingEvents_IgnoresNonPositive(t *testing.T) {
	t.Parallel()

	dispatcher := newTestDispatcher(t, &captureForwarder{}, WithMaxPendingEvents(-1))
	assert.Equal(t, 0, dispatcher.cfg.MaxPendingEvents)

	dispatcher = newTestDispatcher(t, &captureForwarder{}, WithMaxPendingEvents(0))
	assert.Equal(t, 0, dispatcher.cfg.MaxPendingEvents)

	dispatcher = newTestDispatcher(t, &captureForwarder{}, WithMaxPendingEvents(25))
	assert.Equal(t, 25, dispatcher.cfg.MaxPendingEvents)
}

func TestWithPatterns_CopiesInput(t *testing.T) {
	t.Parallel()

	patterns := []string{"orders.*"}
	dispatcher := newTestDispatcher(t, &captureForwarder{}, WithIncludedPatterns(patterns...))

	patterns[0] = "mutated.*"

	assert.Equal(t, []string{"orders.*"}, dispatcher.cfg.IncludedPatterns)
}

func TestWithTracker_SharesTransactionState(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	dispatcher := newTestDispatcher(t, &captureForwarder{}, WithTracker(tracker))

	tracker.Begin()

	assert.True(t, dispatcher.InTransaction())
	assert.Equal(t, 1, dispatcher.CurrentLevel())

	sameDefault := newTestDispatcher(t, &captureForwarder{}, WithTracker(nil))
	assert.NotNil(t, sameDefault.tracker)
	assert.False(t, sameDefault.InTransaction())
}

func TestWithClassifier_NilKeepsDefault(t *testing.T) {
	t.Parallel()

	dispatcher := newTestDispatcher(t, &captureForwarder{},
		WithIncludedPatterns("orders.*"),
		WithClassifier(nil))

	assert.NotNil(t, dispatcher.classifier)
	assert.Equal(t, DispositionTransactional, dispatcher.classifier.Classify(Event{Name: "orders.created"}))
}
