//go:build unit

package zap

import (
	"context"
	"errors"
	"testing"
	"time"

	logpkg "github.com/littlemiaor/lib-txevents/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(level)

	return &Logger{logger: zap.New(core)}, observed
}

func TestLoggerNilReceiverFallsBackToNop(t *testing.T) {
	var nilLogger *Logger

	assert.NotPanics(t, func() {
		nilLogger.Info("message")
	})
}

func TestLoggerNilUnderlyingFallsBackToNop(t *testing.T) {
	logger := &Logger{}

	assert.NotPanics(t, func() {
		logger.Log(context.Background(), logpkg.LevelInfo, "message")
	})
}

func TestLogDispatchesToMatchingZapLevel(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)
	ctx := context.Background()

	logger.Log(ctx, logpkg.LevelDebug, "debug message")
	logger.Log(ctx, logpkg.LevelInfo, "info message", logpkg.String("request_id", "req-1"))
	logger.Log(ctx, logpkg.LevelWarn, "warn message")
	logger.Log(ctx, logpkg.LevelError, "error message", logpkg.Err(errors.New("boom")))
	logger.Log(ctx, logpkg.Level(99), "unknown level message")

	entries := observed.All()
	require.Len(t, entries, 5)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "req-1", entries[1].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[4].Level)
}

func TestLogAppendsTraceCorrelationFields(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)

	traceID := trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	spanID := trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.Log(ctx, logpkg.LevelInfo, "correlated")

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, traceID.String(), entries[0].ContextMap()["trace_id"])
	assert.Equal(t, spanID.String(), entries[0].ContextMap()["span_id"])
}

func TestLogWithoutSpanOmitsCorrelationFields(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)

	logger.Log(context.Background(), logpkg.LevelInfo, "uncorrelated")

	entries := observed.All()
	require.Len(t, entries, 1)

	_, hasTrace := entries[0].ContextMap()["trace_id"]
	assert.False(t, hasTrace)
}

func TestWithAddsFieldsWithoutMutatingParent(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)
	child := logger.With(logpkg.String("tenant_id", "t-1"))

	logger.Info("parent")
	child.Log(context.Background(), logpkg.LevelInfo, "child")

	entries := observed.All()
	require.Len(t, entries, 2)

	_, parentHasTenant := entries[0].ContextMap()["tenant_id"]
	assert.False(t, parentHasTenant)
	assert.Equal(t, "t-1", entries[1].ContextMap()["tenant_id"])
}

func TestWithGroupNestsSubsequentFields(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)
	grouped := logger.WithGroup("flush")

	grouped.Log(context.Background(), logpkg.LevelInfo, "grouped", logpkg.Int("forwarded", 3))

	entries := observed.All()
	require.Len(t, entries, 1)

	nested, ok := entries[0].ContextMap()["flush"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(3), nested["forwarded"])
}

func TestEnabledHonorsCoreLevel(t *testing.T) {
	logger, _ := newObservedLogger(zapcore.InfoLevel)

	assert.True(t, logger.Enabled(logpkg.LevelError))
	assert.True(t, logger.Enabled(logpkg.LevelInfo))
	assert.False(t, logger.Enabled(logpkg.LevelDebug))
}

func TestSyncRespectsCancelledContext(t *testing.T) {
	logger, _ := newObservedLogger(zapcore.DebugLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, logger.Sync(ctx), context.Canceled)
	assert.NoError(t, logger.Sync(context.Background()))
}

func TestStructuredLoggingMethods(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)

	logger.Debug("debug message")
	logger.Info("info message", String("request_id", "req-1"))
	logger.Warn("warn message")
	logger.Error("error message", ErrorField(errors.New("boom")))

	entries := observed.All()
	require.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "req-1", entries[1].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestFieldHelpers(t *testing.T) {
	logger, observed := newObservedLogger(zapcore.DebugLevel)
	logger.Info(
		"helpers",
		String("s", "value"),
		Int("i", 42),
		Uint64("u", 7),
		Bool("b", true),
		Duration("d", 2*time.Second),
		Any("a", 1.5),
	)

	entries := observed.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()

	assert.Equal(t, "value", ctx["s"])
	assert.Equal(t, int64(42), ctx["i"])
	assert.Equal(t, uint64(7), ctx["u"])
	assert.Equal(t, true, ctx["b"])
	assert.Equal(t, 2*time.Second, ctx["d"])
	assert.Equal(t, 1.5, ctx["a"])
}

func TestRawReturnsUnderlyingLogger(t *testing.T) {
	logger, _ := newObservedLogger(zapcore.DebugLevel)

	assert.NotNil(t, logger.Raw())
}
