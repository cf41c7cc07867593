package txevents

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type dispatcherMetrics struct {
	eventsBuffered     metric.Int64Counter
	eventsBypassed     metric.Int64Counter
	eventsFlushed      metric.Int64Counter
	eventsDiscarded    metric.Int64Counter
	eventsFlushFailed  metric.Int64Counter
	protocolViolations metric.Int64Counter
	flushDuration      metric.Float64Histogram
	bufferDepth        metric.Int64Gauge
}

func newDispatcherMetrics(provider metric.MeterProvider) (dispatcherMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("txevents.dispatcher")

	var (
		metrics dispatcherMetrics
		err     error
	)

	metrics.eventsBuffered, err = meter.Int64Counter(
		"txevents.events.buffered",
		metric.WithDescription("Number of events deferred into the transaction buffer"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create txevents.events.buffered counter: %w", err)
	}

	metrics.eventsBypassed, err = meter.Int64Counter(
		"txevents.events.bypassed",
		metric.WithDescription("Number of events forwarded immediately without buffering"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create txevents.events.bypassed counter: %w", err)
	}

	metrics.eventsFlushed, err = meter.Int64Counter(
		"txevents.events.flushed",
		metric.WithDescription("Number of buffered events forwarded after commit"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create txevents.events.flushed counter: %w", err)
	}

	metrics.eventsDiscarded, err = meter.Int64Counter(
		"txevents.events.discarded",
		metric.WithDescription("Number of buffered events dropped without delivery"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create txevents.events.discarded counter: %w", err)
	}

	metrics.eventsFlushFailed, err = meter.Int64Counter(
		"txevents.events.flush_failed",
		metric.WithDescription("Number of buffered events whose forward failed during flush"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create txevents.events.flush_failed counter: %w", err)
	}

	metrics.protocolViolations, err = meter.Int64Counter(
		"txevents.protocol.violations",
		metric.WithDescription("Number of commit or rollback notifications received with no active transaction"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create txevents.protocol.violations counter: %w", err)
	}

	metrics.flushDuration, err = meter.Float64Histogram(
		"txevents.flush.duration",
		metric.WithDescription("Time taken to flush the buffer on outermost commit"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create txevents.flush.duration histogram: %w", err)
	}

	metrics.bufferDepth, err = meter.Int64Gauge(
		"txevents.buffer.depth",
		metric.WithDescription("Number of events currently held in the transaction buffer"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return dispatcherMetrics{}, fmt.Errorf("create txevents.buffer.depth gauge: %w", err)
	}

	return metrics, nil
}
