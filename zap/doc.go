// Package zap implements the lib-txevents log.Logger interface on top of
// go.uber.org/zap.
//
// Log entries carry OpenTelemetry trace correlation fields when the context
// holds an active span, and the injector tees every record into the otelzap
// bridge so logs also reach the OTLP pipeline.
package zap
