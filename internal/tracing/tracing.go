// Package tracing installs the process-wide OpenTelemetry tracer provider.
// When enabled, spans from the orchestrator and LLM client are recorded by
// the SDK and each ended span is written to the "tracing" log category.
package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"bridgefund/internal/config"
	"bridgefund/internal/logging"
)

const defaultServiceName = "bridgefund"

// ShutdownFunc flushes and stops the installed provider.
type ShutdownFunc func(ctx context.Context) error

// Option configures Init.
type Option func(*options)

type options struct {
	processors []sdktrace.SpanProcessor
}

// WithSpanProcessor registers an extra processor alongside the log processor.
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(o *options) {
		o.processors = append(o.processors, p)
	}
}

// Init sets the global tracer provider from cfg. Disabled tracing installs
// a noop provider so no span is recorded.
func Init(ctx context.Context, cfg config.TracingConfig, version string, opts ...Option) (ShutdownFunc, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(&logProcessor{}),
	}
	for _, p := range o.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(p))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	logging.Boot("tracing enabled (service=%s)", serviceName)

	return tp.Shutdown, nil
}

// logProcessor writes every ended span to the tracing category.
type logProcessor struct{}

func (*logProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (*logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	l := logging.Get(logging.CategoryTracing).Zap()
	fields := []zap.Field{
		zap.String("span", s.Name()),
		zap.String("trace_id", s.SpanContext().TraceID().String()),
		zap.Duration("duration", s.EndTime().Sub(s.StartTime()).Round(time.Millisecond)),
		zap.String("status", s.Status().Code.String()),
	}
	for _, kv := range s.Attributes() {
		fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
	}
	if desc := s.Status().Description; desc != "" {
		fields = append(fields, zap.String("error", desc))
	}
	l.Info("span ended", fields...)
}

func (*logProcessor) Shutdown(context.Context) error   { return nil }
func (*logProcessor) ForceFlush(context.Context) error { return nil }
