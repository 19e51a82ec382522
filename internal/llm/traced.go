package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bridgefund/internal/logging"
)

const tracerName = "bridgefund/internal/llm"

// TracedClient wraps a Client with OpenTelemetry spans and audit events.
type TracedClient struct {
	underlying Client
	provider   string
	model      string
	tracer     trace.Tracer
}

// Traced wraps c. provider and model label spans and audit records.
func Traced(c Client, provider, model string) *TracedClient {
	return &TracedClient{
		underlying: c,
		provider:   provider,
		model:      model,
		tracer:     otel.Tracer(tracerName),
	}
}

// GenerateStructured implements Client.
func (t *TracedClient) GenerateStructured(ctx context.Context, system, input string, schema map[string]any, toolName string) (map[string]any, error) {
	ctx, span := t.tracer.Start(ctx, "llm.generate_structured", trace.WithAttributes(
		attribute.String("llm.provider", t.provider),
		attribute.String("llm.model", t.model),
		attribute.String("llm.tool", toolName),
		attribute.Int("llm.input_len", len(input)),
	))
	defer span.End()

	start := time.Now()
	out, err := t.underlying.GenerateStructured(ctx, system, input, schema, toolName)
	t.finish(span, start, err)
	return out, err
}

// GenerateText implements Client.
func (t *TracedClient) GenerateText(ctx context.Context, system, input string) (string, error) {
	ctx, span := t.tracer.Start(ctx, "llm.generate_text", trace.WithAttributes(
		attribute.String("llm.provider", t.provider),
		attribute.String("llm.model", t.model),
		attribute.Int("llm.input_len", len(input)),
	))
	defer span.End()

	start := time.Now()
	out, err := t.underlying.GenerateText(ctx, system, input)
	if err == nil {
		span.SetAttributes(attribute.Int("llm.output_len", len(out)))
	}
	t.finish(span, start, err)
	return out, err
}

func (t *TracedClient) finish(span trace.Span, start time.Time, err error) {
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.Audit().LLMCall(t.provider, t.model, dur, false, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
	logging.Audit().LLMCall(t.provider, t.model, dur, true, "")
}
