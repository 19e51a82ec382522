package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bridgefund/internal/llm"
	"bridgefund/internal/logging"
	"bridgefund/internal/prompts"
	"bridgefund/internal/schema"
)

const tracerName = "bridgefund/internal/pipeline"

// FallbackWarning is attached to responses that carry canned stage data.
const FallbackWarning = "Used fallback data due to processing error"

var (
	ErrUnknownStage    = errors.New("invalid stage")
	ErrInvalidEmphasis = errors.New("invalid emphasis")
)

// invalidStageMessage is the error text clients match on.
const invalidStageMessage = "Invalid stage"

// Prompts composes system prompts per stage.
type Prompts interface {
	System(stage, extra string) string
}

// Request is one call to Run.
type Request struct {
	Stage    string `json:"stage"`
	Input    string `json:"input"`
	Emphasis string `json:"emphasis,omitempty"`
	System   string `json:"system,omitempty"`
}

// Response is the result of Run. Status is the HTTP status the API returns.
type Response struct {
	Status   int      `json:"-"`
	OK       bool     `json:"ok"`
	Data     any      `json:"data,omitempty"`
	Warning  string   `json:"warning,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
	Details  any      `json:"details,omitempty"`
	Fallback bool     `json:"fallback,omitempty"`
}

// Orchestrator runs stages. It holds only shared, read-only collaborators and
// is safe for concurrent use.
type Orchestrator struct {
	client  llm.Client
	prompts Prompts
	tracer  trace.Tracer
}

// New creates an Orchestrator. A nil catalog uses the built-in prompts.
func New(client llm.Client, catalog Prompts) *Orchestrator {
	if catalog == nil {
		catalog = prompts.NewCatalog()
	}
	return &Orchestrator{
		client:  client,
		prompts: catalog,
		tracer:  otel.Tracer(tracerName),
	}
}

// Run executes one stage and maps the outcome to an API response.
func (o *Orchestrator) Run(ctx context.Context, req Request) Response {
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.stage", req.Stage),
		attribute.String("pipeline.emphasis", req.Emphasis),
		attribute.Int("pipeline.input_len", len(req.Input)),
	))
	defer span.End()

	start := time.Now()
	resp := o.run(ctx, req)

	span.SetAttributes(
		attribute.Int("http.status_code", resp.Status),
		attribute.Bool("pipeline.fallback", resp.Fallback || resp.Warning != ""),
	)
	if resp.OK {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, resp.Error)
	}
	logging.Audit().StageRun(req.Stage, time.Since(start), resp.OK, resp.Error)
	return resp
}

func (o *Orchestrator) run(ctx context.Context, req Request) Response {
	if req.Emphasis != "" && !schema.Emphasis(req.Emphasis).Valid() {
		return errorResponse(http.StatusBadRequest, fmt.Errorf("%w %q", ErrInvalidEmphasis, req.Emphasis))
	}

	if req.Stage == StageStaged {
		bundle, warnings, err := o.RunStaged(ctx, req.Input, req.Emphasis, req.System)
		if err != nil {
			return errorResponse(http.StatusUnprocessableEntity, err)
		}
		return Response{Status: http.StatusOK, OK: true, Data: bundle, Warnings: warnings}
	}

	d, ok := Lookup(req.Stage)
	if !ok {
		logging.PipelineWarn("rejected unknown stage %q", req.Stage)
		resp := errorResponse(http.StatusBadRequest, ErrUnknownStage)
		resp.Error = invalidStageMessage
		return resp
	}

	input := req.Input
	if d.UsesEmphasis {
		input = withEmphasis(input, req.Emphasis)
	}

	data, err := o.generate(ctx, d, o.prompts.System(d.Key, req.System), input)
	if err == nil {
		if d.UsesEmphasis && req.Emphasis != "" {
			stampEmphasis(data, schema.Emphasis(req.Emphasis))
		}
		logging.Pipeline("stage %s completed", d.Key)
		return Response{Status: http.StatusOK, OK: true, Data: data}
	}

	if d.Key == StageOneShot {
		logging.PipelineWarn("oneshot failed, signalling fallback: %v", err)
		logging.Audit().StageFallback(d.Key, err.Error())
		resp := errorResponse(http.StatusUnprocessableEntity, err)
		resp.Fallback = true
		return resp
	}

	if d.HasFallback() {
		logging.PipelineWarn("stage %s failed, using fallback data: %v", d.Key, err)
		logging.Audit().StageFallback(d.Key, err.Error())
		return Response{Status: http.StatusOK, OK: true, Data: d.Fallback(req.Input), Warning: FallbackWarning}
	}

	logging.PipelineWarn("stage %s failed: %v", d.Key, err)
	return errorResponse(http.StatusUnprocessableEntity, err)
}

// generate calls the backend for one descriptor and validates structured
// output. Free-text stages return {"markdown": text}.
func (o *Orchestrator) generate(ctx context.Context, d Descriptor, system, input string) (any, error) {
	if d.FreeText() {
		text, err := o.client.GenerateText(ctx, system, input)
		if err != nil {
			return nil, err
		}
		return map[string]any{"markdown": text}, nil
	}

	toolSchema, err := schema.ToolSchemaMap(d.SchemaKey)
	if err != nil {
		return nil, err
	}
	raw, err := o.client.GenerateStructured(ctx, system, input, toolSchema, d.ToolName)
	if err != nil {
		return nil, err
	}
	out, err := schema.Validate(d.SchemaKey, raw)
	if err != nil {
		var se *schema.SchemaError
		if errors.As(err, &se) {
			logging.Audit().StageInvalid(d.Key, len(se.Issues))
		}
		return nil, err
	}
	return out, nil
}

// RunStaged runs every structured stage in PipelineOrder, feeding each the
// original text plus the bundle built so far. Stages with a fallback never
// stop the run; their warnings are collected. A stage without a fallback
// that fails aborts the run.
func (o *Orchestrator) RunStaged(ctx context.Context, input, emphasis, extra string) (*schema.Bundle, []string, error) {
	if emphasis != "" && !schema.Emphasis(emphasis).Valid() {
		return nil, nil, fmt.Errorf("%w %q", ErrInvalidEmphasis, emphasis)
	}

	bundle := &schema.Bundle{}
	var warnings []string

	for _, key := range PipelineOrder {
		if err := ctx.Err(); err != nil {
			return nil, warnings, err
		}
		d, _ := Lookup(key)

		stageInput, err := stagedInput(input, bundle)
		if err != nil {
			return nil, warnings, err
		}
		if d.UsesEmphasis {
			stageInput = withEmphasis(stageInput, emphasis)
		}

		data, err := o.generate(ctx, d, o.prompts.System(d.Key, extra), stageInput)
		if err != nil {
			if !d.HasFallback() {
				return nil, warnings, fmt.Errorf("%s: %w", key, err)
			}
			logging.PipelineWarn("staged %s failed, using fallback data: %v", key, err)
			logging.Audit().StageFallback(key, err.Error())
			data, err = schema.Validate(d.SchemaKey, d.Fallback(input))
			if err != nil {
				return nil, warnings, fmt.Errorf("%s fallback: %w", key, err)
			}
			warnings = append(warnings, fmt.Sprintf("%s: %s", key, FallbackWarning))
		}

		if d.UsesEmphasis && emphasis != "" {
			stampEmphasis(data, schema.Emphasis(emphasis))
		}
		if err := bundle.Set(d.OutputKey, data); err != nil {
			return nil, warnings, err
		}
		logging.PipelineDebug("staged %s done", key)
	}

	return bundle, warnings, nil
}

func stagedInput(input string, bundle *schema.Bundle) (string, error) {
	raw, err := bundle.Raw()
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return input, nil
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode bundle so far: %w", err)
	}
	return input + "\n\nWork so far:\n" + string(data), nil
}

func withEmphasis(input, emphasis string) string {
	guidance, ok := prompts.EmphasisGuidance(emphasis)
	if !ok {
		return input
	}
	return strings.TrimRight(input, "\n") + "\n\n" + guidance
}

func stampEmphasis(data any, e schema.Emphasis) {
	switch v := data.(type) {
	case *schema.BridgeStory:
		v.Emphasis = e
	case *schema.OneShot:
		v.BridgeStory.Emphasis = e
	}
}

func errorResponse(status int, err error) Response {
	resp := Response{Status: status, OK: false, Error: err.Error()}
	var se *schema.SchemaError
	if errors.As(err, &se) {
		resp.Details = se.Issues
	}
	return resp
}
