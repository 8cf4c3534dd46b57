package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys.
const (
	AttrRunID     = "agentrelay.run_id"
	AttrAgent     = "agentrelay.agent"
	AttrTurn      = "agentrelay.turn"
	AttrModel     = "agentrelay.model"
	AttrTool      = "agentrelay.tool"
	AttrCallID    = "agentrelay.call_id"
	AttrGuardrail = "agentrelay.guardrail.stage"
	AttrHandoffTo = "agentrelay.handoff.to"
)

// TracerOrNoop returns t, or a tracer that records nothing when t is nil.
func TracerOrNoop(t trace.Tracer) trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer(MeterName)
	}
	return t
}

// StartRun starts the root span of a run.
func StartRun(ctx context.Context, t trace.Tracer, runID, agentName string) (context.Context, trace.Span) {
	return TracerOrNoop(t).Start(ctx, "agentrelay.run", trace.WithAttributes(
		attribute.String(AttrRunID, runID),
		attribute.String(AttrAgent, agentName),
	))
}

// StartTurn starts the span of one PRODUCE step.
func StartTurn(ctx context.Context, t trace.Tracer, agentName, modelName string, turn int) (context.Context, trace.Span) {
	return TracerOrNoop(t).Start(ctx, "agentrelay.turn", trace.WithAttributes(
		attribute.String(AttrAgent, agentName),
		attribute.String(AttrModel, modelName),
		attribute.Int(AttrTurn, turn),
	))
}

// StartTool starts the span of one tool call.
func StartTool(ctx context.Context, t trace.Tracer, agentName, toolName, callID string) (context.Context, trace.Span) {
	return TracerOrNoop(t).Start(ctx, "agentrelay.tool", trace.WithAttributes(
		attribute.String(AttrAgent, agentName),
		attribute.String(AttrTool, toolName),
		attribute.String(AttrCallID, callID),
	))
}

// StartGuardrails starts the span of one guardrail stage.
func StartGuardrails(ctx context.Context, t trace.Tracer, stage, agentName string) (context.Context, trace.Span) {
	return TracerOrNoop(t).Start(ctx, "agentrelay.guardrails", trace.WithAttributes(
		attribute.String(AttrGuardrail, stage),
		attribute.String(AttrAgent, agentName),
	))
}

// AddHandoffEvent annotates span with a handoff.
func AddHandoffEvent(span trace.Span, from, to string) {
	span.AddEvent("handoff", trace.WithAttributes(
		attribute.String(AttrAgent, from),
		attribute.String(AttrHandoffTo, to),
	))
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
