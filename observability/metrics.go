package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every instrument.
const MeterName = "github.com/hupe1980/agentrelay"

// Metrics holds the runner's instruments. A nil *Metrics records nothing.
type Metrics struct {
	runs           metric.Int64Counter
	runDuration    metric.Float64Histogram
	turns          metric.Int64Counter
	modelDuration  metric.Float64Histogram
	modelErrors    metric.Int64Counter
	inputTokens    metric.Int64Counter
	outputTokens   metric.Int64Counter
	toolCalls      metric.Int64Counter
	toolErrors     metric.Int64Counter
	toolDuration   metric.Float64Histogram
	guardrailTrips metric.Int64Counter
	handoffs       metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.runs, "agentrelay_runs_total", "Total runs by final status"},
		{&m.turns, "agentrelay_turns_total", "Total model turns"},
		{&m.modelErrors, "agentrelay_model_errors_total", "Total failed model calls"},
		{&m.inputTokens, "agentrelay_tokens_input_total", "Total input tokens sent to models"},
		{&m.outputTokens, "agentrelay_tokens_output_total", "Total output tokens received from models"},
		{&m.toolCalls, "agentrelay_tool_calls_total", "Total tool calls"},
		{&m.toolErrors, "agentrelay_tool_errors_total", "Total failed tool calls"},
		{&m.guardrailTrips, "agentrelay_guardrail_trips_total", "Total guardrail tripwires triggered"},
		{&m.handoffs, "agentrelay_handoffs_total", "Total handoffs between agents"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.runDuration, "agentrelay_run_duration_seconds", "Run duration in seconds"},
		{&m.modelDuration, "agentrelay_model_call_duration_seconds", "Model call duration in seconds"},
		{&m.toolDuration, "agentrelay_tool_duration_seconds", "Tool execution duration in seconds"},
	}
	for _, h := range histograms {
		if *h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("s")); err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
	}

	return m, nil
}

// RecordRun records a finished run. status is "completed" or an error kind.
func (m *Metrics) RecordRun(ctx context.Context, agentName, status string, turns int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agentName),
		attribute.String("status", status),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordModelCall records one PRODUCE step.
func (m *Metrics) RecordModelCall(ctx context.Context, agentName, modelName string, inputTokens, outputTokens int, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agentName),
		attribute.String("model", modelName),
	)
	m.turns.Add(ctx, 1, attrs)
	m.modelDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.modelErrors.Add(ctx, 1, attrs)
		return
	}
	m.inputTokens.Add(ctx, int64(inputTokens), attrs)
	m.outputTokens.Add(ctx, int64(outputTokens), attrs)
}

// RecordToolCall records one tool execution.
func (m *Metrics) RecordToolCall(ctx context.Context, agentName, toolName string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agentName),
		attribute.String("tool", toolName),
	)
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

// RecordGuardrailTrip records a triggered tripwire.
func (m *Metrics) RecordGuardrailTrip(ctx context.Context, stage, agentName, guardrailName string) {
	if m == nil {
		return
	}
	m.guardrailTrips.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("agent", agentName),
		attribute.String("guardrail", guardrailName),
	))
}

// RecordHandoff records a transfer of control.
func (m *Metrics) RecordHandoff(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.handoffs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
