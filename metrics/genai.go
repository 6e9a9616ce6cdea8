/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/rungalileo/galileo-go/traces"
)

// MeterName is the default instrumentation name for GenAI metrics.
const MeterName = "github.com/rungalileo/galileo-go"

// GenAI provides OpenTelemetry metrics for logged traces: token usage per
// model, tool calls and span counts per type. Counters that fail to
// initialize degrade to no-ops.
type GenAI struct {
	meter            metric.Meter
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	toolCallCounter  metric.Int64Counter
	spanCounter      metric.Int64Counter
	attrEnricher     AttributeEnricher
}

// Option configures a GenAI instance.
type Option func(*options)

type options struct {
	provider metric.MeterProvider
}

// WithMeterProvider records into mp instead of the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.provider = mp }
}

// NewGenAI creates a GenAI metrics instance with the specified meter name.
func NewGenAI(meterName string, opts ...Option) *GenAI {
	o := options{provider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	meter := o.provider.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	return &GenAI{
		meter:            meter,
		promptTokens:     counter(meter, meterName, "genai.token.prompt", "The number of prompt tokens logged", "{tokens}"),
		completionTokens: counter(meter, meterName, "genai.token.completion", "The number of completion tokens logged", "{tokens}"),
		toolCallCounter:  counter(meter, meterName, "genai.tool.calls", "The number of tool spans logged", "{calls}"),
		spanCounter:      counter(meter, meterName, "galileo.spans", "The number of spans flushed", "{spans}"),
	}
}

func counter(meter metric.Meter, meterName, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		slog.Warn("Failed to create counter, metrics will be disabled", "error", err, "meter", meterName, "counter", name)
		return noop.Int64Counter{}
	}
	return c
}

// SetAttributeEnricher sets the enricher called before each recording.
func (m *GenAI) SetAttributeEnricher(enricher AttributeEnricher) {
	m.attrEnricher = enricher
}

func (m *GenAI) attrs(ctx context.Context, base []attribute.KeyValue, extra []attribute.KeyValue) []attribute.KeyValue {
	if m.attrEnricher != nil {
		base = m.attrEnricher(ctx, base)
	}
	return append(base, extra...)
}

// RecordTokens records prompt and completion token usage for a model.
func (m *GenAI) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64, attrs ...attribute.KeyValue) {
	all := m.attrs(ctx, []attribute.KeyValue{attribute.String("model", model)}, attrs)
	m.promptTokens.Add(ctx, promptTokens, metric.WithAttributes(all...))
	m.completionTokens.Add(ctx, completionTokens, metric.WithAttributes(all...))
}

// RecordToolCall records one tool span.
func (m *GenAI) RecordToolCall(ctx context.Context, toolName string, attrs ...attribute.KeyValue) {
	all := m.attrs(ctx, []attribute.KeyValue{attribute.String("tool", toolName)}, attrs)
	m.toolCallCounter.Add(ctx, 1, metric.WithAttributes(all...))
}

// RecordTrace walks a flushed trace and records span counts per type, token
// usage of every LLM span and every tool call.
func (m *GenAI) RecordTrace(ctx context.Context, t *traces.Trace, attrs ...attribute.KeyValue) {
	if t == nil {
		return
	}
	counts := make(map[traces.SpanType]int64)
	traces.Walk(t, func(s traces.Span, _ int) bool {
		b := s.Base()
		if b.Type == traces.SpanTypeTrace {
			return true
		}
		counts[b.Type]++
		switch span := s.(type) {
		case *traces.LLMSpan:
			var in, out int64
			if span.Metrics.NumInputTokens != nil {
				in = *span.Metrics.NumInputTokens
			}
			if span.Metrics.NumOutputTokens != nil {
				out = *span.Metrics.NumOutputTokens
			}
			if in > 0 || out > 0 {
				m.RecordTokens(ctx, span.Model, in, out, attrs...)
			}
		case *traces.ToolSpan:
			m.RecordToolCall(ctx, b.Name, attrs...)
		}
		return true
	})
	for typ, n := range counts {
		all := m.attrs(ctx, []attribute.KeyValue{attribute.String("span_type", string(typ))}, attrs)
		m.spanCounter.Add(ctx, n, metric.WithAttributes(all...))
	}
}
