/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logger

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/rungalileo/galileo-go/ingest"
	"github.com/rungalileo/galileo-go/metrics"
	"github.com/rungalileo/galileo-go/traces"
)

// Option configures a Logger.
type Option func(*Logger) error

// WithSink adds a sink that receives flushed batches. Several sinks are
// invoked in parallel.
func WithSink(s ingest.Sink) Option {
	return func(l *Logger) error {
		if s == nil {
			return errors.New("sink is nil")
		}
		l.sinks = append(l.sinks, s)
		return nil
	}
}

// WithHook adds a synchronous ingestion hook.
func WithHook(fn ingest.HookFunc) Option {
	return func(l *Logger) error {
		if fn == nil {
			return errors.New("hook is nil")
		}
		l.sinks = append(l.sinks, ingest.SyncHook(fn))
		return nil
	}
}

// WithAsyncHook adds an ingestion hook that runs in the background when the
// flush context carries an ingest.Dispatcher.
func WithAsyncHook(fn ingest.HookFunc) Option {
	return func(l *Logger) error {
		if fn == nil {
			return errors.New("hook is nil")
		}
		l.sinks = append(l.sinks, ingest.AsyncHook(fn))
		return nil
	}
}

// WithSessionID tags every flushed batch with a session id.
func WithSessionID(id string) Option {
	return func(l *Logger) error {
		l.sessionID = id
		return nil
	}
}

// WithExternalID tags every flushed batch with the caller's own session
// identifier.
func WithExternalID(id string) Option {
	return func(l *Logger) error {
		l.externalID = id
		return nil
	}
}

// WithExperimentID tags every flushed batch with an experiment id.
func WithExperimentID(id string) Option {
	return func(l *Logger) error {
		l.experimentID = id
		return nil
	}
}

// WithMetrics records flushed traces into m.
func WithMetrics(m *metrics.GenAI) Option {
	return func(l *Logger) error {
		l.metrics = m
		return nil
	}
}

// WithTracerProvider records flush spans with tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Logger) error {
		if tp == nil {
			return errors.New("tracer provider is nil")
		}
		l.tracer = tp.Tracer(tracerName)
		return nil
	}
}

// SpanOption sets optional attributes of a trace or span. Options that do
// not apply to the span being created are ignored.
type SpanOption func(*spanConfig)

type spanConfig struct {
	name       string
	createdAt  time.Time
	durationNs *int64
	statusCode *int
	metadata   map[string]any
	tags       []string
	stepNumber *int

	// trace
	externalID      string
	datasetInput    string
	datasetOutput   string
	datasetMetadata map[string]any

	// llm
	model       string
	temperature *float64
	tools       []map[string]any
	metrics     traces.LLMMetrics

	// tool
	toolCallID string

	// agent
	agentType traces.AgentType
}

func newSpanConfig(opts []SpanOption) *spanConfig {
	cfg := &spanConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithName names the trace or span.
func WithName(name string) SpanOption {
	return func(c *spanConfig) { c.name = name }
}

// WithCreatedAt overrides the creation timestamp.
func WithCreatedAt(t time.Time) SpanOption {
	return func(c *spanConfig) { c.createdAt = t }
}

// WithDuration records a duration.
func WithDuration(d time.Duration) SpanOption {
	return WithDurationNs(d.Nanoseconds())
}

// WithDurationNs records a duration in nanoseconds.
func WithDurationNs(ns int64) SpanOption {
	return func(c *spanConfig) { c.durationNs = &ns }
}

// WithStatusCode records a status code.
func WithStatusCode(code int) SpanOption {
	return func(c *spanConfig) { c.statusCode = &code }
}

// WithMetadata attaches user metadata. Values are converted to strings.
func WithMetadata(md map[string]any) SpanOption {
	return func(c *spanConfig) {
		if c.metadata == nil {
			c.metadata = make(map[string]any, len(md))
		}
		for k, v := range md {
			c.metadata[k] = v
		}
	}
}

// WithTags attaches tags.
func WithTags(tags ...string) SpanOption {
	return func(c *spanConfig) { c.tags = append(c.tags, tags...) }
}

// WithStepNumber records the step of the host framework that produced the span.
func WithStepNumber(n int) SpanOption {
	return func(c *spanConfig) { c.stepNumber = &n }
}

// WithTraceExternalID links a trace to an identifier in another system.
func WithTraceExternalID(id string) SpanOption {
	return func(c *spanConfig) { c.externalID = id }
}

// WithDataset records the dataset row a trace was produced from.
func WithDataset(input, output string, md map[string]any) SpanOption {
	return func(c *spanConfig) {
		c.datasetInput = input
		c.datasetOutput = output
		c.datasetMetadata = md
	}
}

// WithModel records the model of an LLM span.
func WithModel(model string) SpanOption {
	return func(c *spanConfig) { c.model = model }
}

// WithTemperature records the sampling temperature of an LLM span.
func WithTemperature(t float64) SpanOption {
	return func(c *spanConfig) { c.temperature = &t }
}

// WithTools records the tool definitions offered to an LLM.
func WithTools(tools []map[string]any) SpanOption {
	return func(c *spanConfig) { c.tools = tools }
}

// WithTokens records token counts of an LLM span. A negative count is left
// unset.
func WithTokens(input, output, total int64) SpanOption {
	return func(c *spanConfig) {
		c.metrics.NumInputTokens = nonNegative(input)
		c.metrics.NumOutputTokens = nonNegative(output)
		c.metrics.NumTotalTokens = nonNegative(total)
	}
}

// WithTimeToFirstToken records the latency of the first streamed token.
func WithTimeToFirstToken(ns int64) SpanOption {
	return func(c *spanConfig) { c.metrics.TimeToFirstTokenNs = &ns }
}

// WithToolCallID records the id the model assigned to a tool call.
func WithToolCallID(id string) SpanOption {
	return func(c *spanConfig) { c.toolCallID = id }
}

// WithAgentType classifies an agent span.
func WithAgentType(t traces.AgentType) SpanOption {
	return func(c *spanConfig) { c.agentType = t }
}

func nonNegative(n int64) *int64 {
	if n < 0 {
		return nil
	}
	return &n
}
