/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rungalileo/galileo-go/ingest"
	"github.com/rungalileo/galileo-go/metrics"
	"github.com/rungalileo/galileo-go/serialization"
	"github.com/rungalileo/galileo-go/traces"
)

const tracerName = "github.com/rungalileo/galileo-go/logger"

// ErrNoActiveTrace is returned when an operation needs a trace to attach to
// and none has been started.
var ErrNoActiveTrace = errors.New("no active trace")

// Logger builds span trees and flushes them. See the package documentation.
type Logger struct {
	mu sync.Mutex

	log     *clog.Logger
	sinks   []ingest.Sink
	sink    ingest.Sink
	metrics *metrics.GenAI
	tracer  trace.Tracer

	sessionID    string
	externalID   string
	experimentID string

	traces []*traces.Trace
	// active is the trace new spans attach to when the stack is empty. It
	// stays set after its last container closes and is cleared by an
	// explicit Conclude on an empty stack.
	active *traces.Trace
	stack  []traces.Container
}

// New creates a Logger. Log lines go to the clog logger carried by ctx.
func New(ctx context.Context, opts ...Option) (*Logger, error) {
	l := &Logger{
		log:    clog.FromContext(ctx),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, fmt.Errorf("configuring logger: %w", err)
		}
	}
	switch len(l.sinks) {
	case 0:
	case 1:
		l.sink = l.sinks[0]
	default:
		l.sink = ingest.Fanout(l.sinks...)
	}
	if l.metrics == nil {
		l.metrics = metrics.NewGenAI(metrics.MeterName)
	}
	return l, nil
}

// SessionID returns the session id attached to flushed batches.
func (l *Logger) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// SetSessionID changes the session id attached to later flushes.
func (l *Logger) SetSessionID(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessionID = id
}

// HasActiveTrace reports whether spans added now have a trace to attach to.
func (l *Logger) HasActiveTrace() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active != nil
}

// CurrentParent returns the container the next span attaches to: the top of
// the stack, else the active trace, else nil.
func (l *Logger) CurrentParent() traces.Container {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentParent()
}

func (l *Logger) currentParent() traces.Container {
	if n := len(l.stack); n > 0 {
		return l.stack[n-1]
	}
	if l.active != nil {
		return l.active
	}
	return nil
}

// Traces returns the buffered traces in the order they were started.
func (l *Logger) Traces() []*traces.Trace {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*traces.Trace, len(l.traces))
	copy(out, l.traces)
	return out
}

// StartTrace starts a new trace and makes it the attachment point for spans
// added while the stack is empty. Map inputs are stored as their JSON
// encoding. Containers still open from a previous trace are concluded first.
func (l *Logger) StartTrace(input any, opts ...SpanOption) *traces.Trace {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.stack) > 0 || (l.active != nil && !l.active.Concluded()) {
		l.log.Warn("Starting a trace while the previous one is open, concluding it", "open_spans", len(l.stack))
		l.concludeAll(nil, &spanConfig{})
	}

	t := l.newTrace(input, newSpanConfig(opts))
	l.traces = append(l.traces, t)
	l.active = t
	return t
}

// AddTrace is StartTrace.
func (l *Logger) AddTrace(input any, opts ...SpanOption) *traces.Trace {
	return l.StartTrace(input, opts...)
}

func (l *Logger) newTrace(input any, cfg *spanConfig) *traces.Trace {
	t := traces.NewTrace(traceInput(input))
	applyStep(&t.Step, cfg)
	t.ExternalID = cfg.externalID
	t.DatasetInput = cfg.datasetInput
	t.DatasetOutput = cfg.datasetOutput
	if len(cfg.datasetMetadata) > 0 {
		t.DatasetMetadata = metadataStrings(cfg.datasetMetadata)
	}
	return t
}

// AddSingleLLMSpanTrace logs a complete trace holding one LLM call. It does
// not change the active trace. It returns nil when containers are open.
func (l *Logger) AddSingleLLMSpanTrace(input, output any, opts ...SpanOption) *traces.Trace {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.stack) > 0 {
		l.log.Warn("Cannot add a single LLM span trace while spans are open", "open_spans", len(l.stack))
		return nil
	}
	cfg := newSpanConfig(opts)
	t := l.newTrace(input, cfg)

	span := newLLMSpan(input, output, cfg)
	if err := t.AddChild(span); err != nil {
		l.log.Warn("Failed to attach LLM span", "error", err)
		return nil
	}
	concludeStep(&t.Step, output, cfg.durationNs, cfg.statusCode)
	concludeStep(&span.Step, output, cfg.durationNs, cfg.statusCode)
	l.traces = append(l.traces, t)
	return t
}

func traceInput(input any) any {
	switch input.(type) {
	case map[string]any, map[string]string:
		b, err := json.Marshal(serialization.ToJSONValue(input))
		if err != nil {
			return serialization.ToString(input)
		}
		return string(b)
	}
	return input
}

func applyStep(s *traces.Step, cfg *spanConfig) {
	s.Name = cfg.name
	if !cfg.createdAt.IsZero() {
		s.CreatedAt = cfg.createdAt.UTC()
	}
	s.DurationNs = cfg.durationNs
	s.StatusCode = cfg.statusCode
	s.Tags = cfg.tags
	s.StepNumber = cfg.stepNumber
	if len(cfg.metadata) > 0 {
		s.Metadata = metadataStrings(cfg.metadata)
	}
}

func metadataStrings(md map[string]any) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = serialization.MetadataValue(v)
	}
	return out
}

func concludeStep(s *traces.Step, output any, durationNs *int64, statusCode *int) {
	if output != nil {
		s.Output = output
	}
	switch {
	case durationNs != nil:
		d := *durationNs
		s.DurationNs = &d
	case s.DurationNs == nil:
		d := time.Since(s.CreatedAt).Nanoseconds()
		s.DurationNs = &d
	}
	if statusCode != nil {
		c := *statusCode
		s.StatusCode = &c
	}
}

// WithLogger returns a context carrying l.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the Logger carried by ctx, or nil.
func FromContext(ctx context.Context) *Logger {
	l, _ := ctx.Value(loggerKey{}).(*Logger)
	return l
}

type loggerKey struct{}
