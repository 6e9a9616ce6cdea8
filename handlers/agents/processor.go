/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/rungalileo/galileo-go/handlers/nodetree"
	"github.com/rungalileo/galileo-go/metrics"
)

// Integration labels diagnostics produced by this package.
const Integration = "openai_agents"

// idSpace derives stable run ids from the runtime's string ids.
var idSpace = uuid.MustParse("0d9c4f3e-6a55-4d0c-9c3e-5b7f1a2e8d41")

// Option configures a Processor.
type Option func(*Processor)

// WithFlushOnTraceEnd controls whether the logger is flushed when each
// trace ends. The default is true.
func WithFlushOnTraceEnd(flush bool) Option {
	return func(p *Processor) { p.flushOnTraceEnd = flush }
}

// Processor receives trace and span events and commits one trace per trace
// id. It is safe for concurrent use.
type Processor struct {
	logger          nodetree.SpanLogger
	flushOnTraceEnd bool

	mu     sync.Mutex
	traces map[string]*traceState

	// commitMu serializes commits; they share one logger.
	commitMu sync.Mutex
}

type traceState struct {
	b    *nodetree.Builder
	root uuid.UUID
}

// New creates a Processor logging into l.
func New(l nodetree.SpanLogger, opts ...Option) *Processor {
	p := &Processor{
		logger:          l,
		flushOnTraceEnd: true,
		traces:          make(map[string]*traceState),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func runID(traceID, spanID string) uuid.UUID {
	return uuid.NewSHA1(idSpace, []byte(traceID+"/"+spanID))
}

// OnTraceStart opens a node tree for t.
func (p *Processor) OnTraceStart(ctx context.Context, t Trace) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.traces[t.TraceID]; ok {
		clog.FromContext(ctx).Warn("Trace already started", "trace_id", t.TraceID)
		return nil
	}
	st := &traceState{
		b: nodetree.New(p.logger,
			nodetree.WithIntegration(Integration),
			nodetree.WithFlushOnEnd(p.flushOnTraceEnd),
		),
		root: runID(t.TraceID, ""),
	}
	name := t.Name
	if name == "" {
		name = "Agent Workflow"
	}
	params := nodetree.Params{
		nodetree.ParamName:  name,
		nodetree.ParamInput: name,
	}
	if len(t.Metadata) > 0 {
		params[nodetree.ParamMetadata] = t.Metadata
	}
	st.b.StartNode(ctx, nodetree.Workflow, nil, st.root, params)
	p.traces[t.TraceID] = st
	clog.FromContext(ctx).Debug("Started trace", "trace_id", t.TraceID)
	return nil
}

// OnTraceEnd commits the trace's node tree.
func (p *Processor) OnTraceEnd(ctx context.Context, t Trace) error {
	p.mu.Lock()
	st, ok := p.traces[t.TraceID]
	delete(p.traces, t.TraceID)
	p.mu.Unlock()

	if !ok {
		metrics.OrphanEnd(Integration)
		clog.FromContext(ctx).Warn("Received end for unknown trace", "trace_id", t.TraceID)
		return nil
	}

	p.commitMu.Lock()
	defer p.commitMu.Unlock()
	st.b.EndNode(ctx, st.root, nil)
	return nil
}

// OnSpanStart records the start of s under its parent span, or under the
// trace when it has none.
func (p *Processor) OnSpanStart(ctx context.Context, s Span) error {
	st, ok := p.lookup(s.TraceID)
	if !ok {
		clog.FromContext(ctx).Warn("Received span start for unknown trace", "trace_id", s.TraceID, "span_id", s.SpanID)
		return nil
	}
	parent := st.root
	if s.ParentID != "" {
		parent = runID(s.TraceID, s.ParentID)
	}
	typ, params := startParams(s)
	st.b.StartNode(ctx, typ, &parent, runID(s.TraceID, s.SpanID), params)
	return nil
}

// OnSpanEnd records the output, error, usage and timing of s.
func (p *Processor) OnSpanEnd(ctx context.Context, s Span) error {
	st, ok := p.lookup(s.TraceID)
	if !ok {
		metrics.OrphanEnd(Integration)
		clog.FromContext(ctx).Warn("Received span end for unknown trace", "trace_id", s.TraceID, "span_id", s.SpanID)
		return nil
	}
	st.b.EndNode(ctx, runID(s.TraceID, s.SpanID), endParams(s))
	return nil
}

func (p *Processor) lookup(traceID string) (*traceState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.traces[traceID]
	return st, ok
}

// Shutdown commits traces that never ended, marking them interrupted, and
// flushes the logger.
func (p *Processor) Shutdown(ctx context.Context) error {
	clog.FromContext(ctx).Info("Shutting down agents processor")
	return p.commitOpen(ctx, "interrupted")
}

// ForceFlush commits traces that have not ended yet and flushes the logger.
func (p *Processor) ForceFlush(ctx context.Context) error {
	return p.commitOpen(ctx, "force_flushed")
}

func (p *Processor) commitOpen(ctx context.Context, reason string) error {
	p.mu.Lock()
	open := p.traces
	p.traces = make(map[string]*traceState)
	p.mu.Unlock()

	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	for id, st := range open {
		clog.FromContext(ctx).Warn("Forcing conclusion of trace", "trace_id", id, "reason", reason)
		st.b.Update(st.root, nodetree.Params{nodetree.ParamOutput: reason})
		st.b.Commit(ctx)
	}
	if _, err := p.logger.Flush(ctx); err != nil {
		return fmt.Errorf("flushing traces: %w", err)
	}
	return nil
}
