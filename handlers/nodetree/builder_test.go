/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package nodetree

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/rungalileo/galileo-go/ingest"
	"github.com/rungalileo/galileo-go/logger"
	"github.com/rungalileo/galileo-go/traces"
)

type recordingSink struct {
	mu       sync.Mutex
	requests []*ingest.Request
}

func (s *recordingSink) Ingest(_ context.Context, req *ingest.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return nil
}

func (s *recordingSink) traces(t *testing.T) []*traces.Trace {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*traces.Trace
	for _, r := range s.requests {
		out = append(out, r.Traces...)
	}
	return out
}

func newTestBuilder(t *testing.T, opts ...Option) (*Builder, *logger.Logger, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	l, err := logger.New(context.Background(), logger.WithSink(sink))
	require.NoError(t, err)
	return New(l, opts...), l, sink
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

// shape renders a span tree as nested type/name pairs.
type shape struct {
	Type     traces.SpanType
	Name     string
	Children []shape
}

func shapeOf(s traces.Span) shape {
	out := shape{Type: s.Base().Type, Name: s.Base().Name}
	if c, ok := s.(traces.Container); ok {
		for _, child := range c.Children() {
			out.Children = append(out.Children, shapeOf(child))
		}
	}
	return out
}

func TestCommitOutOfOrder(t *testing.T) {
	ctx := context.Background()
	b, _, sink := newTestBuilder(t, WithIntegration("test"))

	root, agent, llm, tool := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	b.StartNode(ctx, Chain, nil, root, Params{ParamInput: "question", ParamName: "pipeline"})
	b.StartNode(ctx, Agent, ptr(root), agent, Params{ParamName: "planner", ParamMetadata: map[string]any{"langgraph_step": "2"}})
	b.StartNode(ctx, LLM, ptr(agent), llm, Params{ParamName: "model", ParamModel: "gpt"})
	b.StartNode(ctx, Tool, ptr(agent), tool, Params{ParamName: "search", ParamInput: "q"})

	// Children end in reverse order of their starts.
	b.EndNode(ctx, tool, Params{ParamOutput: "tool result", ParamToolCallID: "call-1"})
	b.EndNode(ctx, llm, Params{ParamOutput: "thinking", ParamNumInputTokens: 10, ParamNumOutputTokens: 4})
	b.EndNode(ctx, agent, nil)
	if got := len(sink.traces(t)); got != 0 {
		t.Fatalf("committed before the root ended: %d traces", got)
	}
	b.EndNode(ctx, root, nil)

	got := sink.traces(t)
	require.Len(t, got, 1)
	trace := got[0]

	want := shape{Type: traces.SpanTypeTrace, Name: "pipeline", Children: []shape{{
		Type: traces.SpanTypeWorkflow, Name: "pipeline", Children: []shape{{
			Type: traces.SpanTypeAgent, Name: "planner", Children: []shape{
				{Type: traces.SpanTypeLLM, Name: "model"},
				{Type: traces.SpanTypeTool, Name: "search"},
			},
		}},
	}}}
	if diff := cmp.Diff(want, shapeOf(trace)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}

	wf := trace.Children()[0].(*traces.WorkflowSpan)
	ag := wf.Children()[0].(*traces.AgentSpan)
	if got, wanted := ag.Output, any("tool result"); got != wanted {
		t.Errorf("agent output = %v, wanted = %v", got, wanted)
	}
	if got, wanted := trace.Output, any("tool result"); got != wanted {
		t.Errorf("trace output = %v, wanted = %v", got, wanted)
	}
	if ag.StepNumber == nil || *ag.StepNumber != 2 {
		t.Errorf("agent step number = %v, wanted 2", ag.StepNumber)
	}
	lm := ag.Children()[0].(*traces.LLMSpan)
	if lm.Metrics.NumInputTokens == nil || *lm.Metrics.NumInputTokens != 10 {
		t.Errorf("llm input tokens = %v, wanted 10", lm.Metrics.NumInputTokens)
	}
	if lm.Metrics.NumTotalTokens != nil {
		t.Errorf("llm total tokens = %v, wanted unset", *lm.Metrics.NumTotalTokens)
	}
	tl := ag.Children()[1].(*traces.ToolSpan)
	if got, wanted := tl.ToolCallID, "call-1"; got != wanted {
		t.Errorf("tool call id = %q, wanted = %q", got, wanted)
	}
	for _, s := range []traces.Span{trace, wf, ag, lm, tl} {
		if !s.Base().Concluded() {
			t.Errorf("%s span %q was not concluded", s.Base().Type, s.Base().Name)
		}
	}

	if _, ok := b.Root(); ok {
		t.Error("root still set after commit")
	}
	if got := len(b.Nodes()); got != 0 {
		t.Errorf("len(Nodes()) = %d after commit, wanted 0", got)
	}
}

func TestToolWithChildrenBecomesContainer(t *testing.T) {
	ctx := context.Background()
	b, _, sink := newTestBuilder(t)

	root, tool, sub := uuid.New(), uuid.New(), uuid.New()
	b.StartNode(ctx, Agent, nil, root, Params{ParamName: "outer"})
	b.StartNode(ctx, Tool, ptr(root), tool, Params{ParamName: "delegate"})
	b.StartNode(ctx, Agent, ptr(tool), sub, Params{ParamName: "inner", ParamOutput: "inner answer"})
	b.EndNode(ctx, sub, nil)
	b.EndNode(ctx, tool, nil)
	b.EndNode(ctx, root, nil)

	got := sink.traces(t)
	require.Len(t, got, 1)
	want := shape{Type: traces.SpanTypeTrace, Name: "outer", Children: []shape{{
		Type: traces.SpanTypeAgent, Name: "outer", Children: []shape{{
			Type: traces.SpanTypeTool, Name: "delegate", Children: []shape{{
				Type: traces.SpanTypeAgent, Name: "inner",
			}},
		}},
	}}}
	if diff := cmp.Diff(want, shapeOf(got[0])); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
	toolSpan := got[0].Children()[0].(*traces.AgentSpan).Children()[0].(*traces.ToolSpan)
	if got, wanted := toolSpan.Output, any("inner answer"); got != wanted {
		t.Errorf("tool output = %v, wanted = %v", got, wanted)
	}
}

func TestOrphanEndIsIgnored(t *testing.T) {
	ctx := context.Background()
	b, _, sink := newTestBuilder(t, WithIntegration("orphan-test"))

	before := orphanCount(t, "orphan-test")
	b.EndNode(ctx, uuid.New(), Params{ParamOutput: "x"})
	if got, wanted := orphanCount(t, "orphan-test")-before, 1.0; got != wanted {
		t.Errorf("orphan end delta = %v, wanted = %v", got, wanted)
	}
	if got := len(sink.traces(t)); got != 0 {
		t.Errorf("orphan end produced %d traces", got)
	}
}

func orphanCount(t *testing.T, integration string) float64 {
	t.Helper()
	return counterValue(t, "galileo_orphan_end_events_total", integration)
}

func counterValue(t *testing.T, name, integration string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "integration" && lp.GetValue() == integration {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestSecondParentlessNodeReplacesRoot(t *testing.T) {
	ctx := context.Background()
	b, _, sink := newTestBuilder(t, WithIntegration("replace-test"))

	replaced := counterValue(t, "galileo_root_replaced_total", "replace-test")
	orphans := orphanCount(t, "replace-test")

	first, second := uuid.New(), uuid.New()
	b.StartNode(ctx, Workflow, nil, first, Params{ParamName: "A", ParamInput: "a"})
	b.StartNode(ctx, Workflow, nil, second, Params{ParamName: "B", ParamInput: "b"})
	if root, ok := b.Root(); !ok || root.RunID != second {
		t.Fatalf("Root() = %v, %v, wanted %s", root, ok, second)
	}
	if got, wanted := counterValue(t, "galileo_root_replaced_total", "replace-test")-replaced, 1.0; got != wanted {
		t.Errorf("root replaced delta = %v, wanted = %v", got, wanted)
	}

	b.EndNode(ctx, second, Params{ParamOutput: "b out"})
	b.EndNode(ctx, first, Params{ParamOutput: "a out"})

	got := sink.traces(t)
	require.Len(t, got, 1)
	want := shape{Type: traces.SpanTypeTrace, Name: "B", Children: []shape{{Type: traces.SpanTypeWorkflow, Name: "B"}}}
	if diff := cmp.Diff(want, shapeOf(got[0])); diff != "" {
		t.Errorf("trace shape mismatch (-want +got):\n%s", diff)
	}
	if got, wanted := got[0].Output, any("b out"); got != wanted {
		t.Errorf("trace output = %v, wanted = %v", got, wanted)
	}
	if got, wanted := orphanCount(t, "replace-test")-orphans, 1.0; got != wanted {
		t.Errorf("orphan end delta = %v, wanted = %v", got, wanted)
	}
}

func TestRecordFirstTokenOnce(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBuilder(t, WithFlushOnEnd(false))

	root := uuid.New()
	b.StartNode(ctx, Chat, nil, root, Params{ParamStartTime: time.Now().Add(-time.Second)})
	b.RecordFirstToken(ctx, root)
	n, ok := b.Node(root)
	require.True(t, ok)
	first, ok := n.Params.Int64(ParamTimeToFirstToken)
	require.True(t, ok)
	if first < time.Second.Nanoseconds() {
		t.Errorf("time to first token = %d, wanted at least one second", first)
	}

	b.RecordFirstToken(ctx, root)
	n, _ = b.Node(root)
	if second, _ := n.Params.Int64(ParamTimeToFirstToken); second != first {
		t.Errorf("time to first token changed: got = %d, wanted = %d", second, first)
	}

	// Unknown runs are ignored.
	b.RecordFirstToken(ctx, uuid.New())
}

func TestStartNodeDuplicateMerges(t *testing.T) {
	ctx := context.Background()
	b, _, _ := newTestBuilder(t)

	id := uuid.New()
	b.StartNode(ctx, Chain, nil, id, Params{ParamName: "first", ParamInput: "in"})
	got := b.StartNode(ctx, Chain, nil, id, Params{ParamName: "second"})
	if got, wanted := got.Params.String(ParamName), "second"; got != wanted {
		t.Errorf("name = %q, wanted = %q", got, wanted)
	}
	if got, wanted := got.Params.String(ParamInput), "in"; got != wanted {
		t.Errorf("input = %q, wanted = %q", got, wanted)
	}
	if got, wanted := len(b.Nodes()), 1; got != wanted {
		t.Errorf("len(Nodes()) = %d, wanted = %d", got, wanted)
	}
}

func TestUnknownParentIsDetached(t *testing.T) {
	ctx := context.Background()
	b, _, sink := newTestBuilder(t)

	root, child := uuid.New(), uuid.New()
	b.StartNode(ctx, Chain, nil, root, Params{ParamOutput: "done"})
	b.StartNode(ctx, LLM, ptr(uuid.New()), child, nil)
	b.EndNode(ctx, root, nil)

	got := sink.traces(t)
	require.Len(t, got, 1)
	if got, wanted := got[0].SpanCount(), 1; got != wanted {
		t.Errorf("SpanCount() = %d, wanted = %d", got, wanted)
	}
}

func TestContinueExistingTrace(t *testing.T) {
	ctx := context.Background()
	b, l, sink := newTestBuilder(t, WithStartNewTrace(false), WithFlushOnEnd(false))

	trace := l.StartTrace("outer")
	root := uuid.New()
	b.StartNode(ctx, Retriever, nil, root, Params{ParamInput: "query"})
	b.EndNode(ctx, root, Params{ParamOutput: []string{"doc a", "doc b"}})

	if got := len(sink.traces(t)); got != 0 {
		t.Errorf("flushed %d traces, wanted none", got)
	}
	require.Len(t, trace.Children(), 1)
	r, ok := trace.Children()[0].(*traces.RetrieverSpan)
	require.True(t, ok)
	if diff := cmp.Diff([]traces.Document{{Content: "doc a"}, {Content: "doc b"}}, r.Documents); diff != "" {
		t.Errorf("documents mismatch (-want +got):\n%s", diff)
	}
	if !l.HasActiveTrace() {
		t.Error("the caller's trace was concluded")
	}
}

func TestForceCommit(t *testing.T) {
	ctx := context.Background()
	b, _, sink := newTestBuilder(t)

	root, llm := uuid.New(), uuid.New()
	b.StartNode(ctx, Agent, nil, root, Params{ParamName: "agent"})
	b.StartNode(ctx, LLM, ptr(root), llm, Params{ParamStatusCode: 429})
	b.EndNode(ctx, llm, Params{ParamOutput: "rate limited"})
	b.Commit(ctx)

	got := sink.traces(t)
	require.Len(t, got, 1)
	if got, wanted := got[0].SpanCount(), 2; got != wanted {
		t.Errorf("SpanCount() = %d, wanted = %d", got, wanted)
	}

	// Nothing left to commit.
	b.Commit(ctx)
	if got := len(sink.traces(t)); got != 1 {
		t.Errorf("second commit flushed again: %d traces", got)
	}
}

func TestParamsStepNumber(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		params Params
		want   int
		ok     bool
	}{
		{"string", Params{ParamMetadata: map[string]string{"langgraph_step": "3"}}, 3, true},
		{"int", Params{ParamMetadata: map[string]any{"langgraph_step": 4}}, 4, true},
		{"invalid", Params{ParamMetadata: map[string]any{"langgraph_step": "x"}}, 0, false},
		{"missing", Params{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.params.StepNumber(ctx)
			if got != tt.want || ok != tt.ok {
				t.Errorf("StepNumber() = (%d, %v), wanted = (%d, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEventTime(t *testing.T) {
	b, _, _ := newTestBuilder(t, WithFlushOnEnd(false))

	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	root, child := uuid.New(), uuid.New()
	b.StartNode(WithEventTime(context.Background(), start), Chain, nil, root, nil)
	b.StartNode(WithEventTime(context.Background(), start), LLM, ptr(root), child, nil)
	b.RecordFirstToken(WithEventTime(context.Background(), start.Add(20*time.Millisecond)), child)
	b.EndNode(WithEventTime(context.Background(), start.Add(50*time.Millisecond)), child, nil)

	n, ok := b.Node(child)
	require.True(t, ok)
	if got, _ := n.Params.Time(ParamCreatedAt); !got.Equal(start) {
		t.Errorf("created_at = %v, wanted = %v", got, start)
	}
	if got, _ := n.Params.Int64(ParamTimeToFirstToken); got != (20 * time.Millisecond).Nanoseconds() {
		t.Errorf("time to first token = %d, wanted 20ms", got)
	}
	if got, _ := n.Params.Int64(ParamDurationNs); got != (50 * time.Millisecond).Nanoseconds() {
		t.Errorf("duration = %d, wanted 50ms", got)
	}
}
