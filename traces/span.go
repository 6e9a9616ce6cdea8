/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package traces

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SpanType identifies the kind of a node in the span tree
type SpanType string

const (
	SpanTypeTrace     SpanType = "trace"
	SpanTypeWorkflow  SpanType = "workflow"
	SpanTypeAgent     SpanType = "agent"
	SpanTypeLLM       SpanType = "llm"
	SpanTypeTool      SpanType = "tool"
	SpanTypeRetriever SpanType = "retriever"
)

// AgentType classifies the role of an agent span
type AgentType string

const (
	AgentTypeDefault    AgentType = "default"
	AgentTypePlanner    AgentType = "planner"
	AgentTypeReact      AgentType = "react"
	AgentTypeReflection AgentType = "reflection"
	AgentTypeRouter     AgentType = "router"
	AgentTypeClassifier AgentType = "classifier"
	AgentTypeSupervisor AgentType = "supervisor"
	AgentTypeJudge      AgentType = "judge"
)

// ErrAlreadyAttached is returned when a span that already has a parent is
// attached a second time.
var ErrAlreadyAttached = errors.New("span is already attached to a parent")

// Step holds the attributes shared by every span variant
type Step struct {
	ID         uuid.UUID         `json:"id"`
	Type       SpanType          `json:"type"`
	Name       string            `json:"name,omitempty"`
	Input      any               `json:"input"`
	Output     any               `json:"output,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	DurationNs *int64            `json:"duration_ns,omitempty"`
	StatusCode *int              `json:"status_code,omitempty"`
	Metadata   map[string]string `json:"user_metadata,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	StepNumber *int              `json:"step_number,omitempty"`

	parentID uuid.UUID
}

func newStep(typ SpanType, input any) Step {
	return Step{
		ID:        uuid.New(),
		Type:      typ,
		Input:     input,
		CreatedAt: time.Now().UTC(),
		Metadata:  map[string]string{},
	}
}

// Base returns the shared attributes of the span
func (s *Step) Base() *Step { return s }

// ParentID returns the id of the span this one was attached to, or uuid.Nil
// for traces and detached spans.
func (s *Step) ParentID() uuid.UUID { return s.parentID }

// Duration returns the recorded duration, or zero if the span is still open.
func (s *Step) Duration() time.Duration {
	if s.DurationNs == nil {
		return 0
	}
	return time.Duration(*s.DurationNs)
}

// Concluded reports whether a duration or output has been recorded.
func (s *Step) Concluded() bool {
	return s.DurationNs != nil || s.Output != nil
}

func (s *Step) isSpan() {}

// Span is implemented by every node of the tree
type Span interface {
	Base() *Step
	isSpan()
}

// Container is a span that owns an ordered list of children
type Container interface {
	Span
	Children() []Span
	AddChild(Span) error
}

type childList struct {
	Spans []Span `json:"spans"`
}

func (c *childList) Children() []Span { return c.Spans }

func (c *childList) attach(parent *Step, child Span) error {
	if child == nil {
		return errors.New("cannot attach a nil span")
	}
	b := child.Base()
	if b.parentID != uuid.Nil {
		return fmt.Errorf("attaching %s to %s: %w", b.ID, parent.ID, ErrAlreadyAttached)
	}
	if b.Type == SpanTypeTrace {
		return fmt.Errorf("a trace cannot be a child of %s", parent.ID)
	}
	b.parentID = parent.ID
	c.Spans = append(c.Spans, child)
	return nil
}

// Trace is the root container of one logged interaction
type Trace struct {
	Step
	childList

	ExternalID      string            `json:"external_id,omitempty"`
	DatasetInput    string            `json:"dataset_input,omitempty"`
	DatasetOutput   string            `json:"dataset_output,omitempty"`
	DatasetMetadata map[string]string `json:"dataset_metadata,omitempty"`
}

// NewTrace creates a trace with a fresh id
func NewTrace(input any) *Trace {
	return &Trace{Step: newStep(SpanTypeTrace, input)}
}

// AddChild appends a top-level span to the trace
func (t *Trace) AddChild(s Span) error { return t.attach(&t.Step, s) }

// SpanCount returns the number of spans below the trace
func (t *Trace) SpanCount() int {
	n := -1
	Walk(t, func(Span, int) bool {
		n++
		return true
	})
	return n
}

// WorkflowSpan groups a sequence of steps
type WorkflowSpan struct {
	Step
	childList
}

// NewWorkflowSpan creates a workflow span with a fresh id
func NewWorkflowSpan(input any) *WorkflowSpan {
	return &WorkflowSpan{Step: newStep(SpanTypeWorkflow, input)}
}

// AddChild appends a child span
func (w *WorkflowSpan) AddChild(s Span) error { return w.attach(&w.Step, s) }

// AgentSpan groups the steps taken by one agent
type AgentSpan struct {
	Step
	childList

	AgentType AgentType `json:"agent_type,omitempty"`
}

// NewAgentSpan creates an agent span with a fresh id
func NewAgentSpan(input any) *AgentSpan {
	return &AgentSpan{Step: newStep(SpanTypeAgent, input), AgentType: AgentTypeDefault}
}

// AddChild appends a child span
func (a *AgentSpan) AddChild(s Span) error { return a.attach(&a.Step, s) }

// LLMMetrics carries the per-call counters of an LLM span
type LLMMetrics struct {
	NumInputTokens     *int64 `json:"num_input_tokens,omitempty"`
	NumOutputTokens    *int64 `json:"num_output_tokens,omitempty"`
	NumTotalTokens     *int64 `json:"num_total_tokens,omitempty"`
	TimeToFirstTokenNs *int64 `json:"time_to_first_token_ns,omitempty"`
}

// LLMSpan records one model call
type LLMSpan struct {
	Step

	Model       string           `json:"model,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Tools       []map[string]any `json:"tools,omitempty"`
	Metrics     LLMMetrics       `json:"metrics"`
}

// NewLLMSpan creates an LLM span with a fresh id
func NewLLMSpan(input any) *LLMSpan {
	return &LLMSpan{Step: newStep(SpanTypeLLM, input)}
}

// ToolSpan records one tool call. It becomes a container when an agent is
// invoked as a tool and logs its own spans underneath.
type ToolSpan struct {
	Step
	childList

	ToolCallID string `json:"tool_call_id,omitempty"`
}

// NewToolSpan creates a tool span with a fresh id
func NewToolSpan(input any) *ToolSpan {
	return &ToolSpan{Step: newStep(SpanTypeTool, input)}
}

// AddChild appends a child span
func (t *ToolSpan) AddChild(s Span) error { return t.attach(&t.Step, s) }

// RetrieverSpan records one retrieval
type RetrieverSpan struct {
	Step

	Documents []Document `json:"documents"`
}

// NewRetrieverSpan creates a retriever span holding the normalized documents
func NewRetrieverSpan(input any, documents []Document) *RetrieverSpan {
	r := &RetrieverSpan{Step: newStep(SpanTypeRetriever, input), Documents: documents}
	if r.Documents == nil {
		r.Documents = []Document{}
	}
	r.Output = r.Documents
	return r
}

// Walk visits span and its descendants depth-first. Returning false from fn
// skips the children of the visited span.
func Walk(span Span, fn func(s Span, depth int) bool) {
	walk(span, 0, fn)
}

func walk(span Span, depth int, fn func(Span, int) bool) {
	if span == nil || !fn(span, depth) {
		return
	}
	if c, ok := span.(Container); ok {
		for _, child := range c.Children() {
			walk(child, depth+1, fn)
		}
	}
}
