/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package nodetree

import (
	"context"
	"maps"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/rungalileo/galileo-go/logger"
	"github.com/rungalileo/galileo-go/traces"
)

// NodeType is the kind of run a node records.
type NodeType string

const (
	Agent     NodeType = "agent"
	Chain     NodeType = "chain"
	Chat      NodeType = "chat"
	LLM       NodeType = "llm"
	Retriever NodeType = "retriever"
	Tool      NodeType = "tool"
	Workflow  NodeType = "workflow"
)

// Well known parameter keys. Adapters may store other keys; they are
// ignored by the commit walk.
const (
	ParamInput            = "input"
	ParamOutput           = "output"
	ParamName             = "name"
	ParamMetadata         = "metadata"
	ParamTags             = "tags"
	ParamCreatedAt        = "created_at"
	ParamStartTime        = "start_time"
	ParamDurationNs       = "duration_ns"
	ParamStatusCode       = "status_code"
	ParamModel            = "model"
	ParamTemperature      = "temperature"
	ParamTools            = "tools"
	ParamNumInputTokens   = "num_input_tokens"
	ParamNumOutputTokens  = "num_output_tokens"
	ParamTotalTokens      = "total_tokens"
	ParamTimeToFirstToken = "time_to_first_token_ns"
	ParamToolCallID       = "tool_call_id"
	ParamAgentType        = "agent_type"

	// metadataStepKey holds the graph step that produced a node.
	metadataStepKey = "langgraph_step"
)

// Params holds the span parameters collected for a node between its start
// and end events.
type Params map[string]any

// String returns the value under key if it is a string.
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Int64 returns the value under key as an int64. Any integer kind and
// integral floats are accepted.
func (p Params) Int64(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint32:
		return int64(v), true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	case *int64:
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// Float returns the value under key as a float64.
func (p Params) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case *float64:
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// Time returns the value under key if it is a time.
func (p Params) Time(key string) (time.Time, bool) {
	t, ok := p[key].(time.Time)
	return t, ok
}

// Strings returns the value under key as a string slice.
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Metadata returns the metadata map, accepting either string or arbitrary
// values.
func (p Params) Metadata() map[string]any {
	switch v := p[ParamMetadata].(type) {
	case map[string]any:
		return v
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out
	}
	return nil
}

// Tools returns the tool definitions offered to an LLM node.
func (p Params) Tools() []map[string]any {
	switch v := p[ParamTools].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// StepNumber parses the graph step recorded in the metadata.
func (p Params) StepNumber(ctx context.Context) (int, bool) {
	md := p.Metadata()
	if md == nil {
		return 0, false
	}
	raw, ok := md[metadataStepKey]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			clog.FromContext(ctx).Warn("Invalid step number", "step", v, "error", err)
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Node is one run reported by a framework.
type Node struct {
	RunID       uuid.UUID
	ParentRunID *uuid.UUID
	Type        NodeType
	Params      Params
	Children    []uuid.UUID
}

func (n *Node) clone() *Node {
	c := *n
	c.Params = maps.Clone(n.Params)
	c.Children = append([]uuid.UUID(nil), n.Children...)
	return &c
}

// IsContainer reports whether spans of this type hold children.
func (t NodeType) IsContainer() bool {
	switch t {
	case Agent, Chain, Workflow:
		return true
	}
	return false
}

// SpanLogger is the part of *logger.Logger the commit walk drives.
type SpanLogger interface {
	StartTrace(input any, opts ...logger.SpanOption) *traces.Trace
	AddWorkflowSpan(input any, opts ...logger.SpanOption) *traces.WorkflowSpan
	AddAgentSpan(input any, opts ...logger.SpanOption) *traces.AgentSpan
	AddLLMSpan(input, output any, opts ...logger.SpanOption) *traces.LLMSpan
	AddToolSpan(input, output any, opts ...logger.SpanOption) *traces.ToolSpan
	AddRetrieverSpan(input, documents any, opts ...logger.SpanOption) *traces.RetrieverSpan
	PushParent(c traces.Container) error
	Conclude(output any, opts ...logger.SpanOption) traces.Container
	Flush(ctx context.Context) ([]*traces.Trace, error)
}

var _ SpanLogger = (*logger.Logger)(nil)
