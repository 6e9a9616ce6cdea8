/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agents

import (
	"time"
)

// Trace is a top level agent workflow.
type Trace struct {
	TraceID  string
	Name     string
	Metadata map[string]any
}

// SpanError is the error recorded on a span.
type SpanError struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Span is one step of a trace. Data determines its kind.
type Span struct {
	TraceID   string
	SpanID    string
	ParentID  string
	StartedAt time.Time
	EndedAt   time.Time
	Data      SpanData
	Error     *SpanError
}

// SpanData is implemented by the span data variants below.
type SpanData interface {
	// Type is the runtime's name for the variant.
	Type() string
}

// AgentSpanData describes an agent run.
type AgentSpanData struct {
	Name       string   `json:"name"`
	Handoffs   []string `json:"handoffs,omitempty"`
	Tools      []string `json:"tools,omitempty"`
	OutputType string   `json:"output_type,omitempty"`
}

// GenerationSpanData describes a model call made through a chat
// completions style API.
type GenerationSpanData struct {
	Input       []map[string]any `json:"input,omitempty"`
	Output      []map[string]any `json:"output,omitempty"`
	Model       string           `json:"model,omitempty"`
	ModelConfig map[string]any   `json:"model_config,omitempty"`
	Usage       map[string]any   `json:"usage,omitempty"`
}

// Response is the result carried by a ResponseSpanData.
type Response struct {
	ID     string         `json:"id"`
	Model  string         `json:"model,omitempty"`
	Output any            `json:"output,omitempty"`
	Usage  map[string]any `json:"usage,omitempty"`
}

// ResponseSpanData describes a model call made through a responses style
// API.
type ResponseSpanData struct {
	Input    any       `json:"input,omitempty"`
	Response *Response `json:"response,omitempty"`
}

// FunctionSpanData describes a tool call.
type FunctionSpanData struct {
	Name    string         `json:"name"`
	Input   string         `json:"input,omitempty"`
	Output  any            `json:"output,omitempty"`
	MCPData map[string]any `json:"mcp_data,omitempty"`
}

// HandoffSpanData describes control passing between agents.
type HandoffSpanData struct {
	FromAgent string `json:"from_agent,omitempty"`
	ToAgent   string `json:"to_agent,omitempty"`
}

// GuardrailSpanData describes a guardrail check.
type GuardrailSpanData struct {
	Name      string `json:"name"`
	Triggered bool   `json:"triggered"`
}

// CustomSpanData carries arbitrary user data. The "input", "output",
// "error" and "metadata" keys are interpreted.
type CustomSpanData struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

func (AgentSpanData) Type() string      { return "agent" }
func (GenerationSpanData) Type() string { return "generation" }
func (ResponseSpanData) Type() string   { return "response" }
func (FunctionSpanData) Type() string   { return "function" }
func (HandoffSpanData) Type() string    { return "handoff" }
func (GuardrailSpanData) Type() string  { return "guardrail" }
func (CustomSpanData) Type() string     { return "custom" }
