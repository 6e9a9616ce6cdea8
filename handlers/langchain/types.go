/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package langchain

import (
	"github.com/google/uuid"
)

// Run describes the run a start event opens.
type Run struct {
	RunID       uuid.UUID
	ParentRunID *uuid.UUID
	// Serialized is the framework's description of the runnable. Its "name"
	// and "id" entries are used for naming.
	Serialized map[string]any
	Tags       []string
	Metadata   map[string]any
	// Name overrides the name derived from Serialized.
	Name string
	// InvocationParams are the model parameters of LLM and chat model runs.
	InvocationParams map[string]any
	// Inputs are structured tool inputs. When set they replace the raw
	// tool input string.
	Inputs map[string]any
}

// ToolCall is a tool invocation requested by a model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one chat message.
type Message struct {
	Type       string     `json:"type"`
	Content    any        `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolMessage is the result of a tool call as returned by a tool.
type ToolMessage struct {
	Content    any    `json:"content"`
	ToolCallID string `json:"tool_call_id"`
}

// Command is a graph state update returned by a tool. A trailing
// ToolMessage in Update["messages"] is the tool's result.
type Command struct {
	Update map[string]any `json:"update"`
}

// Generation is one candidate produced by a model.
type Generation struct {
	Text           string         `json:"text"`
	Message        *Message       `json:"message,omitempty"`
	GenerationInfo map[string]any `json:"generation_info,omitempty"`
}

// LLMResult is the response of an LLM or chat model run.
type LLMResult struct {
	Generations [][]Generation `json:"generations"`
	// LLMOutput carries provider specific output; "token_usage" holds
	// prompt_tokens, completion_tokens and total_tokens.
	LLMOutput map[string]any `json:"llm_output,omitempty"`
}

// Document is a retrieved chunk.
type Document struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AgentFinish is the final answer of an agent run.
type AgentFinish struct {
	ReturnValues map[string]any `json:"return_values"`
	Log          string         `json:"log"`
}
