/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package adk

import (
	"google.golang.org/genai"
)

// Event is one entry of a session's event log.
type Event struct {
	Author  string
	Content *genai.Content
	// Final marks the event that holds the agent's final response.
	Final bool
}

// InvocationContext describes one runner invocation.
type InvocationContext struct {
	InvocationID string
	SessionID    string
	// AgentName is the agent the runner routed the invocation to.
	AgentName string
	// CustomMetadata is attached to every span of the invocation.
	CustomMetadata map[string]any
	Events         []*Event
}

// CallbackContext describes the agent an agent or model callback runs in.
type CallbackContext struct {
	InvocationID    string
	SessionID       string
	AgentName       string
	ParentAgentName string
	UserContent     *genai.Content
	Events          []*Event
}

// ToolContext describes the agent and function call a tool runs for.
type ToolContext struct {
	InvocationID   string
	SessionID      string
	AgentName      string
	FunctionCallID string
}

// LLMRequest is a model call as the agent issues it.
type LLMRequest struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// LLMResponse is a model reply.
type LLMResponse struct {
	Content       *genai.Content
	UsageMetadata *genai.GenerateContentResponseUsageMetadata
}

// Tool is a callable exposed to agents. Tools are correlated by identity,
// so callbacks must receive the same *Tool for the start and end of a call.
type Tool struct {
	name        string
	Description string
}

// NewTool creates a Tool.
func NewTool(name, description string) *Tool {
	return &Tool{name: name, Description: description}
}

// Name returns the tool's name.
func (t *Tool) Name() string {
	if t == nil {
		return ""
	}
	return t.name
}
