/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package langchain

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/rungalileo/galileo-go/handlers/nodetree"
	"github.com/rungalileo/galileo-go/serialization"
)

// Integration labels diagnostics produced by this package.
const Integration = "langchain"

// hiddenTag marks runs the framework does not want traced.
const hiddenTag = "langsmith:hidden"

// errorStatus is recorded on runs that ended with an error.
const errorStatus = 500

// Handler receives LangChain run events.
type Handler interface {
	OnChainStart(ctx context.Context, run Run, inputs any)
	OnChainEnd(ctx context.Context, runID uuid.UUID, outputs any)
	OnChainError(ctx context.Context, runID uuid.UUID, err error)
	OnAgentFinish(ctx context.Context, runID uuid.UUID, finish AgentFinish)
	OnLLMStart(ctx context.Context, run Run, prompts []string)
	OnChatModelStart(ctx context.Context, run Run, messages [][]Message)
	OnLLMNewToken(ctx context.Context, runID uuid.UUID, token string)
	OnLLMEnd(ctx context.Context, runID uuid.UUID, result LLMResult)
	OnLLMError(ctx context.Context, runID uuid.UUID, err error)
	OnToolStart(ctx context.Context, run Run, input string)
	OnToolEnd(ctx context.Context, runID uuid.UUID, output any)
	OnToolError(ctx context.Context, runID uuid.UUID, err error)
	OnRetrieverStart(ctx context.Context, run Run, query string)
	OnRetrieverEnd(ctx context.Context, runID uuid.UUID, documents any)
	OnRetrieverError(ctx context.Context, runID uuid.UUID, err error)
}

// Callback turns run events into nodes and commits them when the root run
// ends.
type Callback struct {
	b *nodetree.Builder
}

var _ Handler = (*Callback)(nil)

// New creates a Callback logging into l.
func New(l nodetree.SpanLogger, opts ...nodetree.Option) *Callback {
	opts = append([]nodetree.Option{nodetree.WithIntegration(Integration)}, opts...)
	return &Callback{b: nodetree.New(l, opts...)}
}

// Builder exposes the underlying node tree.
func (c *Callback) Builder() *nodetree.Builder { return c.b }

func (c *Callback) OnChainStart(ctx context.Context, run Run, inputs any) {
	if slices.Contains(run.Tags, hiddenTag) {
		return
	}
	typ := nodetree.Chain
	name := nodeName(typ, run)
	if name == "LangGraph" || name == "Agent" {
		typ, name = nodetree.Agent, "Agent"
	}
	if typ == nodetree.Agent && run.ParentRunID != nil {
		if parent, ok := c.b.Node(*run.ParentRunID); ok {
			name = parent.Params.String(nodetree.ParamName) + ":" + name
		}
	}
	params := runParams(run, name)
	params[nodetree.ParamInput] = serialization.ToString(inputs)
	c.b.StartNode(ctx, typ, run.ParentRunID, run.RunID, params)
}

func (c *Callback) OnChainEnd(ctx context.Context, runID uuid.UUID, outputs any) {
	c.b.EndNode(ctx, runID, nodetree.Params{nodetree.ParamOutput: serialization.ToString(outputs)})
}

func (c *Callback) OnChainError(ctx context.Context, runID uuid.UUID, err error) {
	c.b.EndNode(ctx, runID, errorParams(err))
}

func (c *Callback) OnAgentFinish(ctx context.Context, runID uuid.UUID, finish AgentFinish) {
	c.b.EndNode(ctx, runID, nodetree.Params{nodetree.ParamOutput: serialization.ToString(finish)})
}

// OnLLMStart handles completion (non-chat) models.
func (c *Callback) OnLLMStart(ctx context.Context, run Run, prompts []string) {
	typ := nodetree.LLM
	params := runParams(run, nodeName(typ, run))
	input := make([]any, 0, len(prompts))
	for _, p := range prompts {
		input = append(input, map[string]any{"content": p, "role": "user"})
	}
	params[nodetree.ParamInput] = input
	params[nodetree.ParamModel] = stringParam(run.InvocationParams, "model_name")
	params[nodetree.ParamTemperature] = temperature(run.InvocationParams)
	c.b.StartNode(ctx, typ, run.ParentRunID, run.RunID, params)
}

func (c *Callback) OnChatModelStart(ctx context.Context, run Run, messages [][]Message) {
	typ := nodetree.Chat
	params := runParams(run, nodeName(typ, run))

	flat := make([]Message, 0, len(messages))
	for _, batch := range messages {
		flat = append(flat, batch...)
	}
	params[nodetree.ParamInput] = serialization.ToJSONValue(flat)

	model := stringParam(run.InvocationParams, "model")
	if model == "" {
		model = stringParam(run.InvocationParams, "_type")
	}
	if model == "" {
		model = "undefined-type"
	}
	params[nodetree.ParamModel] = model
	params[nodetree.ParamTemperature] = temperature(run.InvocationParams)
	if tools, ok := run.InvocationParams["tools"]; ok && tools != nil {
		params[nodetree.ParamTools] = serialization.ToJSONValue(tools)
	}
	c.b.StartNode(ctx, typ, run.ParentRunID, run.RunID, params)
}

func (c *Callback) OnLLMNewToken(ctx context.Context, runID uuid.UUID, _ string) {
	c.b.RecordFirstToken(ctx, runID)
}

func (c *Callback) OnLLMEnd(ctx context.Context, runID uuid.UUID, result LLMResult) {
	params := nodetree.Params{}
	for _, batch := range result.Generations {
		if len(batch) > 0 {
			params[nodetree.ParamOutput] = serialization.ToJSONValue(batch[0])
			break
		}
	}
	if usage, ok := result.LLMOutput["token_usage"].(map[string]any); ok {
		for from, to := range map[string]string{
			"prompt_tokens":     nodetree.ParamNumInputTokens,
			"completion_tokens": nodetree.ParamNumOutputTokens,
			"total_tokens":      nodetree.ParamTotalTokens,
		} {
			if v, ok := usage[from]; ok {
				params[to] = v
			}
		}
	}
	c.b.EndNode(ctx, runID, params)
}

func (c *Callback) OnLLMError(ctx context.Context, runID uuid.UUID, err error) {
	c.b.EndNode(ctx, runID, errorParams(err))
}

func (c *Callback) OnToolStart(ctx context.Context, run Run, input string) {
	typ := nodetree.Tool
	params := runParams(run, nodeName(typ, run))
	if run.Inputs != nil {
		input = serialization.ToString(run.Inputs)
	}
	params[nodetree.ParamInput] = input
	c.b.StartNode(ctx, typ, run.ParentRunID, run.RunID, params)
}

func (c *Callback) OnToolEnd(ctx context.Context, runID uuid.UUID, output any) {
	params := nodetree.Params{}
	if msg, ok := findToolMessage(output); ok {
		output = msg.Content
		params[nodetree.ParamToolCallID] = msg.ToolCallID
	}
	// Strings pass through unquoted; everything else is JSON encoded.
	params[nodetree.ParamOutput] = serialization.ToString(output)
	c.b.EndNode(ctx, runID, params)
}

func (c *Callback) OnToolError(ctx context.Context, runID uuid.UUID, err error) {
	c.b.EndNode(ctx, runID, errorParams(err))
}

func (c *Callback) OnRetrieverStart(ctx context.Context, run Run, query string) {
	typ := nodetree.Retriever
	params := runParams(run, nodeName(typ, run))
	params[nodetree.ParamInput] = query
	c.b.StartNode(ctx, typ, run.ParentRunID, run.RunID, params)
}

func (c *Callback) OnRetrieverEnd(ctx context.Context, runID uuid.UUID, documents any) {
	c.b.EndNode(ctx, runID, nodetree.Params{nodetree.ParamOutput: serialization.ToJSONValue(documents)})
}

func (c *Callback) OnRetrieverError(ctx context.Context, runID uuid.UUID, err error) {
	c.b.EndNode(ctx, runID, errorParams(err))
}

// nodeName picks a display name: the serialized name, the last element of
// the serialized class path, the explicit run name, the metadata name, and
// finally the capitalized node type.
func nodeName(typ nodetree.NodeType, run Run) string {
	if name, ok := run.Serialized["name"].(string); ok && name != "" {
		return name
	}
	switch id := run.Serialized["id"].(type) {
	case []string:
		if len(id) > 0 {
			return id[len(id)-1]
		}
	case []any:
		if len(id) > 0 {
			if s, ok := id[len(id)-1].(string); ok {
				return s
			}
		}
	}
	if run.Name != "" {
		return run.Name
	}
	if name, ok := run.Metadata["name"].(string); ok && name != "" {
		return name
	}
	s := string(typ)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func runParams(run Run, name string) nodetree.Params {
	params := nodetree.Params{nodetree.ParamName: name}
	if len(run.Tags) > 0 {
		params[nodetree.ParamTags] = run.Tags
	}
	if len(run.Metadata) > 0 {
		params[nodetree.ParamMetadata] = serialization.StringMap(run.Metadata)
	}
	return params
}

func errorParams(err error) nodetree.Params {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return nodetree.Params{
		nodetree.ParamOutput:     "Error: " + msg,
		nodetree.ParamStatusCode: errorStatus,
	}
}

func stringParam(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func temperature(params map[string]any) float64 {
	switch t := params["temperature"].(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	}
	return 0
}

// findToolMessage extracts the tool result from a ToolMessage or from a
// Command whose update ends with one.
func findToolMessage(v any) (ToolMessage, bool) {
	switch val := v.(type) {
	case ToolMessage:
		return val, true
	case *ToolMessage:
		if val != nil {
			return *val, true
		}
	case Command:
		return lastToolMessage(val.Update)
	case *Command:
		if val != nil {
			return lastToolMessage(val.Update)
		}
	}
	return ToolMessage{}, false
}

func lastToolMessage(update map[string]any) (ToolMessage, bool) {
	msgs, ok := update["messages"].([]any)
	if !ok || len(msgs) == 0 {
		return ToolMessage{}, false
	}
	switch last := msgs[len(msgs)-1].(type) {
	case ToolMessage:
		return last, true
	case *ToolMessage:
		if last != nil {
			return *last, true
		}
	}
	return ToolMessage{}, false
}
