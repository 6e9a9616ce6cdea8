/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agents

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/rungalileo/galileo-go/handlers/nodetree"
	"github.com/rungalileo/galileo-go/serialization"
)

// deref lets the variants be passed by value or by pointer. A nil pointer
// of any type reads as no data.
func deref(d SpanData) SpanData {
	if d == nil {
		return nil
	}
	if rv := reflect.ValueOf(d); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	switch v := d.(type) {
	case *AgentSpanData:
		return *v
	case *GenerationSpanData:
		return *v
	case *ResponseSpanData:
		return *v
	case *FunctionSpanData:
		return *v
	case *HandoffSpanData:
		return *v
	case *GuardrailSpanData:
		return *v
	case *CustomSpanData:
		return *v
	}
	return d
}

// spanName returns the variant's own name or a default per variant.
func spanName(d SpanData) string {
	switch v := deref(d).(type) {
	case AgentSpanData:
		return nonEmpty(v.Name, "AgentStep")
	case GenerationSpanData:
		return "Generation"
	case ResponseSpanData:
		return "Response"
	case FunctionSpanData:
		return nonEmpty(v.Name, "FunctionCall")
	case HandoffSpanData:
		return "Handoff"
	case GuardrailSpanData:
		return nonEmpty(v.Name, "Guardrail")
	case CustomSpanData:
		return nonEmpty(v.Name, "CustomStep")
	case nil:
		return "UnknownStep"
	}
	t := d.Type()
	if t == "" {
		return "UnknownStep"
	}
	return strings.ToUpper(t[:1]) + t[1:]
}

// nodeType maps a variant onto a node type.
func nodeType(d SpanData) nodetree.NodeType {
	switch deref(d).(type) {
	case AgentSpanData:
		return nodetree.Agent
	case GenerationSpanData, ResponseSpanData:
		return nodetree.LLM
	case FunctionSpanData, GuardrailSpanData:
		return nodetree.Tool
	}
	return nodetree.Workflow
}

func startParams(s Span) (nodetree.NodeType, nodetree.Params) {
	md := map[string]any{
		"agent_span_id":  s.SpanID,
		"agent_trace_id": s.TraceID,
	}
	if s.ParentID != "" {
		md["parent_span_id"] = s.ParentID
	}
	params := nodetree.Params{nodetree.ParamName: spanName(s.Data)}
	if !s.StartedAt.IsZero() {
		params[nodetree.ParamCreatedAt] = s.StartedAt.UTC()
		params[nodetree.ParamStartTime] = s.StartedAt
	}

	switch v := deref(s.Data).(type) {
	case AgentSpanData:
		md["tools"] = serialization.ToString(v.Tools)
		md["handoffs"] = serialization.ToString(v.Handoffs)
		md["output_type"] = v.OutputType
	case GenerationSpanData:
		params[nodetree.ParamInput] = serialization.ToJSONValue(v.Input)
		params[nodetree.ParamModel] = v.Model
		if t, ok := v.ModelConfig["temperature"]; ok {
			params[nodetree.ParamTemperature] = t
		}
		if len(v.ModelConfig) > 0 {
			md["model_config"] = serialization.ToString(v.ModelConfig)
		}
	case ResponseSpanData:
		params[nodetree.ParamInput] = serialization.ToJSONValue(v.Input)
	case FunctionSpanData:
		params[nodetree.ParamInput] = v.Input
		if v.MCPData != nil {
			md["mcp_data"] = serialization.ToString(v.MCPData)
		}
	case HandoffSpanData:
		md["from_agent"] = v.FromAgent
		md["to_agent"] = v.ToAgent
		params[nodetree.ParamInput] = fmt.Sprintf("%s -> %s", v.FromAgent, v.ToAgent)
	case GuardrailSpanData:
		md["triggered"] = fmt.Sprint(v.Triggered)
	case CustomSpanData:
		if in, ok := v.Data["input"]; ok {
			params[nodetree.ParamInput] = serialization.ToString(in)
		}
		for k, val := range v.Data {
			switch k {
			case "input", "output", "error", "metadata", "metrics":
				continue
			}
			md["custom_"+k] = serialization.ToString(val)
		}
		if extra, ok := v.Data["metadata"].(map[string]any); ok {
			for k, val := range extra {
				md[k] = val
			}
		}
	}
	params[nodetree.ParamMetadata] = serialization.StringMap(md)
	return nodeType(s.Data), params
}

func endParams(s Span) nodetree.Params {
	params := nodetree.Params{}
	var output any
	var errMsg string
	if s.Error != nil {
		errMsg = s.Error.Message
	}

	switch v := deref(s.Data).(type) {
	case GenerationSpanData:
		output = v.Output
		addUsage(params, v.Usage)
	case ResponseSpanData:
		if v.Response != nil {
			output = v.Response.Output
			if v.Response.Model != "" {
				params[nodetree.ParamModel] = v.Response.Model
			}
			addUsage(params, v.Response.Usage)
		}
	case FunctionSpanData:
		output = v.Output
	case GuardrailSpanData:
		output = fmt.Sprintf("triggered: %t", v.Triggered)
	case CustomSpanData:
		output = v.Data["output"]
		if errMsg == "" {
			if e, ok := v.Data["error"]; ok && e != nil {
				errMsg = serialization.ToString(e)
			}
		}
	}

	if output != nil {
		params[nodetree.ParamOutput] = serialization.ToString(output)
	}
	if errMsg != "" {
		params[nodetree.ParamStatusCode] = http.StatusInternalServerError
		if output != nil {
			params[nodetree.ParamOutput] = fmt.Sprintf("%s (Error: %s)", serialization.ToString(output), errMsg)
		} else {
			params[nodetree.ParamOutput] = "Error: " + errMsg
		}
	} else {
		params[nodetree.ParamStatusCode] = http.StatusOK
	}
	if !s.StartedAt.IsZero() && !s.EndedAt.IsZero() {
		params[nodetree.ParamDurationNs] = s.EndedAt.Sub(s.StartedAt).Nanoseconds()
	}
	return params
}

// addUsage copies token counts, accepting both the chat completions and the
// responses naming.
func addUsage(params nodetree.Params, usage map[string]any) {
	for to, from := range map[string][]string{
		nodetree.ParamNumInputTokens:  {"input_tokens", "prompt_tokens"},
		nodetree.ParamNumOutputTokens: {"output_tokens", "completion_tokens"},
		nodetree.ParamTotalTokens:     {"total_tokens"},
	} {
		for _, key := range from {
			if v, ok := usage[key]; ok && v != nil {
				params[to] = v
				break
			}
		}
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
