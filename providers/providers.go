/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package providers

import (
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"

	"github.com/rungalileo/galileo-go/handlers/nodetree"
	"github.com/rungalileo/galileo-go/logger"
	"github.com/rungalileo/galileo-go/serialization"
	"github.com/rungalileo/galileo-go/tracker"
)

// LLMResult is the part of a vendor response that an LLM span records.
type LLMResult struct {
	CallID string
	Model  string
	// Output is an assistant message: role, content and, when the model
	// asked for tools, tool_calls.
	Output          map[string]any
	NumInputTokens  int64
	NumOutputTokens int64
	TotalTokens     int64
}

// SpanOptions returns the options that apply r to an LLM span.
func (r LLMResult) SpanOptions() []logger.SpanOption {
	var opts []logger.SpanOption
	if r.Model != "" {
		opts = append(opts, logger.WithModel(r.Model))
	}
	return append(opts, logger.WithTokens(r.NumInputTokens, r.NumOutputTokens, r.TotalTokens))
}

// Params returns r as node-tree end params.
func (r LLMResult) Params() nodetree.Params {
	p := nodetree.Params{
		nodetree.ParamOutput:          r.Output,
		nodetree.ParamNumInputTokens:  r.NumInputTokens,
		nodetree.ParamNumOutputTokens: r.NumOutputTokens,
		nodetree.ParamTotalTokens:     r.TotalTokens,
	}
	if r.Model != "" {
		p[nodetree.ParamModel] = r.Model
	}
	return p
}

func assistantMessage(content string, toolCalls []map[string]any) map[string]any {
	msg := map[string]any{"role": "assistant", "content": content}
	if len(toolCalls) > 0 {
		msg["tool_calls"] = toolCalls
	}
	return msg
}

func toolCall(id, name, arguments string) map[string]any {
	return map[string]any{
		"id":   id,
		"type": "function",
		"function": map[string]any{
			"name":      name,
			"arguments": arguments,
		},
	}
}

// FromAnthropic extracts the span fields of a Messages API response.
func FromAnthropic(m *anthropic.Message) LLMResult {
	if m == nil {
		return LLMResult{Output: assistantMessage("", nil)}
	}
	var (
		text  []string
		calls []map[string]any
	)
	for _, block := range m.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			calls = append(calls, toolCall(block.ID, block.Name, string(block.Input)))
		}
	}
	return LLMResult{
		CallID:          m.ID,
		Model:           string(m.Model),
		Output:          assistantMessage(strings.Join(text, ""), calls),
		NumInputTokens:  m.Usage.InputTokens,
		NumOutputTokens: m.Usage.OutputTokens,
		TotalTokens:     m.Usage.InputTokens + m.Usage.OutputTokens,
	}
}

// FromOpenAI extracts the span fields of a chat completion. Only the first
// choice is recorded.
func FromOpenAI(c *openai.ChatCompletion) LLMResult {
	if c == nil {
		return LLMResult{Output: assistantMessage("", nil)}
	}
	r := LLMResult{
		CallID:          c.ID,
		Model:           c.Model,
		NumInputTokens:  c.Usage.PromptTokens,
		NumOutputTokens: c.Usage.CompletionTokens,
		TotalTokens:     c.Usage.TotalTokens,
	}
	if len(c.Choices) == 0 {
		r.Output = assistantMessage("", nil)
		return r
	}
	msg := c.Choices[0].Message
	var calls []map[string]any
	for _, tc := range msg.ToolCalls {
		calls = append(calls, toolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	r.Output = assistantMessage(msg.Content, calls)
	return r
}

// FromGenAI extracts the span fields of a Gemini response. Only the first
// candidate is recorded.
func FromGenAI(resp *genai.GenerateContentResponse) LLMResult {
	if resp == nil {
		return LLMResult{Output: assistantMessage("", nil)}
	}
	r := LLMResult{
		CallID: resp.ResponseID,
		Model:  resp.ModelVersion,
	}
	if u := resp.UsageMetadata; u != nil {
		r.NumInputTokens = int64(u.PromptTokenCount)
		r.NumOutputTokens = int64(u.CandidatesTokenCount)
		r.TotalTokens = int64(u.TotalTokenCount)
	}

	var (
		text  []string
		calls []map[string]any
	)
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			switch {
			case part == nil:
			case part.FunctionCall != nil:
				fc := part.FunctionCall
				calls = append(calls, toolCall(fc.ID, fc.Name, serialization.ToString(fc.Args)))
			case part.Text != "" && !part.Thought:
				text = append(text, part.Text)
			}
		}
	}
	r.Output = assistantMessage(strings.Join(text, ""), calls)
	return r
}

// CallIDExtractors returns tracker strategies that read the response id of
// the vendor shapes above.
func CallIDExtractors() []tracker.CallIDExtractor {
	return []tracker.CallIDExtractor{
		func(obj any) (string, bool) {
			switch v := obj.(type) {
			case *anthropic.Message:
				return v.ID, v.ID != ""
			case *openai.ChatCompletion:
				return v.ID, v.ID != ""
			case *genai.GenerateContentResponse:
				return v.ResponseID, v.ResponseID != ""
			}
			return "", false
		},
	}
}

// TrackerOptions registers CallIDExtractors on a tracker.
func TrackerOptions() []tracker.Option {
	extractors := CallIDExtractors()
	opts := make([]tracker.Option, 0, len(extractors))
	for _, e := range extractors {
		opts = append(opts, tracker.WithCallIDExtractor(e))
	}
	return opts
}

// StatusCode returns the HTTP status carried by a vendor API error.
func StatusCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) && anthropicErr.StatusCode != 0 {
		return anthropicErr.StatusCode, true
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) && openaiErr.StatusCode != 0 {
		return openaiErr.StatusCode, true
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) && genaiErr.Code != 0 {
		return genaiErr.Code, true
	}
	return 0, false
}
