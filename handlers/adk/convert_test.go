/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package adk

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

func TestMessages(t *testing.T) {
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: "find go docs"}},
	}, nil, {
		Role: "model",
		Parts: []*genai.Part{
			{FunctionCall: &genai.FunctionCall{Name: "search", Args: map[string]any{"q": "go"}}},
			{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte("x")}},
			nil,
		},
	}, {
		Role: "SYSTEM",
		Parts: []*genai.Part{
			{FileData: &genai.FileData{FileURI: "gs://b/o", MIMEType: "text/plain"}},
			{FunctionResponse: &genai.FunctionResponse{Name: "search", Response: map[string]any{"hits": 2}}},
		},
	}, {
		Role:  "critic",
		Parts: []*genai.Part{{Text: "unknown roles read as user"}},
	}}

	got := messages(contents...)
	want := []map[string]any{
		{"role": "user", "content": "find go docs"},
		{"role": "tool", "content": `{"args":{"q":"go"},"name":"search","type":"function_call"}`},
		{"role": "assistant", "content": `{"data":"eA==","mime_type":"image/png","type":"inline_data"}`},
		{"role": "system", "content": `{"file_uri":"gs://b/o","mime_type":"text/plain","type":"file_data"}`},
		{"role": "tool", "content": `{"name":"search","response":{"hits":2},"type":"function_response"}`},
		{"role": "user", "content": "unknown roles read as user"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("messages() mismatch (-want +got):\n%s", diff)
	}

	if got := messages(); got == nil || len(got) != 0 {
		t.Errorf("messages() = %v, wanted an empty list", got)
	}
}

func TestText(t *testing.T) {
	c := &genai.Content{Parts: []*genai.Part{
		{Text: "one"},
		{FunctionCall: &genai.FunctionCall{Name: "x"}},
		{Text: "two"},
	}}
	if got, wanted := text(c), "one two"; got != wanted {
		t.Errorf("text() = %q, wanted = %q", got, wanted)
	}
	if got := text(nil); got != "" {
		t.Errorf("text(nil) = %q, wanted empty", got)
	}
}

func TestTools(t *testing.T) {
	cfg := &genai.GenerateContentConfig{Tools: []*genai.Tool{
		nil,
		{FunctionDeclarations: []*genai.FunctionDeclaration{
			{Name: "search", Description: "web search"},
			{Description: "unnamed declarations are skipped"},
		}},
	}}
	got := tools(cfg)
	want := []map[string]any{{
		"type": "function",
		"function": map[string]any{
			"name":        "search",
			"description": "web search",
			"parameters":  map[string]any{},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tools() mismatch (-want +got):\n%s", diff)
	}
	if got := tools(nil); got != nil {
		t.Errorf("tools(nil) = %v, wanted nil", got)
	}
}

func TestEventOutputs(t *testing.T) {
	events := []*Event{
		{Content: modelText("draft"), Final: true},
		{Content: modelText("answer"), Final: true},
		{Content: modelText("trailing")},
	}
	if got, wanted := finalOutput(events), "answer"; got != wanted {
		t.Errorf("finalOutput() = %q, wanted = %q", got, wanted)
	}
	if got, wanted := lastOutput(events), "trailing"; got != wanted {
		t.Errorf("lastOutput() = %q, wanted = %q", got, wanted)
	}
	if got := finalOutput(nil); got != "" {
		t.Errorf("finalOutput(nil) = %q, wanted empty", got)
	}
}

type codedError struct{ code int }

func (e codedError) Error() string { return "coded" }
func (e codedError) Code() int     { return e.code }

type statusError struct{ status int }

func (e *statusError) Error() string   { return "status error" }
func (e *statusError) StatusCode() int { return e.status }

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 500},
		{"genai api error", genai.APIError{Code: 403}, 403},
		{"code method", codedError{code: 418}, 418},
		{"code out of range", codedError{code: 7}, 500},
		{"wrapped status method", fmt.Errorf("calling: %w", &statusError{status: 401}), 401},
		{"leading status", errors.New("429 RESOURCE_EXHAUSTED"), 429},
		{"http in text", errors.New("request failed with HTTP 502 bad gateway"), 502},
		{"status in text", errors.New("Status: 404"), 404},
		{"not a status", errors.New("999 problems"), 500},
		{"no status", errors.New("connection reset"), 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusCode(tt.err); got != tt.want {
				t.Errorf("statusCode() = %d, wanted = %d", got, tt.want)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	for code, want := range map[int]bool{401: true, 403: true, 429: true, 500: false, 503: false, 400: false} {
		if got := isFatal(code); got != want {
			t.Errorf("isFatal(%d) = %v, wanted = %v", code, got, want)
		}
	}
}
