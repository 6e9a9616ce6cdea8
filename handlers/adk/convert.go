/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package adk

import (
	"encoding/base64"
	"strings"

	"google.golang.org/genai"

	"github.com/rungalileo/galileo-go/serialization"
)

var roles = map[string]string{
	"user":   "user",
	"model":  "assistant",
	"system": "system",
}

func role(r string) string {
	if mapped, ok := roles[strings.ToLower(r)]; ok {
		return mapped
	}
	return "user"
}

// messages flattens contents into chat messages, one per part, keeping
// part order.
func messages(contents ...*genai.Content) []map[string]any {
	out := []map[string]any{}
	for _, c := range contents {
		if c == nil {
			continue
		}
		base := role(c.Role)
		for _, part := range c.Parts {
			if msg, ok := partMessage(part, base); ok {
				out = append(out, msg)
			}
		}
	}
	return out
}

func partMessage(part *genai.Part, base string) (map[string]any, bool) {
	msg := func(role string, content any) map[string]any {
		if s, ok := content.(string); ok {
			return map[string]any{"role": role, "content": s}
		}
		return map[string]any{"role": role, "content": serialization.ToString(content)}
	}

	switch {
	case part == nil:
		return nil, false
	case part.Text != "":
		return msg(base, part.Text), true
	case part.InlineData != nil:
		return msg(base, map[string]any{
			"type":      "inline_data",
			"mime_type": part.InlineData.MIMEType,
			"data":      base64.StdEncoding.EncodeToString(part.InlineData.Data),
		}), true
	case part.FileData != nil:
		payload := map[string]any{"type": "file_data", "file_uri": part.FileData.FileURI}
		if part.FileData.MIMEType != "" {
			payload["mime_type"] = part.FileData.MIMEType
		}
		return msg(base, payload), true
	case part.FunctionCall != nil:
		return msg("tool", map[string]any{
			"type": "function_call",
			"name": part.FunctionCall.Name,
			"args": part.FunctionCall.Args,
		}), true
	case part.FunctionResponse != nil:
		return msg("tool", map[string]any{
			"type":     "function_response",
			"name":     part.FunctionResponse.Name,
			"response": part.FunctionResponse.Response,
		}), true
	}
	return nil, false
}

// text joins the text parts of c with spaces.
func text(c *genai.Content) string {
	if c == nil {
		return ""
	}
	var parts []string
	for _, p := range c.Parts {
		if p != nil && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, " ")
}

// tools converts function declarations into OpenAI-style tool schemas.
func tools(cfg *genai.GenerateContentConfig) []map[string]any {
	if cfg == nil {
		return nil
	}
	var out []map[string]any
	for _, t := range cfg.Tools {
		if t == nil {
			continue
		}
		for _, fd := range t.FunctionDeclarations {
			if fd == nil || fd.Name == "" {
				continue
			}
			out = append(out, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        fd.Name,
					"description": fd.Description,
					"parameters":  parameters(fd),
				},
			})
		}
	}
	return out
}

func parameters(fd *genai.FunctionDeclaration) any {
	if fd.Parameters == nil {
		return map[string]any{}
	}
	return serialization.ToJSONValue(fd.Parameters)
}

// finalOutput returns the text of the last final-response event.
func finalOutput(events []*Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if e := events[i]; e != nil && e.Final && e.Content != nil {
			return text(e.Content)
		}
	}
	return ""
}

// lastOutput returns the text of the last event.
func lastOutput(events []*Event) string {
	if len(events) == 0 || events[len(events)-1] == nil {
		return ""
	}
	return text(events[len(events)-1].Content)
}
