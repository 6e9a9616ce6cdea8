/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package providers

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

var reflector = jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	AllowAdditionalProperties:  true,
	DoNotReference:             true,
}

// ToolSchema describes a function tool in the shape LLM spans record
// (logger.WithTools): an OpenAI-style function whose parameters are the
// JSON schema reflected from params. A nil params yields an empty object.
func ToolSchema(name, description string, params any) (map[string]any, error) {
	parameters := map[string]any{}
	if params != nil {
		b, err := json.Marshal(reflector.Reflect(params))
		if err != nil {
			return nil, fmt.Errorf("marshaling schema for tool %q: %w", name, err)
		}
		if err := json.Unmarshal(b, &parameters); err != nil {
			return nil, fmt.Errorf("decoding schema for tool %q: %w", name, err)
		}
		delete(parameters, "$schema")
	}
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        name,
			"description": description,
			"parameters":  parameters,
		},
	}, nil
}

// ToolSchemaFor reflects the parameters of a tool from the zero value of T.
func ToolSchemaFor[T any](name, description string) (map[string]any, error) {
	var zero T
	return ToolSchema(name, description, &zero)
}
