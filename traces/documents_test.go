/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package traces

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConvertToDocuments(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []Document
	}{{
		name:  "nil",
		input: nil,
		want:  []Document{},
	}, {
		name:  "string",
		input: "one",
		want:  []Document{{Content: "one"}},
	}, {
		name:  "strings",
		input: []string{"a", "b"},
		want:  []Document{{Content: "a"}, {Content: "b"}},
	}, {
		name:  "document",
		input: Document{Content: "c", Metadata: map[string]any{"k": "v"}},
		want:  []Document{{Content: "c", Metadata: map[string]any{"k": "v"}}},
	}, {
		name:  "document pointer",
		input: &Document{Content: "p"},
		want:  []Document{{Content: "p"}},
	}, {
		name:  "map with content",
		input: map[string]any{"content": "body", "metadata": map[string]any{"source": "kb"}},
		want:  []Document{{Content: "body", Metadata: map[string]any{"source": "kb"}}},
	}, {
		name:  "map with page_content",
		input: map[string]any{"page_content": "page"},
		want:  []Document{{Content: "page"}},
	}, {
		name:  "map without content",
		input: map[string]any{"title": "x"},
		want:  []Document{{Content: `{"title":"x"}`}},
	}, {
		name:  "map of strings",
		input: map[string]string{"content": "s"},
		want:  []Document{{Content: "s"}},
	}, {
		name: "list of maps",
		input: []map[string]any{
			{"content": "1"},
			{"content": "2", "metadata": map[string]string{"rank": "2"}},
		},
		want: []Document{{Content: "1"}, {Content: "2", Metadata: map[string]any{"rank": "2"}}},
	}, {
		name:  "mixed list",
		input: []any{"s", map[string]any{"content": "m"}, Document{Content: "d"}},
		want:  []Document{{Content: "s"}, {Content: "m"}, {Content: "d"}},
	}, {
		name:  "number",
		input: 12,
		want:  []Document{{Content: "12"}},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertToDocuments(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ConvertToDocuments() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvertToDocumentsCopies(t *testing.T) {
	in := []Document{{Content: "a"}}
	out := ConvertToDocuments(in)
	out[0].Content = "changed"
	if got, wanted := in[0].Content, "a"; got != wanted {
		t.Errorf("input was mutated: got = %q, wanted = %q", got, wanted)
	}
}
