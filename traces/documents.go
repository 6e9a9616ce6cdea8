/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package traces

import (
	"fmt"
	"log/slog"

	"github.com/rungalileo/galileo-go/serialization"
)

// Document is one retrieved chunk of content
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// contentKeys are tried in order when a map is interpreted as a document
var contentKeys = []string{"content", "page_content"}

// ConvertToDocuments normalizes the many shapes a retriever may return into a
// document list. It accepts a Document, a list of Documents, a string, a list
// of strings, a map, a list of maps, or a mixed []any of those. It never fails:
// maps without a string content field become a single document holding the
// JSON encoding of the map, and unknown values are rendered with
// serialization.ToString.
func ConvertToDocuments(v any) (docs []Document) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Failed to convert retriever output to documents", "panic", fmt.Sprint(r))
			docs = []Document{}
		}
	}()

	switch val := v.(type) {
	case nil:
		return []Document{}
	case Document:
		return []Document{val}
	case *Document:
		if val == nil {
			return []Document{}
		}
		return []Document{*val}
	case []Document:
		out := make([]Document, len(val))
		copy(out, val)
		return out
	case string:
		return []Document{{Content: val}}
	case []string:
		out := make([]Document, 0, len(val))
		for _, s := range val {
			out = append(out, Document{Content: s})
		}
		return out
	case map[string]any:
		return []Document{documentFromMap(val)}
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return []Document{documentFromMap(m)}
	case []map[string]any:
		out := make([]Document, 0, len(val))
		for _, m := range val {
			out = append(out, documentFromMap(m))
		}
		return out
	case []any:
		out := make([]Document, 0, len(val))
		for _, item := range val {
			out = append(out, ConvertToDocuments(item)...)
		}
		return out
	default:
		slog.Debug("Converting unrecognized retriever output", "type", fmt.Sprintf("%T", v))
		return []Document{{Content: serialization.ToString(v)}}
	}
}

func documentFromMap(m map[string]any) Document {
	for _, key := range contentKeys {
		content, ok := m[key].(string)
		if !ok {
			continue
		}
		doc := Document{Content: content}
		switch md := m["metadata"].(type) {
		case map[string]any:
			doc.Metadata = md
		case map[string]string:
			doc.Metadata = make(map[string]any, len(md))
			for k, v := range md {
				doc.Metadata[k] = v
			}
		}
		return doc
	}
	return Document{Content: serialization.ToString(m)}
}
