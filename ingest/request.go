/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/rungalileo/galileo-go/serialization"
	"github.com/rungalileo/galileo-go/traces"
)

// Request is one batch of traces handed to a sink on flush.
type Request struct {
	Traces            []*traces.Trace `json:"traces"`
	SessionID         string          `json:"session_id,omitempty"`
	SessionExternalID string          `json:"session_external_id,omitempty"`
	ExperimentID      string          `json:"experiment_id,omitempty"`
	LogStream         string          `json:"log_stream_name,omitempty"`
}

// SpanCount returns the number of spans below all traces of the batch.
func (r *Request) SpanCount() int {
	n := 0
	for _, t := range r.Traces {
		n += t.SpanCount()
	}
	return n
}

// Sink accepts flushed batches.
type Sink interface {
	Ingest(ctx context.Context, req *Request) error
}

// AsyncSink accepts batches without blocking the caller. The returned channel
// yields exactly one value and is then closed.
type AsyncSink interface {
	IngestAsync(ctx context.Context, req *Request) <-chan error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, req *Request) error

// Ingest implements Sink.
func (f SinkFunc) Ingest(ctx context.Context, req *Request) error { return f(ctx, req) }

// Named is implemented by sinks that report a stable name for metrics.
type Named interface {
	SinkName() string
}

// Name returns the metrics name of a sink.
func Name(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.SinkName()
	}
	if s == nil {
		return "none"
	}
	return reflect.TypeOf(s).String()
}

// EncodeRequest renders a batch as JSON. Span inputs and outputs go through
// serialization.ToJSONValue, so values that encoding/json rejects degrade to
// placeholders instead of failing the batch. HTML characters are not
// escaped, so placeholders such as "<chan int>" stay readable.
func EncodeRequest(req *Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("encoding request: nil request")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(serialization.ToJSONValue(req)); err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func async(ctx context.Context, s Sink, req *Request) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- s.Ingest(ctx, req)
	}()
	return ch
}
