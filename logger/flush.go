/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logger

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rungalileo/galileo-go/ingest"
	"github.com/rungalileo/galileo-go/metrics"
	"github.com/rungalileo/galileo-go/traces"
)

// FlushResult is delivered by FlushAsync.
type FlushResult struct {
	Traces []*traces.Trace
	Err    error
}

// Flush concludes anything still open, hands the buffered traces to the sink
// and clears the buffer and the parent stack. The buffer is cleared even when
// the sink fails. The returned traces are exactly the batch given to the
// sink. With nothing buffered the sink is not invoked.
func (l *Logger) Flush(ctx context.Context) ([]*traces.Trace, error) {
	batch, req, sink := l.drain()
	return l.send(ctx, batch, req, sink, ingestSync)
}

// FlushAsync runs Flush in the background. The channel yields one result
// and is then closed. The buffer is drained before FlushAsync returns, so
// spans added afterwards belong to the next flush. Sinks implementing
// ingest.AsyncSink deliver through IngestAsync.
func (l *Logger) FlushAsync(ctx context.Context) <-chan FlushResult {
	batch, req, sink := l.drain()
	ch := make(chan FlushResult, 1)
	go func() {
		defer close(ch)
		flushed, err := l.send(ctx, batch, req, sink, ingestAsync)
		ch <- FlushResult{Traces: flushed, Err: err}
	}()
	return ch
}

type deliverFunc func(ctx context.Context, sink ingest.Sink, req *ingest.Request) error

func ingestSync(ctx context.Context, sink ingest.Sink, req *ingest.Request) error {
	return sink.Ingest(ctx, req)
}

func ingestAsync(ctx context.Context, sink ingest.Sink, req *ingest.Request) error {
	as, ok := sink.(ingest.AsyncSink)
	if !ok {
		return sink.Ingest(ctx, req)
	}
	select {
	case err := <-as.IngestAsync(ctx, req):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) send(ctx context.Context, batch []*traces.Trace, req *ingest.Request, sink ingest.Sink, deliver deliverFunc) ([]*traces.Trace, error) {
	if len(batch) == 0 {
		l.log.Debug("Nothing to flush")
		return []*traces.Trace{}, nil
	}

	sinkName := ingest.Name(sink)
	ctx, span := l.tracer.Start(ctx, "galileo.flush", trace.WithAttributes(
		attribute.Int("galileo.traces", len(batch)),
		attribute.Int("galileo.spans", req.SpanCount()),
		attribute.String("galileo.sink", sinkName),
	))
	defer span.End()

	for _, t := range batch {
		l.metrics.RecordTrace(ctx, t)
	}

	if sink == nil {
		l.log.Warn("No sink configured, dropping traces", "traces", len(batch))
		return batch, nil
	}

	if err := deliver(ctx, sink, req); err != nil {
		metrics.FlushFailed(sinkName)
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingestion failed")
		l.log.Error("Failed to flush traces", "traces", len(batch), "sink", sinkName, "error", err)
		return batch, fmt.Errorf("flushing %d traces: %w", len(batch), err)
	}

	metrics.Flushed(sinkName, len(batch))
	l.log.Info("Flushed traces", "traces", len(batch), "sink", sinkName)
	return batch, nil
}

// drain auto-concludes open spans and swaps out the buffer.
func (l *Logger) drain() ([]*traces.Trace, *ingest.Request, ingest.Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer func() {
		l.traces = nil
		l.stack = nil
		l.active = nil
	}()

	switch {
	case len(l.stack) > 0:
		l.log.Debug("Concluding open spans before flush", "open_spans", len(l.stack))
		l.concludeAll(nil, &spanConfig{})
	case l.active != nil && !l.active.Concluded():
		l.concludeAll(nil, &spanConfig{})
	}

	batch := l.traces
	return batch, &ingest.Request{
		Traces:            batch,
		SessionID:         l.sessionID,
		SessionExternalID: l.externalID,
		ExperimentID:      l.experimentID,
	}, l.sink
}
