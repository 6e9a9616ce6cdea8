/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package langchain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/rungalileo/galileo-go/handlers/nodetree"
)

// DefaultQueueSize bounds the number of events an AsyncCallback buffers
// before callers block.
const DefaultQueueSize = 1024

// ErrClosed is returned by Close when the callback was already closed.
var ErrClosed = errors.New("callback closed")

// AsyncCallback handles run events on a single background worker. Events
// from one instance are processed in the order they were received.
type AsyncCallback struct {
	cb    *Callback
	queue chan func()
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ Handler = (*AsyncCallback)(nil)

// NewAsync creates an AsyncCallback logging into l and starts its worker.
func NewAsync(l nodetree.SpanLogger, opts ...nodetree.Option) *AsyncCallback {
	a := &AsyncCallback{
		cb:    New(l, opts...),
		queue: make(chan func(), DefaultQueueSize),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncCallback) run() {
	defer close(a.done)
	for fn := range a.queue {
		fn()
	}
}

// Builder exposes the underlying node tree.
func (a *AsyncCallback) Builder() *nodetree.Builder { return a.cb.b }

// enqueue schedules fn with a context that outlives the caller's
// cancellation and is stamped with the time the event arrived.
func (a *AsyncCallback) enqueue(ctx context.Context, fn func(ctx context.Context)) {
	ctx = nodetree.WithEventTime(context.WithoutCancel(ctx), time.Now())

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		clog.FromContext(ctx).Warn("Dropping event received after close", "integration", Integration)
		return
	}
	a.queue <- func() { fn(ctx) }
}

// Close stops accepting events and waits until the queued ones have been
// processed or ctx is done.
func (a *AsyncCallback) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncCallback) OnChainStart(ctx context.Context, run Run, inputs any) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnChainStart(ctx, run, inputs) })
}

func (a *AsyncCallback) OnChainEnd(ctx context.Context, runID uuid.UUID, outputs any) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnChainEnd(ctx, runID, outputs) })
}

func (a *AsyncCallback) OnChainError(ctx context.Context, runID uuid.UUID, err error) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnChainError(ctx, runID, err) })
}

func (a *AsyncCallback) OnAgentFinish(ctx context.Context, runID uuid.UUID, finish AgentFinish) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnAgentFinish(ctx, runID, finish) })
}

func (a *AsyncCallback) OnLLMStart(ctx context.Context, run Run, prompts []string) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnLLMStart(ctx, run, prompts) })
}

func (a *AsyncCallback) OnChatModelStart(ctx context.Context, run Run, messages [][]Message) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnChatModelStart(ctx, run, messages) })
}

func (a *AsyncCallback) OnLLMNewToken(ctx context.Context, runID uuid.UUID, token string) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnLLMNewToken(ctx, runID, token) })
}

func (a *AsyncCallback) OnLLMEnd(ctx context.Context, runID uuid.UUID, result LLMResult) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnLLMEnd(ctx, runID, result) })
}

func (a *AsyncCallback) OnLLMError(ctx context.Context, runID uuid.UUID, err error) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnLLMError(ctx, runID, err) })
}

func (a *AsyncCallback) OnToolStart(ctx context.Context, run Run, input string) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnToolStart(ctx, run, input) })
}

func (a *AsyncCallback) OnToolEnd(ctx context.Context, runID uuid.UUID, output any) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnToolEnd(ctx, runID, output) })
}

func (a *AsyncCallback) OnToolError(ctx context.Context, runID uuid.UUID, err error) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnToolError(ctx, runID, err) })
}

func (a *AsyncCallback) OnRetrieverStart(ctx context.Context, run Run, query string) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnRetrieverStart(ctx, run, query) })
}

func (a *AsyncCallback) OnRetrieverEnd(ctx context.Context, runID uuid.UUID, documents any) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnRetrieverEnd(ctx, runID, documents) })
}

func (a *AsyncCallback) OnRetrieverError(ctx context.Context, runID uuid.UUID, err error) {
	a.enqueue(ctx, func(ctx context.Context) { a.cb.OnRetrieverError(ctx, runID, err) })
}
