/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// HookKind tells how a Hook is invoked.
type HookKind int

const (
	// HookSync hooks run inline on the flushing goroutine.
	HookSync HookKind = iota
	// HookAsync hooks run in the background when a Dispatcher is available.
	HookAsync
)

func (k HookKind) String() string {
	if k == HookAsync {
		return "async"
	}
	return "sync"
}

// HookFunc is a user callback receiving flushed batches.
type HookFunc func(ctx context.Context, req *Request) error

// Hook is a user ingestion callback together with its invocation kind.
type Hook struct {
	kind HookKind
	fn   HookFunc
}

// SyncHook wraps fn as a hook that runs inline.
func SyncHook(fn HookFunc) Hook {
	return Hook{kind: HookSync, fn: fn}
}

// AsyncHook wraps fn as a hook that may run in the background.
func AsyncHook(fn HookFunc) Hook {
	return Hook{kind: HookAsync, fn: fn}
}

// Kind returns how the hook is invoked.
func (h Hook) Kind() HookKind { return h.kind }

// SinkName implements Named.
func (h Hook) SinkName() string { return "hook_" + h.kind.String() }

// Ingest implements Sink. Sync hooks and async hooks without a dispatcher in
// ctx return the hook's error. Async hooks with a dispatcher are scheduled and
// Ingest returns nil immediately; their outcome is logged.
func (h Hook) Ingest(ctx context.Context, req *Request) error {
	if h.fn == nil {
		return errors.New("ingestion hook has no function")
	}
	if h.kind == HookAsync {
		if d, ok := DispatcherFromContext(ctx); ok && d.Go(ctx, h.fn, req) {
			return nil
		}
	}
	return h.fn(ctx, req)
}

// Dispatcher runs async hooks in the background and tracks them until Wait.
type Dispatcher struct {
	mu     sync.Mutex
	closed bool
	g      errgroup.Group
}

// NewDispatcher returns an open dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Go schedules fn. It reports false when the dispatcher no longer accepts
// work, in which case the caller runs fn itself.
func (d *Dispatcher) Go(ctx context.Context, fn HookFunc, req *Request) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.g.Go(func() error {
		log := clog.FromContext(ctx).With("traces", len(req.Traces))
		switch err := runHook(ctx, fn, req); {
		case err == nil:
			log.Debug("Ingestion hook completed")
		case errors.Is(err, context.Canceled):
			log.Info("Ingestion hook was cancelled")
		default:
			log.Error("Ingestion hook failed", "error", err)
		}
		return nil
	})
	return true
}

// runHook calls fn, turning a panic into an error.
func runHook(ctx context.Context, fn HookFunc, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion hook panicked: %v", r)
		}
	}()
	return fn(ctx, req)
}

// Wait blocks until every scheduled hook has finished.
func (d *Dispatcher) Wait() {
	_ = d.g.Wait()
}

// Close stops accepting work and waits for scheduled hooks.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.Wait()
}

type dispatcherKey struct{}

// WithDispatcher returns a context carrying d.
func WithDispatcher(ctx context.Context, d *Dispatcher) context.Context {
	return context.WithValue(ctx, dispatcherKey{}, d)
}

// DispatcherFromContext returns the dispatcher carried by ctx.
func DispatcherFromContext(ctx context.Context) (*Dispatcher, bool) {
	d, ok := ctx.Value(dispatcherKey{}).(*Dispatcher)
	return d, ok && d != nil
}
