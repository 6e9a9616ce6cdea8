/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package ingest delivers flushed trace batches.
//
// A batch is a Request. Anything that accepts one implements Sink: the HTTP
// Client for the hosted API, a RedisSink that queues batches on a Redis list,
// a Fanout over several sinks, or a user Hook.
//
// Hooks are classified when they are created. A SyncHook runs inline. An
// AsyncHook runs in the background when the caller's context carries a
// Dispatcher, in which case its outcome is logged and never returned, and
// runs to completion otherwise:
//
//	d := ingest.NewDispatcher()
//	ctx = ingest.WithDispatcher(ctx, d)
//	// ... flushes schedule async hooks on d ...
//	d.Wait()
package ingest
