/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package tracker correlates paired framework callbacks (before/after run,
// agent, model and tool) with the run ids of the nodes they open.
//
// Frameworks that fire "before" and "after" callbacks without a shared run id
// key them by invocation id plus a per-kind suffix: the agent name, an LLM
// call id or a tool key. Nested invocations started by a tool share their
// session's active-tool stack so they can be parented under that tool.
//
// LLM call ids can also be bound to the identity of a request or response
// value with StoreCallID. Such bindings do not keep the value alive.
package tracker
