/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package adk traces agent runners that report invocation, agent, model and
// tool callbacks in before/after pairs.
//
// Callback pairs carry no shared run id, so the Plugin correlates them with
// a tracker.Tracker: invocations by id, agents by name, model calls by call
// id and tools by identity. Each root invocation becomes one trace:
//
//	p := adk.New(l)
//	p.OnUserMessage(ctx, ic, msg)
//	p.BeforeAgent(ctx, cc)
//	p.BeforeModel(ctx, cc, req)
//	p.AfterModel(ctx, cc, resp)
//	p.AfterAgent(ctx, cc)
//	p.AfterRun(ctx, ic) // commits and flushes
//
// When a tool runs another agent, the nested invocation is recorded under
// that tool's span. Model errors with status 401, 403 or 429 abort the run,
// so the plugin commits the partial trace as soon as it sees one.
package adk
