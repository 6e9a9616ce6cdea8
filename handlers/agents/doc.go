/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package agents implements a tracing processor for OpenAI-Agents-style
// runtimes, which report traces and typed spans identified by string ids.
//
// Each trace id gets its own node tree; the tree is committed to the logger
// when the trace ends, so several traces may be in flight at once.
package agents
