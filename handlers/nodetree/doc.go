/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package nodetree buffers callback events from agent frameworks as a tree
// of nodes keyed by run id and replays the tree into a span logger when the
// root run ends.
//
// Frameworks report runs out of order: a child may start before the
// framework tells us about its parent's output, and end events arrive in any
// order. The Builder records each start and end as a Node and only touches
// the logger once the root node ends, walking the tree depth first so every
// container is concluded after its children.
//
//	b := nodetree.New(l, nodetree.WithIntegration("langchain"))
//	b.StartNode(ctx, nodetree.Chain, nil, rootID, nodetree.Params{nodetree.ParamInput: "hi"})
//	b.StartNode(ctx, nodetree.LLM, &rootID, llmID, nil)
//	b.EndNode(ctx, llmID, nodetree.Params{nodetree.ParamOutput: "hello"})
//	b.EndNode(ctx, rootID, nil) // commits and flushes
package nodetree
