/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package traces defines the span tree that the SDK builds and uploads.

# Overview

A Trace is the root of one logged interaction. It owns an ordered list of child
spans. Workflow and agent spans are containers and may own children of their
own; LLM, tool and retriever spans are leaves (a tool span may be promoted to a
container when an agent is invoked as a tool).

  - Trace: root container for one end-to-end interaction
  - WorkflowSpan, AgentSpan: nested containers
  - LLMSpan: one model call with token metrics
  - ToolSpan: one tool call, optionally correlated by tool call id
  - RetrieverSpan: one retrieval with its documents

Every span gets a fresh uuid at creation. The parent of a span is recorded when
it is attached and never changes afterwards.

# Usage

Spans are normally created through the logger package, which maintains the
parent stack. The types here can also be assembled by hand:

	trace := traces.NewTrace("What is the weather?")
	llm := traces.NewLLMSpan([]any{"What is the weather?"})
	trace.AddChild(llm)
	llm.Output = "Sunny"
*/
package traces
