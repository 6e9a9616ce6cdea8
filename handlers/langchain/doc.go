/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package langchain adapts LangChain-style run callbacks (chain, LLM, chat
// model, tool and retriever start/end/error events keyed by run id) to the
// node-tree builder.
//
// Callback handles events on the caller's goroutine. AsyncCallback queues
// them to a single worker so callers never wait on a commit or flush; call
// Close to drain it.
package langchain
