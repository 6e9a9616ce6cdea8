/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package logger builds span trees one call at a time and flushes them to a
// sink.
//
// A Logger keeps the traces it has started and an explicit stack of open
// container spans. Workflow and agent spans are pushed onto the stack when
// added, so later spans nest under them until Conclude pops them. LLM, tool
// and retriever spans are leaves and never touch the stack. Traces are the
// implicit root: they are not pushed, and spans added with an empty stack
// attach to the most recently started trace.
//
//	l, _ := logger.New(ctx, logger.WithSink(client))
//	l.StartTrace("What is the capital of France?")
//	l.AddAgentSpan("plan", logger.WithName("planner"))
//	l.AddLLMSpan(prompt, reply, logger.WithModel("gpt-4o"))
//	l.Conclude("Paris") // closes the agent
//	l.Conclude("Paris") // closes the trace
//	flushed, err := l.Flush(ctx)
//
// A Logger builds one trace at a time. Use a Logger per concurrent trace.
package logger
