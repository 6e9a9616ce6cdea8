/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logger

import (
	"errors"

	"github.com/rungalileo/galileo-go/traces"
)

// AddWorkflowSpan attaches a workflow span under the current parent and
// pushes it. It returns nil when there is no active trace.
func (l *Logger) AddWorkflowSpan(input any, opts ...SpanOption) *traces.WorkflowSpan {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := newSpanConfig(opts)
	span := traces.NewWorkflowSpan(input)
	applyStep(&span.Step, cfg)
	if !l.attach(span) {
		return nil
	}
	l.stack = append(l.stack, span)
	return span
}

// AddAgentSpan attaches an agent span under the current parent and pushes
// it. It returns nil when there is no active trace.
func (l *Logger) AddAgentSpan(input any, opts ...SpanOption) *traces.AgentSpan {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := newSpanConfig(opts)
	span := traces.NewAgentSpan(input)
	applyStep(&span.Step, cfg)
	if cfg.agentType != "" {
		span.AgentType = cfg.agentType
	}
	if !l.attach(span) {
		return nil
	}
	l.stack = append(l.stack, span)
	return span
}

// AddLLMSpan attaches an LLM span under the current parent. It returns nil
// when there is no active trace.
func (l *Logger) AddLLMSpan(input, output any, opts ...SpanOption) *traces.LLMSpan {
	l.mu.Lock()
	defer l.mu.Unlock()

	span := newLLMSpan(input, output, newSpanConfig(opts))
	if !l.attach(span) {
		return nil
	}
	return span
}

func newLLMSpan(input, output any, cfg *spanConfig) *traces.LLMSpan {
	span := traces.NewLLMSpan(input)
	applyStep(&span.Step, cfg)
	span.Output = output
	span.Model = cfg.model
	span.Temperature = cfg.temperature
	span.Tools = cfg.tools
	span.Metrics = cfg.metrics
	return span
}

// AddToolSpan attaches a tool span under the current parent. It returns nil
// when there is no active trace.
func (l *Logger) AddToolSpan(input, output any, opts ...SpanOption) *traces.ToolSpan {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := newSpanConfig(opts)
	span := traces.NewToolSpan(input)
	applyStep(&span.Step, cfg)
	span.Output = output
	span.ToolCallID = cfg.toolCallID
	if !l.attach(span) {
		return nil
	}
	return span
}

// AddRetrieverSpan attaches a retriever span under the current parent. The
// documents may be any shape traces.ConvertToDocuments accepts. It returns
// nil when there is no active trace.
func (l *Logger) AddRetrieverSpan(input, documents any, opts ...SpanOption) *traces.RetrieverSpan {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := newSpanConfig(opts)
	span := traces.NewRetrieverSpan(input, traces.ConvertToDocuments(documents))
	applyStep(&span.Step, cfg)
	if !l.attach(span) {
		return nil
	}
	return span
}

func (l *Logger) attach(span traces.Span) bool {
	parent := l.currentParent()
	if parent == nil {
		l.log.Warn("No active trace, dropping span", "span_type", span.Base().Type, "name", span.Base().Name)
		return false
	}
	if err := parent.AddChild(span); err != nil {
		l.log.Warn("Failed to attach span", "span_type", span.Base().Type, "error", err)
		return false
	}
	return true
}

// PushParent makes an already attached container the attachment point for
// later spans, as if it had been added with AddWorkflowSpan. It is used to
// nest spans under a tool that invoked an agent.
func (l *Logger) PushParent(c traces.Container) error {
	if c == nil {
		return errors.New("cannot push a nil parent")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == nil {
		return ErrNoActiveTrace
	}
	if c.Base().Type == traces.SpanTypeTrace {
		return errors.New("traces cannot be pushed as a parent")
	}
	l.stack = append(l.stack, c)
	return nil
}
