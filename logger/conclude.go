/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logger

import (
	"github.com/rungalileo/galileo-go/traces"
)

// Conclude sets output, duration and status on the top of the stack and pops
// it. A nil output falls back to the output of the last child, recursively.
// When the stack becomes empty the active trace receives the same output but
// stays active, so spans may still be added to it. With an empty stack
// Conclude concludes the active trace itself and deactivates it. Without an
// active trace Conclude logs a warning and returns nil.
//
// The returned container is the new current parent.
func (l *Logger) Conclude(output any, opts ...SpanOption) traces.Container {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := newSpanConfig(opts)
	if len(l.stack) == 0 {
		if l.active == nil {
			l.log.Warn("No open span or active trace to conclude")
			return nil
		}
		l.concludeTrace(output, cfg)
		return nil
	}

	top := l.stack[len(l.stack)-1]
	l.stack = l.stack[:len(l.stack)-1]
	effective := concludeContainer(top, output, cfg)

	if len(l.stack) == 0 && l.active != nil {
		concludeStep(&l.active.Step, effective, nil, nil)
	}
	return l.currentParent()
}

// ConcludeAll concludes every open container and then the active trace.
func (l *Logger) ConcludeAll(output any, opts ...SpanOption) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.concludeAll(output, newSpanConfig(opts))
}

func (l *Logger) concludeAll(output any, cfg *spanConfig) {
	for len(l.stack) > 0 {
		top := l.stack[len(l.stack)-1]
		l.stack = l.stack[:len(l.stack)-1]
		concludeContainer(top, output, cfg)
	}
	if l.active != nil {
		l.concludeTrace(output, cfg)
	}
}

func (l *Logger) concludeTrace(output any, cfg *spanConfig) {
	t := l.active
	if output == nil {
		output = lastChildOutput(t)
	}
	// A trace concluded implicitly when its last container closed keeps that
	// duration unless one is given now.
	t.DurationNs = nil
	concludeStep(&t.Step, output, cfg.durationNs, cfg.statusCode)
	l.active = nil
}

// concludeContainer concludes c and returns the output it ended up with.
func concludeContainer(c traces.Container, output any, cfg *spanConfig) any {
	if output == nil {
		output = lastOutput(c)
	}
	concludeStep(c.Base(), output, cfg.durationNs, cfg.statusCode)
	return c.Base().Output
}

// lastOutput returns the output of s or, when it has none, of its last
// child, recursively.
func lastOutput(s traces.Span) any {
	if s == nil {
		return nil
	}
	if out := s.Base().Output; out != nil {
		return out
	}
	return lastChildOutput(s)
}

func lastChildOutput(s traces.Span) any {
	c, ok := s.(traces.Container)
	if !ok {
		return nil
	}
	children := c.Children()
	if len(children) == 0 {
		return nil
	}
	return lastOutput(children[len(children)-1])
}
