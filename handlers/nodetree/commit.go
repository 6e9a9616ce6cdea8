/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package nodetree

import (
	"context"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/rungalileo/galileo-go/logger"
	"github.com/rungalileo/galileo-go/serialization"
	"github.com/rungalileo/galileo-go/traces"
)

func (b *Builder) commit(ctx context.Context, nodes map[uuid.UUID]*Node, rootID uuid.UUID) {
	log := clog.FromContext(ctx)
	if len(nodes) == 0 {
		log.Warn("No nodes to commit")
		return
	}
	root, ok := nodes[rootID]
	if !ok {
		log.Warn("Unable to add nodes to trace: root node does not exist", "run_id", rootID)
		return
	}

	if b.startNewTrace {
		opts := []logger.SpanOption{logger.WithName(root.Params.String(ParamName))}
		if createdAt, ok := root.Params.Time(ParamCreatedAt); ok {
			opts = append(opts, logger.WithCreatedAt(createdAt))
		}
		b.logger.StartTrace(outputString(root.Params[ParamInput]), opts...)
	}

	output := b.logNode(ctx, nodes, root, make(map[uuid.UUID]struct{}, len(nodes)))

	if b.startNewTrace {
		var opts []logger.SpanOption
		if code, ok := root.Params.Int64(ParamStatusCode); ok {
			opts = append(opts, logger.WithStatusCode(int(code)))
		}
		if d, ok := root.Params.Int64(ParamDurationNs); ok {
			opts = append(opts, logger.WithDurationNs(d))
		}
		b.logger.Conclude(outputString(output), opts...)
	}

	if b.flushOnEnd {
		if _, err := b.logger.Flush(ctx); err != nil {
			log.Error("Failed to flush trace", "integration", b.integration, "error", err)
		}
	}
}

// logNode adds n and its subtree to the logger, depth first, and returns the
// node's effective output: its own output or, when empty, that of its last
// logged child.
func (b *Builder) logNode(ctx context.Context, nodes map[uuid.UUID]*Node, n *Node, seen map[uuid.UUID]struct{}) any {
	log := clog.FromContext(ctx)
	if _, ok := seen[n.RunID]; ok {
		log.Warn("Node visited twice, skipping", "run_id", n.RunID)
		return nil
	}
	seen[n.RunID] = struct{}{}

	p := n.Params
	opts := stepOptions(ctx, p)
	input, output := p[ParamInput], p[ParamOutput]

	pushed := false
	switch n.Type {
	case Chain, Workflow:
		pushed = b.logger.AddWorkflowSpan(input, opts...) != nil
	case Agent:
		if at := p.String(ParamAgentType); at != "" {
			opts = append(opts, logger.WithAgentType(traces.AgentType(at)))
		}
		pushed = b.logger.AddAgentSpan(input, opts...) != nil
	case LLM, Chat:
		b.logger.AddLLMSpan(input, output, append(opts, llmOptions(p)...)...)
	case Retriever:
		b.logger.AddRetrieverSpan(input, output, opts...)
	case Tool:
		opts = append(opts, logger.WithToolCallID(p.String(ParamToolCallID)))
		span := b.logger.AddToolSpan(input, output, opts...)
		// A tool that invoked an agent holds that agent's spans.
		if span != nil && len(n.Children) > 0 {
			if err := b.logger.PushParent(span); err != nil {
				log.Warn("Failed to nest spans under tool", "run_id", n.RunID, "error", err)
			} else {
				pushed = true
			}
		}
	default:
		log.Warn("Unknown node type", "node_type", n.Type, "run_id", n.RunID)
	}

	var last any
	for _, id := range n.Children {
		child, ok := nodes[id]
		if !ok {
			log.Warn("Child node not found", "run_id", id)
			continue
		}
		last = b.logNode(ctx, nodes, child, seen)
	}
	if isEmpty(output) {
		output = last
	}

	if pushed {
		var copts []logger.SpanOption
		if code, ok := p.Int64(ParamStatusCode); ok {
			copts = append(copts, logger.WithStatusCode(int(code)))
		}
		b.logger.Conclude(outputString(output), copts...)
	}
	return output
}

func stepOptions(ctx context.Context, p Params) []logger.SpanOption {
	opts := []logger.SpanOption{logger.WithName(p.String(ParamName))}
	if t, ok := p.Time(ParamCreatedAt); ok {
		opts = append(opts, logger.WithCreatedAt(t))
	}
	if d, ok := p.Int64(ParamDurationNs); ok {
		opts = append(opts, logger.WithDurationNs(d))
	}
	if code, ok := p.Int64(ParamStatusCode); ok {
		opts = append(opts, logger.WithStatusCode(int(code)))
	}
	if md := p.Metadata(); len(md) > 0 {
		opts = append(opts, logger.WithMetadata(md))
	}
	if tags := p.Strings(ParamTags); len(tags) > 0 {
		opts = append(opts, logger.WithTags(tags...))
	}
	if step, ok := p.StepNumber(ctx); ok {
		opts = append(opts, logger.WithStepNumber(step))
	}
	return opts
}

func llmOptions(p Params) []logger.SpanOption {
	var opts []logger.SpanOption
	if model := p.String(ParamModel); model != "" {
		opts = append(opts, logger.WithModel(model))
	}
	if temp, ok := p.Float(ParamTemperature); ok {
		opts = append(opts, logger.WithTemperature(temp))
	}
	if tools := p.Tools(); len(tools) > 0 {
		opts = append(opts, logger.WithTools(tools))
	}
	opts = append(opts, logger.WithTokens(
		tokenCount(p, ParamNumInputTokens),
		tokenCount(p, ParamNumOutputTokens),
		tokenCount(p, ParamTotalTokens),
	))
	if ttft, ok := p.Int64(ParamTimeToFirstToken); ok {
		opts = append(opts, logger.WithTimeToFirstToken(ttft))
	}
	return opts
}

// tokenCount returns -1 for a missing count, which leaves it unset.
func tokenCount(p Params, key string) int64 {
	if n, ok := p.Int64(key); ok {
		return n
	}
	return -1
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// outputString renders a container or trace output. Nil becomes the empty
// string rather than "null".
func outputString(v any) string {
	if v == nil {
		return ""
	}
	return serialization.ToString(v)
}
