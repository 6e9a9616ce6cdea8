/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package nodetree

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/rungalileo/galileo-go/metrics"
)

// Option configures a Builder.
type Option func(*Builder)

// WithStartNewTrace controls whether a commit opens and concludes its own
// trace. When false the nodes are attached under the logger's current
// parent. The default is true.
func WithStartNewTrace(start bool) Option {
	return func(b *Builder) { b.startNewTrace = start }
}

// WithFlushOnEnd controls whether the logger is flushed after each commit.
// The default is true.
func WithFlushOnEnd(flush bool) Option {
	return func(b *Builder) { b.flushOnEnd = flush }
}

// WithIntegration names the framework feeding the builder. It labels
// diagnostics.
func WithIntegration(name string) Option {
	return func(b *Builder) { b.integration = name }
}

// Builder collects nodes for one adapter instance. It is safe for
// concurrent use.
type Builder struct {
	logger        SpanLogger
	startNewTrace bool
	flushOnEnd    bool
	integration   string

	mu    sync.Mutex
	nodes map[uuid.UUID]*Node
	root  *uuid.UUID
}

// New creates a Builder that commits into l.
func New(l SpanLogger, opts ...Option) *Builder {
	b := &Builder{
		logger:        l,
		startNewTrace: true,
		flushOnEnd:    true,
		integration:   "custom",
		nodes:         make(map[uuid.UUID]*Node),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type eventTimeKey struct{}

// WithEventTime returns a context whose events are timestamped at t instead
// of when the Builder sees them. Adapters that queue events use it so that
// durations reflect when the framework reported them.
func WithEventTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, eventTimeKey{}, t)
}

func eventTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(eventTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// Integration returns the framework name used in diagnostics.
func (b *Builder) Integration() string { return b.integration }

// StartNode records the start of a run. The first node started after a
// commit becomes the root. A later node without a parent replaces the root
// with a warning. A parent that was never started is logged and
// the node stays detached. Starting a run id twice merges the new params
// into the existing node.
func (b *Builder) StartNode(ctx context.Context, typ NodeType, parent *uuid.UUID, runID uuid.UUID, params Params) *Node {
	log := clog.FromContext(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.nodes[runID]; ok {
		log.Debug("Node already exists, merging params", "run_id", runID)
		maps.Copy(existing.Params, params)
		return existing.clone()
	}

	node := &Node{
		RunID:       runID,
		ParentRunID: parent,
		Type:        typ,
		Params:      maps.Clone(params),
	}
	if node.Params == nil {
		node.Params = Params{}
	}
	now := eventTime(ctx)
	if _, ok := node.Params[ParamStartTime]; !ok {
		node.Params[ParamStartTime] = now
	}
	if _, ok := node.Params[ParamCreatedAt]; !ok {
		node.Params[ParamCreatedAt] = now.UTC()
	}
	b.nodes[runID] = node

	switch {
	case b.root == nil:
		log.Debug("Setting root node", "run_id", runID)
		id := runID
		b.root = &id
	case parent == nil:
		// The previous root can no longer be reached; its end becomes an
		// orphan end.
		log.Warn("Root node replaced before it ended", "run_id", runID, "previous_root_run_id", *b.root, "integration", b.integration)
		metrics.RootReplaced(b.integration)
		id := runID
		b.root = &id
	}

	if parent != nil {
		if p, ok := b.nodes[*parent]; ok {
			p.Children = append(p.Children, runID)
		} else {
			log.Debug("Parent node not found", "run_id", runID, "parent_run_id", *parent)
		}
	}
	return node.clone()
}

// EndNode records the end of a run: the duration is measured from its start
// and params are merged in. Ending the root commits the tree. An end for a
// run that was never started is counted and otherwise ignored.
func (b *Builder) EndNode(ctx context.Context, runID uuid.UUID, params Params) {
	b.mu.Lock()
	node, ok := b.nodes[runID]
	if !ok {
		b.mu.Unlock()
		metrics.OrphanEnd(b.integration)
		clog.FromContext(ctx).Debug("No node exists for run id", "run_id", runID, "integration", b.integration)
		return
	}

	if start, ok := node.Params.Time(ParamStartTime); ok {
		node.Params[ParamDurationNs] = eventTime(ctx).Sub(start).Nanoseconds()
	}
	maps.Copy(node.Params, params)

	if b.root == nil || *b.root != runID {
		b.mu.Unlock()
		return
	}
	nodes, root := b.take()
	b.mu.Unlock()

	b.commit(ctx, nodes, *root)
}

// RecordFirstToken stores the time to the first streamed token of a run.
// Only the first call for a run has an effect.
func (b *Builder) RecordFirstToken(ctx context.Context, runID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	node, ok := b.nodes[runID]
	if !ok {
		return
	}
	if _, set := node.Params[ParamTimeToFirstToken]; set {
		return
	}
	if start, ok := node.Params.Time(ParamStartTime); ok {
		node.Params[ParamTimeToFirstToken] = eventTime(ctx).Sub(start).Nanoseconds()
	}
}

// Update merges params into a started node without ending it.
func (b *Builder) Update(runID uuid.UUID, params Params) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	node, ok := b.nodes[runID]
	if !ok {
		return false
	}
	maps.Copy(node.Params, params)
	return true
}

// Commit writes whatever has been collected to the logger, even if runs
// are still open, and resets the builder.
func (b *Builder) Commit(ctx context.Context) {
	b.mu.Lock()
	nodes, root := b.take()
	b.mu.Unlock()

	if root == nil {
		clog.FromContext(ctx).Warn("Unable to add nodes to trace: root node not set")
		return
	}
	b.commit(ctx, nodes, *root)
}

// take hands over the collected nodes and resets the builder. b.mu must be
// held.
func (b *Builder) take() (map[uuid.UUID]*Node, *uuid.UUID) {
	nodes, root := b.nodes, b.root
	b.nodes = make(map[uuid.UUID]*Node)
	b.root = nil
	return nodes, root
}

// Node returns a copy of the node for runID.
func (b *Builder) Node(runID uuid.UUID) (*Node, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[runID]
	if !ok {
		return nil, false
	}
	return n.clone(), true
}

// Nodes returns copies of all nodes collected since the last commit.
func (b *Builder) Nodes() map[uuid.UUID]*Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[uuid.UUID]*Node, len(b.nodes))
	for id, n := range b.nodes {
		out[id] = n.clone()
	}
	return out
}

// Root returns a copy of the root node, if one has been started.
func (b *Builder) Root() (*Node, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.root == nil {
		return nil, false
	}
	n, ok := b.nodes[*b.root]
	if !ok {
		return nil, false
	}
	return n.clone(), true
}
