/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package adk

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/rungalileo/galileo-go/handlers/nodetree"
	"github.com/rungalileo/galileo-go/serialization"
	"github.com/rungalileo/galileo-go/tracker"
)

// Integration labels diagnostics produced by this package.
const Integration = "google_adk"

const (
	unknownSession = "unknown"
	unknownAgent   = "unknown"
	okStatus       = 200
	errorStatus    = 500
)

// Option configures a Plugin.
type Option func(*Plugin)

// WithTracker shares t with the plugin instead of a private tracker.
func WithTracker(t *tracker.Tracker) Option {
	return func(p *Plugin) { p.tracker = t }
}

// WithFlushOnEnd controls whether the logger is flushed after each root
// invocation. The default is true.
func WithFlushOnEnd(flush bool) Option {
	return func(p *Plugin) { p.flushOnEnd = flush }
}

// sessionSetter is implemented by loggers that group traces by session.
type sessionSetter interface {
	SetSessionID(string)
}

// Plugin observes runner callbacks and records one trace per root
// invocation: a workflow span for the invocation, agent spans beneath it,
// and LLM and tool spans beneath the agents. Invocations started by a tool
// nest under that tool. It is safe for concurrent use.
type Plugin struct {
	logger     nodetree.SpanLogger
	tracker    *tracker.Tracker
	flushOnEnd bool
	b          *nodetree.Builder

	mu             sync.Mutex
	currentSession string
	metadata       map[string]map[string]any // invocation -> custom metadata
	rootInvocation map[string]string         // session -> invocation carrying metadata
}

// New creates a Plugin logging into l.
func New(l nodetree.SpanLogger, opts ...Option) *Plugin {
	p := &Plugin{
		logger:         l,
		flushOnEnd:     true,
		metadata:       make(map[string]map[string]any),
		rootInvocation: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracker == nil {
		p.tracker = tracker.New()
	}
	p.b = nodetree.New(l,
		nodetree.WithIntegration(Integration),
		nodetree.WithFlushOnEnd(p.flushOnEnd))
	return p
}

// Tracker returns the tracker correlating callback pairs.
func (p *Plugin) Tracker() *tracker.Tracker { return p.tracker }

// Builder returns the node tree the plugin records into.
func (p *Plugin) Builder() *nodetree.Builder { return p.b }

func sessionOf(id string) string {
	if id == "" {
		return unknownSession
	}
	return id
}

// invocationOf returns id, generating one when the runtime left it empty.
func invocationOf(id *string, session string) string {
	if *id == "" {
		if session != unknownSession {
			*id = session + "_" + uuid.NewString()
		} else {
			*id = uuid.NewString()
		}
	}
	return *id
}

// rootSession returns the session spans are tracked under. Sub-invocations
// keep the session of the invocation that spawned them.
func (p *Plugin) rootSession(session string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentSession != "" {
		return p.currentSession
	}
	return session
}

func (p *Plugin) updateSession(session string, subInvocation bool) {
	if session == unknownSession {
		return
	}
	p.mu.Lock()
	if (p.currentSession != "" && subInvocation) || p.currentSession == session {
		p.mu.Unlock()
		return
	}
	p.currentSession = session
	p.mu.Unlock()

	if s, ok := p.logger.(sessionSetter); ok {
		s.SetSessionID(session)
	}
}

func (p *Plugin) storeMetadata(invocation, session string, md map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metadata[invocation] = md
	// Sub-invocations carry no metadata of their own.
	if len(md) > 0 {
		root := session
		if p.currentSession != "" {
			root = p.currentSession
		}
		p.rootInvocation[root] = invocation
	}
}

// invocationMetadata returns a copy of the invocation's custom metadata,
// falling back to that of the root invocation of its session.
func (p *Plugin) invocationMetadata(invocation, session string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if md := p.metadata[invocation]; len(md) > 0 {
		return maps.Clone(md)
	}
	root := session
	if p.currentSession != "" {
		root = p.currentSession
	}
	if inv, ok := p.rootInvocation[root]; ok {
		return maps.Clone(p.metadata[inv])
	}
	return map[string]any{}
}

func (p *Plugin) forgetMetadata(invocation string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.metadata, invocation)
}

func withMetadata(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}

func endParams(output any, status int) nodetree.Params {
	return nodetree.Params{
		nodetree.ParamOutput:     output,
		nodetree.ParamStatusCode: status,
	}
}

// OnUserMessage starts the invocation span. An invocation started while a
// tool of the current session is running is nested under that tool.
func (p *Plugin) OnUserMessage(ctx context.Context, ic *InvocationContext, msg *genai.Content) {
	session := sessionOf(ic.SessionID)
	invocation := invocationOf(&ic.InvocationID, session)

	p.mu.Lock()
	current := p.currentSession
	p.mu.Unlock()
	sub := false
	if current != "" {
		_, sub = p.tracker.GetActiveTool(current)
	}
	p.updateSession(session, sub)

	custom := maps.Clone(ic.CustomMetadata)
	p.storeMetadata(invocation, session, custom)

	var parent *uuid.UUID
	if id, ok := p.tracker.GetActiveTool(p.rootSession(session)); ok {
		parent = &id
	}

	agent := ic.AgentName
	if agent == "" {
		agent = "agent"
	}
	runID := uuid.New()
	p.b.StartNode(ctx, nodetree.Workflow, parent, runID, nodetree.Params{
		nodetree.ParamInput: text(msg),
		nodetree.ParamName:  fmt.Sprintf("invocation [%s]", agent),
		nodetree.ParamMetadata: withMetadata(map[string]any{
			"invocation_id": invocation,
			"session_id":    session,
		}, custom),
	})
	p.tracker.RegisterRun(invocation, session, runID)
}

// BeforeRun renames the invocation span after the agent the runner routed
// the message to.
func (p *Plugin) BeforeRun(ctx context.Context, ic *InvocationContext) {
	if ic.AgentName == "" {
		return
	}
	runID, ok := p.tracker.GetRun(ic.InvocationID)
	if !ok {
		return
	}
	node, ok := p.b.Node(runID)
	if !ok {
		return
	}
	md := withMetadata(node.Params.Metadata(), nil)
	md["adk_routed_agent"] = ic.AgentName
	p.b.Update(runID, nodetree.Params{
		nodetree.ParamName:     fmt.Sprintf("invocation [%s]", ic.AgentName),
		nodetree.ParamMetadata: md,
	})
	clog.FromContext(ctx).Debug("Invocation routed", "invocation_id", ic.InvocationID, "agent", ic.AgentName)
}

// AfterRun closes spans the runtime left open with status 500, then ends
// the invocation span with the final response. Ending a root invocation
// commits the trace.
func (p *Plugin) AfterRun(ctx context.Context, ic *InvocationContext) {
	invocation := ic.InvocationID
	p.endOpen(ctx, invocation, "", errorStatus)

	if runID, ok := p.tracker.PopRun(invocation); ok {
		p.b.EndNode(ctx, runID, endParams(finalOutput(ic.Events), okStatus))
	}
	p.forgetMetadata(invocation)
}

// endOpen ends every tool, LLM and agent span still registered for the
// invocation.
func (p *Plugin) endOpen(ctx context.Context, invocation, output string, status int) {
	for _, id := range p.tracker.PopAllToolsForInvocation(invocation) {
		p.b.EndNode(ctx, id, endParams(output, status))
	}
	for _, id := range p.tracker.PopAllLLMsForInvocation(invocation) {
		p.b.EndNode(ctx, id, endParams(nil, status))
	}
	p.tracker.ClearAllLLMCallIDsForInvocation(invocation)
	for _, id := range p.tracker.PopAllAgentsForInvocation(invocation) {
		p.b.EndNode(ctx, id, endParams(output, status))
	}
}

func agentName(cc *CallbackContext) string {
	if cc.AgentName == "" {
		return unknownAgent
	}
	return cc.AgentName
}

// BeforeAgent starts an agent span under its parent agent, or under the
// invocation span for the top-level agent.
func (p *Plugin) BeforeAgent(ctx context.Context, cc *CallbackContext) {
	session := sessionOf(cc.SessionID)
	invocation := invocationOf(&cc.InvocationID, session)
	name := agentName(cc)

	var parent *uuid.UUID
	if cc.ParentAgentName != "" {
		if id, ok := p.tracker.GetAgent(invocation, cc.ParentAgentName); ok {
			parent = &id
		}
	}
	if parent == nil {
		if id, ok := p.tracker.GetRun(invocation); ok {
			parent = &id
		}
	}

	input := text(cc.UserContent)
	if input == "" {
		input = "Agent invocation"
	}
	md := p.invocationMetadata(invocation, session)
	if cc.AgentName != "" {
		md["agent_name"] = cc.AgentName
	}

	runID := uuid.New()
	displayName := cc.AgentName
	if displayName == "" {
		displayName = "Agent"
	}
	p.b.StartNode(ctx, nodetree.Agent, parent, runID, nodetree.Params{
		nodetree.ParamInput:    input,
		nodetree.ParamName:     displayName,
		nodetree.ParamMetadata: md,
	})
	p.tracker.RegisterAgent(invocation, name, runID)
}

// AfterAgent ends the agent span with the agent's last event.
func (p *Plugin) AfterAgent(ctx context.Context, cc *CallbackContext) {
	runID, ok := p.tracker.PopAgent(cc.InvocationID, agentName(cc))
	if !ok {
		return
	}
	p.b.EndNode(ctx, runID, endParams(lastOutput(cc.Events), okStatus))
}

// BeforeModel starts an LLM span under the calling agent and pushes its
// call id so that the response can be matched to it.
func (p *Plugin) BeforeModel(ctx context.Context, cc *CallbackContext, req *LLMRequest) {
	session := sessionOf(cc.SessionID)
	invocation := invocationOf(&cc.InvocationID, session)

	var parent *uuid.UUID
	if id, ok := p.tracker.GetAgent(invocation, agentName(cc)); ok {
		parent = &id
	}

	params := nodetree.Params{
		nodetree.ParamInput:    messages(req.Contents...),
		nodetree.ParamName:     "llm",
		nodetree.ParamMetadata: p.invocationMetadata(invocation, session),
	}
	if req.Model != "" {
		params[nodetree.ParamModel] = req.Model
	}
	if req.Config != nil {
		if req.Config.Temperature != nil {
			params[nodetree.ParamTemperature] = float64(*req.Config.Temperature)
		}
		if t := tools(req.Config); len(t) > 0 {
			params[nodetree.ParamTools] = t
		}
	}

	runID := uuid.New()
	p.b.StartNode(ctx, nodetree.LLM, parent, runID, params)

	callID := tracker.ResolveLLMCallID(p.tracker, req, invocation)
	tracker.StoreCallID(p.tracker, req, callID)
	p.tracker.SetCurrentLLMCallID(invocation, callID)
	p.tracker.RegisterLLM(invocation, callID, runID)
}

// AfterModel ends the LLM span with the response and its token usage.
func (p *Plugin) AfterModel(ctx context.Context, cc *CallbackContext, resp *LLMResponse) {
	invocation := cc.InvocationID
	callID := tracker.ResolveLLMCallID(p.tracker, resp, invocation)
	if runID, ok := p.tracker.PopLLM(invocation, callID); ok {
		params := endParams(messages(resp.Content), okStatus)
		if u := resp.UsageMetadata; u != nil {
			params[nodetree.ParamNumInputTokens] = int64(u.PromptTokenCount)
			params[nodetree.ParamNumOutputTokens] = int64(u.CandidatesTokenCount)
			params[nodetree.ParamTotalTokens] = int64(u.TotalTokenCount)
		}
		p.b.EndNode(ctx, runID, params)
	} else {
		clog.FromContext(ctx).Debug("No LLM span for response", "invocation_id", invocation, "call_id", callID)
	}
	p.tracker.ClearCurrentLLMCallID(invocation, callID)
}

// OnModelError ends the LLM span with the error's status. Errors that abort
// the run (401, 403, 429) commit the partial trace immediately.
func (p *Plugin) OnModelError(ctx context.Context, cc *CallbackContext, req *LLMRequest, err error) {
	invocation := cc.InvocationID
	callID := tracker.ResolveLLMCallID(p.tracker, req, invocation)
	code := statusCode(err)

	runID, ok := p.tracker.PopLLM(invocation, callID)
	p.tracker.ClearCurrentLLMCallID(invocation, callID)
	tracker.ClearStoredCallID(p.tracker, req)
	if ok {
		p.b.EndNode(ctx, runID, endParams(nil, code))
	}

	if !isFatal(code) {
		return
	}
	clog.FromContext(ctx).Warn("Fatal model error, committing partial trace",
		"invocation_id", invocation, "status_code", code, "error", err)
	output := fmt.Sprintf("Error: %v", err)
	p.endOpen(ctx, invocation, output, code)
	if runID, ok := p.tracker.PopRun(invocation); ok {
		p.b.EndNode(ctx, runID, endParams(output, code))
	}
}

// BeforeTool starts a tool span under the calling agent, else under the
// invocation, else under the active tool of the root session, and marks it
// as the session's active tool.
func (p *Plugin) BeforeTool(ctx context.Context, tool *Tool, args map[string]any, tc *ToolContext) {
	session := sessionOf(tc.SessionID)
	invocation := invocationOf(&tc.InvocationID, session)
	root := p.rootSession(session)

	var parent *uuid.UUID
	if tc.AgentName != "" {
		if id, ok := p.tracker.GetAgent(invocation, tc.AgentName); ok {
			parent = &id
		}
	}
	if parent == nil {
		if id, ok := p.tracker.GetRun(invocation); ok {
			parent = &id
		}
	}
	if parent == nil {
		if id, ok := p.tracker.GetActiveTool(root); ok {
			parent = &id
		}
	}

	name := tool.Name()
	if name == "" {
		name = "unknown_tool"
	}
	params := nodetree.Params{
		nodetree.ParamInput:    serialization.ToString(args),
		nodetree.ParamName:     name,
		nodetree.ParamMetadata: p.invocationMetadata(invocation, session),
	}
	if tc.FunctionCallID != "" {
		params[nodetree.ParamToolCallID] = tc.FunctionCallID
	}

	runID := uuid.New()
	p.b.StartNode(ctx, nodetree.Tool, parent, runID, params)
	p.tracker.RegisterTool(invocation, tracker.MakeToolKey(tool), runID)
	p.tracker.SetActiveTool(root, runID)
}

// AfterTool ends the tool span with its result.
func (p *Plugin) AfterTool(ctx context.Context, tool *Tool, tc *ToolContext, result map[string]any) {
	p.endTool(ctx, tool, tc, result, okStatus)
}

// OnToolError ends the tool span with the error and returns the response
// the agent should see in place of the tool result.
func (p *Plugin) OnToolError(ctx context.Context, tool *Tool, tc *ToolContext, err error) map[string]any {
	resp := map[string]any{"error": err.Error()}
	p.endTool(ctx, tool, tc, resp, statusCode(err))
	return resp
}

func (p *Plugin) endTool(ctx context.Context, tool *Tool, tc *ToolContext, result any, status int) {
	runID, ok := p.tracker.PopTool(tc.InvocationID, tracker.MakeToolKey(tool))
	if !ok {
		clog.FromContext(ctx).Debug("No tool span to end", "invocation_id", tc.InvocationID, "tool", tool.Name())
		return
	}
	p.b.EndNode(ctx, runID, endParams(serialization.ToString(result), status))
	p.tracker.ClearActiveTool(p.rootSession(sessionOf(tc.SessionID)), runID)
}
