/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tracker

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"weak"

	"github.com/google/uuid"
)

// RequestIDer is implemented by LLM request or response values that carry a
// provider request id.
type RequestIDer interface {
	RequestID() string
}

// Namer is implemented by tools that have a name.
type Namer interface {
	Name() string
}

// CallIDExtractor derives an LLM call id from a request or response value.
// It returns false when it does not recognize the value.
type CallIDExtractor func(obj any) (string, bool)

// Option configures a Tracker.
type Option func(*Tracker)

// WithCallIDExtractor registers an extractor consulted by ResolveLLMCallID
// after stored ids and before the per-invocation call-id stack.
func WithCallIDExtractor(e CallIDExtractor) Option {
	return func(t *Tracker) { t.extractors = append(t.extractors, e) }
}

// Tracker correlates before/after callback pairs to run ids. It is safe for
// concurrent use; missing keys are never an error.
type Tracker struct {
	mu sync.Mutex

	runs              map[string]uuid.UUID            // invocation -> run
	agents            map[string]map[string]uuid.UUID // invocation -> agent name -> run
	llms              map[string]map[string]uuid.UUID // invocation -> call id -> run
	tools             map[string]map[string]uuid.UUID // invocation -> tool key -> run
	activeTools       map[string][]uuid.UUID          // session -> tool stack
	invocationSession map[string]string
	llmCallIDs        map[string][]string // invocation -> call id stack
	objectCallIDs     map[any]string      // weak.Pointer[T] -> call id

	extractors []CallIDExtractor
}

// New creates an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		runs:              make(map[string]uuid.UUID),
		agents:            make(map[string]map[string]uuid.UUID),
		llms:              make(map[string]map[string]uuid.UUID),
		tools:             make(map[string]map[string]uuid.UUID),
		activeTools:       make(map[string][]uuid.UUID),
		invocationSession: make(map[string]string),
		llmCallIDs:        make(map[string][]string),
		objectCallIDs:     make(map[any]string),
	}
	t.extractors = append(t.extractors, requestIDExtractor)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func requestIDExtractor(obj any) (string, bool) {
	r, ok := obj.(RequestIDer)
	if !ok {
		return "", false
	}
	id := r.RequestID()
	return id, id != ""
}

// RegisterRun records the run span of an invocation and the session it
// belongs to.
func (t *Tracker) RegisterRun(invocationID, sessionID string, runID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[invocationID] = runID
	t.invocationSession[invocationID] = sessionID
}

// GetRun returns the run id of an invocation without removing it.
func (t *Tracker) GetRun(invocationID string) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.runs[invocationID]
	return id, ok
}

// PopRun removes and returns the run id of an invocation.
func (t *Tracker) PopRun(invocationID string) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.invocationSession, invocationID)
	id, ok := t.runs[invocationID]
	delete(t.runs, invocationID)
	return id, ok
}

// RegisterAgent records the run id of an agent within an invocation.
func (t *Tracker) RegisterAgent(invocationID, agentName string, runID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	register(t.agents, invocationID, agentName, runID)
}

// GetAgent returns the run id of an agent without removing it.
func (t *Tracker) GetAgent(invocationID, agentName string) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.agents[invocationID][agentName]
	return id, ok
}

// PopAgent removes and returns the run id of an agent.
func (t *Tracker) PopAgent(invocationID, agentName string) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pop(t.agents, invocationID, agentName)
}

// RegisterLLM records the run id of an LLM call.
func (t *Tracker) RegisterLLM(invocationID, callID string, runID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	register(t.llms, invocationID, callID, runID)
}

// PopLLM removes and returns the run id of an LLM call.
func (t *Tracker) PopLLM(invocationID, callID string) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pop(t.llms, invocationID, callID)
}

// RegisterTool records the run id of a tool call.
func (t *Tracker) RegisterTool(invocationID, toolKey string, runID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	register(t.tools, invocationID, toolKey, runID)
}

// PopTool removes and returns the run id of a tool call.
func (t *Tracker) PopTool(invocationID, toolKey string) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return pop(t.tools, invocationID, toolKey)
}

// PopAllAgentsForInvocation removes every agent of an invocation.
func (t *Tracker) PopAllAgentsForInvocation(invocationID string) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return popAll(t.agents, invocationID)
}

// PopAllLLMsForInvocation removes every LLM call of an invocation.
func (t *Tracker) PopAllLLMsForInvocation(invocationID string) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return popAll(t.llms, invocationID)
}

// PopAllToolsForInvocation removes every tool call of an invocation and
// clears the whole active-tool stack of the invocation's session.
func (t *Tracker) PopAllToolsForInvocation(invocationID string) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if session, ok := t.invocationSession[invocationID]; ok && session != "" {
		delete(t.activeTools, session)
	}
	return popAll(t.tools, invocationID)
}

// SetActiveTool pushes a tool run onto the session's active-tool stack.
// Sub-invocations started by the tool nest under the top of this stack.
func (t *Tracker) SetActiveTool(sessionID string, runID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activeTools[sessionID] = append(t.activeTools[sessionID], runID)
}

// GetActiveTool returns the most recently pushed active tool of a session.
func (t *Tracker) GetActiveTool(sessionID string) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stack := t.activeTools[sessionID]
	if len(stack) == 0 {
		return uuid.Nil, false
	}
	return stack[len(stack)-1], true
}

// ClearActiveTool pops the session's active tool only if it is runID.
func (t *Tracker) ClearActiveTool(sessionID string, runID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stack := t.activeTools[sessionID]
	if len(stack) == 0 || stack[len(stack)-1] != runID {
		return
	}
	stack = stack[:len(stack)-1]
	if len(stack) == 0 {
		delete(t.activeTools, sessionID)
		return
	}
	t.activeTools[sessionID] = stack
}

// HasAnyActiveTools reports whether any session has an active tool.
func (t *Tracker) HasAnyActiveTools() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, stack := range t.activeTools {
		if len(stack) > 0 {
			return true
		}
	}
	return false
}

// SetCurrentLLMCallID pushes callID onto the invocation's call-id stack.
func (t *Tracker) SetCurrentLLMCallID(invocationID, callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.llmCallIDs[invocationID] = append(t.llmCallIDs[invocationID], callID)
}

// GetCurrentLLMCallID returns the top of the invocation's call-id stack.
func (t *Tracker) GetCurrentLLMCallID(invocationID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentLLMCallID(invocationID)
}

func (t *Tracker) currentLLMCallID(invocationID string) (string, bool) {
	stack := t.llmCallIDs[invocationID]
	if len(stack) == 0 {
		return "", false
	}
	return stack[len(stack)-1], true
}

// ClearCurrentLLMCallID pops the top of the invocation's call-id stack when
// it equals callID. An empty callID pops unconditionally.
func (t *Tracker) ClearCurrentLLMCallID(invocationID, callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stack := t.llmCallIDs[invocationID]
	if len(stack) == 0 {
		return
	}
	if callID == "" || stack[len(stack)-1] == callID {
		stack = stack[:len(stack)-1]
	}
	if len(stack) == 0 {
		delete(t.llmCallIDs, invocationID)
		return
	}
	t.llmCallIDs[invocationID] = stack
}

// ClearAllLLMCallIDsForInvocation drops the invocation's call-id stack.
func (t *Tracker) ClearAllLLMCallIDsForInvocation(invocationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.llmCallIDs, invocationID)
}

// StoreCallID associates callID with the identity of obj. The entry is
// dropped automatically once obj is garbage collected.
func StoreCallID[T any](t *Tracker, obj *T, callID string) {
	if obj == nil {
		return
	}
	key := weak.Make(obj)
	t.mu.Lock()
	_, existed := t.objectCallIDs[key]
	t.objectCallIDs[key] = callID
	t.mu.Unlock()

	if !existed {
		runtime.AddCleanup(obj, t.forget, any(key))
	}
}

func (t *Tracker) forget(key any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.objectCallIDs, key)
}

// GetStoredCallID returns the call id stored for obj.
func GetStoredCallID[T any](t *Tracker, obj *T) (string, bool) {
	if obj == nil {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.objectCallIDs[weak.Make(obj)]
	return id, ok
}

// ClearStoredCallID removes the call id stored for obj.
func ClearStoredCallID[T any](t *Tracker, obj *T) {
	if obj == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.objectCallIDs, weak.Make(obj))
}

// ResolveLLMCallID finds the call id for an LLM request or response. It
// tries, in order: the id stored for obj, the registered extractors (a
// RequestID method by default), the top of the invocation's call-id stack,
// and finally an id derived from the identity of obj.
func ResolveLLMCallID[T any](t *Tracker, obj *T, invocationID string) string {
	if id, ok := GetStoredCallID(t, obj); ok && id != "" {
		return id
	}
	if obj != nil {
		for _, extract := range t.extractors {
			if id, ok := safeExtract(extract, obj); ok {
				return id
			}
		}
	}
	if invocationID != "" {
		t.mu.Lock()
		id, ok := t.currentLLMCallID(invocationID)
		t.mu.Unlock()
		if ok {
			return id
		}
	}
	slog.Debug("LLM correlation: falling back to object identity", "type", fmt.Sprintf("%T", obj))
	return fmt.Sprintf("llm_%p", obj)
}

func safeExtract(extract CallIDExtractor, obj any) (id string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("Call id extractor panicked", "panic", fmt.Sprint(r))
			id, ok = "", false
		}
	}()
	id, ok = extract(obj)
	return id, ok && id != ""
}

// MakeToolKey builds a key unique to one tool value: its name (or
// "unknown") followed by its identity.
func MakeToolKey[T any](tool *T) string {
	name := "unknown"
	if n, ok := any(tool).(Namer); ok && tool != nil {
		if s := n.Name(); s != "" {
			name = s
		}
	}
	return fmt.Sprintf("%s_%p", name, tool)
}

// RunCount returns the number of registered runs.
func (t *Tracker) RunCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}

// AgentCount returns the number of registered agents.
func (t *Tracker) AgentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return count(t.agents)
}

// LLMCount returns the number of registered LLM calls.
func (t *Tracker) LLMCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return count(t.llms)
}

// ToolCount returns the number of registered tool calls.
func (t *Tracker) ToolCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return count(t.tools)
}

func register(m map[string]map[string]uuid.UUID, prefix, key string, runID uuid.UUID) {
	inner, ok := m[prefix]
	if !ok {
		inner = make(map[string]uuid.UUID)
		m[prefix] = inner
	}
	inner[key] = runID
}

func pop(m map[string]map[string]uuid.UUID, prefix, key string) (uuid.UUID, bool) {
	inner, ok := m[prefix]
	if !ok {
		return uuid.Nil, false
	}
	id, ok := inner[key]
	delete(inner, key)
	if len(inner) == 0 {
		delete(m, prefix)
	}
	return id, ok
}

func popAll(m map[string]map[string]uuid.UUID, prefix string) []uuid.UUID {
	inner := m[prefix]
	delete(m, prefix)
	out := make([]uuid.UUID, 0, len(inner))
	for _, id := range inner {
		out = append(out, id)
	}
	return out
}

func count(m map[string]map[string]uuid.UUID) int {
	n := 0
	for _, inner := range m {
		n += len(inner)
	}
	return n
}
