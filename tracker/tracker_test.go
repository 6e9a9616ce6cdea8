/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tracker

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRunLifecycle(t *testing.T) {
	tr := New()
	run := uuid.New()
	tr.RegisterRun("inv", "sess", run)

	if got, ok := tr.GetRun("inv"); !ok || got != run {
		t.Errorf("GetRun() = %v, %v, wanted = %v, true", got, ok, run)
	}
	if got, wanted := tr.RunCount(), 1; got != wanted {
		t.Errorf("RunCount() = %d, wanted = %d", got, wanted)
	}
	if got, ok := tr.PopRun("inv"); !ok || got != run {
		t.Errorf("PopRun() = %v, %v, wanted = %v, true", got, ok, run)
	}
	// Popping again is a no-op.
	if got, ok := tr.PopRun("inv"); ok || got != uuid.Nil {
		t.Errorf("second PopRun() = %v, %v, wanted = uuid.Nil, false", got, ok)
	}
	if got := tr.RunCount(); got != 0 {
		t.Errorf("RunCount() = %d, wanted = 0", got)
	}
}

func TestAgentsLLMsTools(t *testing.T) {
	tr := New()
	a1, a2, l1, tool := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	tr.RegisterAgent("inv", "planner", a1)
	tr.RegisterAgent("inv", "writer", a2)
	tr.RegisterLLM("inv", "call-1", l1)
	tr.RegisterTool("inv", "search_0x1", tool)

	if got, wanted := tr.AgentCount(), 2; got != wanted {
		t.Errorf("AgentCount() = %d, wanted = %d", got, wanted)
	}
	if got, ok := tr.GetAgent("inv", "writer"); !ok || got != a2 {
		t.Errorf("GetAgent() = %v, %v, wanted = %v, true", got, ok, a2)
	}
	if got, ok := tr.PopAgent("inv", "planner"); !ok || got != a1 {
		t.Errorf("PopAgent() = %v, %v, wanted = %v, true", got, ok, a1)
	}
	if _, ok := tr.PopAgent("inv", "planner"); ok {
		t.Error("second PopAgent() found an entry")
	}
	if _, ok := tr.PopAgent("other", "planner"); ok {
		t.Error("PopAgent() on an unknown invocation found an entry")
	}
	if got, ok := tr.PopLLM("inv", "call-1"); !ok || got != l1 {
		t.Errorf("PopLLM() = %v, %v, wanted = %v, true", got, ok, l1)
	}
	if got, ok := tr.PopTool("inv", "search_0x1"); !ok || got != tool {
		t.Errorf("PopTool() = %v, %v, wanted = %v, true", got, ok, tool)
	}

	if got, wanted := []int{tr.AgentCount(), tr.LLMCount(), tr.ToolCount()}, []int{1, 0, 0}; !cmp.Equal(got, wanted) {
		t.Errorf("counts = %v, wanted = %v", got, wanted)
	}

	// Emptied sub-maps are removed.
	tr.PopAgent("inv", "writer")
	require.Empty(t, tr.agents)
	require.Empty(t, tr.llms)
	require.Empty(t, tr.tools)
}

func TestPopAllForInvocation(t *testing.T) {
	tr := New()
	tr.RegisterRun("inv", "sess", uuid.New())
	tools := []uuid.UUID{uuid.New(), uuid.New()}
	tr.RegisterTool("inv", "a", tools[0])
	tr.RegisterTool("inv", "b", tools[1])
	tr.SetActiveTool("sess", tools[0])
	tr.SetActiveTool("sess", tools[1])
	tr.RegisterAgent("inv", "x", uuid.New())
	tr.RegisterLLM("inv", "c", uuid.New())

	got := tr.PopAllToolsForInvocation("inv")
	if diff := cmp.Diff(tools, got, cmpUUIDSet()); diff != "" {
		t.Errorf("PopAllToolsForInvocation() mismatch (-want +got):\n%s", diff)
	}
	if tr.HasAnyActiveTools() {
		t.Error("HasAnyActiveTools() = true after clearing the invocation's tools")
	}
	if got := len(tr.PopAllAgentsForInvocation("inv")); got != 1 {
		t.Errorf("PopAllAgentsForInvocation() returned %d ids, wanted 1", got)
	}
	if got := len(tr.PopAllLLMsForInvocation("inv")); got != 1 {
		t.Errorf("PopAllLLMsForInvocation() returned %d ids, wanted 1", got)
	}
	if got := tr.PopAllToolsForInvocation("missing"); len(got) != 0 {
		t.Errorf("PopAllToolsForInvocation(missing) = %v, wanted empty", got)
	}
}

func TestActiveToolLIFO(t *testing.T) {
	tr := New()
	t1, t2 := uuid.New(), uuid.New()
	tr.SetActiveTool("s", t1)
	tr.SetActiveTool("s", t2)

	if got, _ := tr.GetActiveTool("s"); got != t2 {
		t.Errorf("GetActiveTool() = %v, wanted = %v", got, t2)
	}
	// Clearing a tool that is not on top does nothing.
	tr.ClearActiveTool("s", t1)
	if got, _ := tr.GetActiveTool("s"); got != t2 {
		t.Errorf("GetActiveTool() after mismatched clear = %v, wanted = %v", got, t2)
	}
	tr.ClearActiveTool("s", t2)
	if got, _ := tr.GetActiveTool("s"); got != t1 {
		t.Errorf("GetActiveTool() = %v, wanted = %v", got, t1)
	}
	tr.ClearActiveTool("s", t1)
	if _, ok := tr.GetActiveTool("s"); ok {
		t.Error("GetActiveTool() found a tool on an empty stack")
	}
	if tr.HasAnyActiveTools() {
		t.Error("HasAnyActiveTools() = true, wanted false")
	}
}

func TestLLMCallIDStack(t *testing.T) {
	tr := New()
	tr.SetCurrentLLMCallID("inv", "a")
	tr.SetCurrentLLMCallID("inv", "b")

	tr.ClearCurrentLLMCallID("inv", "a") // not on top
	if got, _ := tr.GetCurrentLLMCallID("inv"); got != "b" {
		t.Errorf("GetCurrentLLMCallID() = %q, wanted = %q", got, "b")
	}
	tr.ClearCurrentLLMCallID("inv", "")
	if got, _ := tr.GetCurrentLLMCallID("inv"); got != "a" {
		t.Errorf("GetCurrentLLMCallID() = %q, wanted = %q", got, "a")
	}
	tr.ClearCurrentLLMCallID("inv", "a")
	if _, ok := tr.GetCurrentLLMCallID("inv"); ok {
		t.Error("GetCurrentLLMCallID() found an id on an empty stack")
	}
	require.NotContains(t, tr.llmCallIDs, "inv")

	tr.SetCurrentLLMCallID("inv", "x")
	tr.SetCurrentLLMCallID("inv", "y")
	tr.ClearAllLLMCallIDsForInvocation("inv")
	if _, ok := tr.GetCurrentLLMCallID("inv"); ok {
		t.Error("ClearAllLLMCallIDsForInvocation() left ids behind")
	}
}

type request struct {
	id      string
	payload []string
}

func (r *request) RequestID() string { return r.id }

type response struct {
	text  string
	parts []string
}

func TestResolveLLMCallIDPriority(t *testing.T) {
	tr := New()

	// Stored ids win over everything.
	req := &request{id: "req-1"}
	StoreCallID(tr, req, "stored")
	tr.SetCurrentLLMCallID("inv", "stacked")
	if got, wanted := ResolveLLMCallID(tr, req, "inv"), "stored"; got != wanted {
		t.Errorf("ResolveLLMCallID(stored) = %q, wanted = %q", got, wanted)
	}

	// Then the request id.
	ClearStoredCallID(tr, req)
	if got, wanted := ResolveLLMCallID(tr, req, "inv"), "req-1"; got != wanted {
		t.Errorf("ResolveLLMCallID(request id) = %q, wanted = %q", got, wanted)
	}

	// Then the stack.
	resp := &response{text: "hi"}
	if got, wanted := ResolveLLMCallID(tr, resp, "inv"), "stacked"; got != wanted {
		t.Errorf("ResolveLLMCallID(stack) = %q, wanted = %q", got, wanted)
	}

	// Finally object identity, which is stable for the same value.
	got := ResolveLLMCallID(tr, resp, "")
	if !strings.HasPrefix(got, "llm_") {
		t.Errorf("ResolveLLMCallID(identity) = %q, wanted an llm_ prefix", got)
	}
	if again := ResolveLLMCallID(tr, resp, ""); again != got {
		t.Errorf("identity fallback is unstable: %q != %q", again, got)
	}
	if other := ResolveLLMCallID(tr, &response{}, ""); other == got {
		t.Errorf("distinct values resolved to the same id %q", other)
	}
}

func TestResolveLLMCallIDExtractor(t *testing.T) {
	tr := New(WithCallIDExtractor(func(obj any) (string, bool) {
		if r, ok := obj.(*response); ok && r.text != "" {
			return "ext-" + r.text, true
		}
		return "", false
	}), WithCallIDExtractor(func(any) (string, bool) {
		panic("broken extractor")
	}))

	if got, wanted := ResolveLLMCallID(tr, &response{text: "a"}, ""), "ext-a"; got != wanted {
		t.Errorf("ResolveLLMCallID() = %q, wanted = %q", got, wanted)
	}
	// A panicking extractor falls through to the identity fallback.
	if got := ResolveLLMCallID(tr, &response{}, ""); !strings.HasPrefix(got, "llm_") {
		t.Errorf("ResolveLLMCallID() = %q, wanted the identity fallback", got)
	}
	var nilResp *response
	if got, wanted := ResolveLLMCallID(tr, nilResp, ""), "llm_0x0"; got != wanted {
		t.Errorf("ResolveLLMCallID(nil) = %q, wanted = %q", got, wanted)
	}
}

func TestStoredCallIDDroppedAfterCollection(t *testing.T) {
	tr := New()
	func() {
		obj := &response{text: "transient", parts: make([]string, 8)}
		StoreCallID(tr, obj, "call")
		if got, ok := GetStoredCallID(tr, obj); !ok || got != "call" {
			t.Fatalf("GetStoredCallID() = %q, %v, wanted = call, true", got, ok)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		tr.mu.Lock()
		n := len(tr.objectCallIDs)
		tr.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("stored call id was not dropped after the value was collected")
}

type namedTool struct {
	name string
	params map[string]any
}

func (n *namedTool) Name() string { return n.name }

type anonymousTool struct {
	fn func()
}

func TestMakeToolKey(t *testing.T) {
	a := &namedTool{name: "search"}
	b := &namedTool{name: "search"}
	ka, kb := MakeToolKey(a), MakeToolKey(b)
	if !strings.HasPrefix(ka, "search_") {
		t.Errorf("MakeToolKey() = %q, wanted a search_ prefix", ka)
	}
	if ka == kb {
		t.Errorf("tools with the same name share key %q", ka)
	}
	if again := MakeToolKey(a); again != ka {
		t.Errorf("MakeToolKey() is unstable: %q != %q", again, ka)
	}
	if got := MakeToolKey(&anonymousTool{}); !strings.HasPrefix(got, "unknown_") {
		t.Errorf("MakeToolKey(anonymous) = %q, wanted an unknown_ prefix", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := New()
	const workers, perWorker = 16, 200

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv := fmt.Sprintf("inv-%d", w)
			for i := range perWorker {
				key := fmt.Sprintf("k-%d", i)
				id := uuid.New()
				tr.RegisterLLM(inv, key, id)
				tr.RegisterTool(inv, key, id)
				tr.SetActiveTool("shared", id)
				if got, ok := tr.PopLLM(inv, key); !ok || got != id {
					t.Errorf("PopLLM() = %v, %v, wanted = %v, true", got, ok, id)
				}
				tr.PopTool(inv, key)
			}
		}()
	}
	wg.Wait()

	if got, wanted := []int{tr.LLMCount(), tr.ToolCount()}, []int{0, 0}; !cmp.Equal(got, wanted) {
		t.Errorf("counts = %v, wanted = %v", got, wanted)
	}
	if got, wanted := len(tr.activeTools["shared"]), workers*perWorker; got != wanted {
		t.Errorf("active tools = %d, wanted = %d", got, wanted)
	}
}

func cmpUUIDSet() cmp.Option {
	return cmp.Transformer("set", func(in []uuid.UUID) map[uuid.UUID]bool {
		out := make(map[uuid.UUID]bool, len(in))
		for _, id := range in {
			out[id] = true
		}
		return out
	})
}
