package registry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"

	"docagent/internal/workspace"
)

func TestMain(m *testing.M) {
	// The resolver's TTL cache runs a background janitor for its lifetime.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"))
}

type testRig struct {
	registry *Registry
	streamer *fakeStreamer
	notifier *fakeNotifier
	store    *fakeSessionStore
	history  *fakeHistory
}

func newRig(t *testing.T, cfg Config) *testRig {
	t.Helper()
	rig := &testRig{
		streamer: newFakeStreamer(),
		notifier: newFakeNotifier(),
		store:    newFakeSessionStore(),
		history:  &fakeHistory{},
	}
	rig.registry = New(cfg, rig.streamer, rig.store, workspace.NewResolver(fakeLookup{}), rig.notifier, rig.history)
	if _, err := rig.registry.CreateSession(context.Background(), "test workspace"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return rig
}

// waitStatus polls until the query reaches the wanted status.
func (rig *testRig) waitStatus(t *testing.T, queryID string, want Status) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := rig.registry.Query(queryID); ok && v.Status == want {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	v, _ := rig.registry.Query(queryID)
	t.Fatalf("query %s never reached %s (now %s, err %q)", queryID, want, v.Status, v.ErrMsg)
	return View{}
}

func TestRegistry_SubmitRejectedWithoutSession(t *testing.T) {
	rig := newRig(t, DefaultConfig())
	if err := rig.registry.CloseSession(context.Background(), rig.registry.mustSessionID(t)); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}

	id, err := rig.registry.Submit("anything", ModeFast)
	if err != ErrNoActiveSession {
		t.Fatalf("expected ErrNoActiveSession, got id=%q err=%v", id, err)
	}
}

// mustSessionID is a test helper on Registry.
func (r *Registry) mustSessionID(t *testing.T) string {
	t.Helper()
	info, ok := r.ActiveSession()
	if !ok {
		t.Fatal("no active session")
	}
	return info.ID
}

func TestRegistry_ConcurrencyCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 3
	rig := newRig(t, cfg)

	var chans []chan []byte
	var ids []string
	for i := 0; i < 3; i++ {
		text := fmt.Sprintf("query %d", i)
		chans = append(chans, rig.streamer.expect(text))
		id, err := rig.registry.Submit(text, ModeFast)
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	// Fourth submission: no identifier, and the three records untouched.
	if id, err := rig.registry.Submit("query 3", ModeFast); err != ErrTooManyQueries {
		t.Fatalf("expected ErrTooManyQueries, got id=%q err=%v", id, err)
	}
	for _, id := range ids {
		if v, ok := rig.registry.Query(id); !ok || v.Status != StatusStreaming {
			t.Fatalf("existing query %s disturbed by rejected submit", id)
		}
	}

	// Complete one; a new submission now succeeds.
	chans[0] <- frame(`{"type":"done"}`)
	rig.waitStatus(t, ids[0], StatusComplete)

	ch4 := rig.streamer.expect("query 4")
	id4, err := rig.registry.Submit("query 4", ModeFast)
	if err != nil {
		t.Fatalf("submit after completion failed: %v", err)
	}
	ch4 <- frame(`{"type":"done"}`)
	rig.waitStatus(t, id4, StatusComplete)

	// Settle the rest so no stream goroutines outlive the test.
	for i := 1; i < 3; i++ {
		close(chans[i])
		rig.waitStatus(t, ids[i], StatusError)
	}
}

func TestRegistry_HappyPathAnswerAndToast(t *testing.T) {
	rig := newRig(t, DefaultConfig())
	ch := rig.streamer.expect("find the pump")

	id, err := rig.registry.Submit("find the pump", ModeDeep)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	ch <- frame(`{"type":"tool_call","tool":"search","input":{"q":"pump"}}`)
	ch <- frame(`{"type":"tool_result","tool":"search","result":["p1"]}`)
	ch <- frame(`{"type":"token","content":"The pump is on page 1."}`)
	ch <- frame(`{"type":"done","conceptName":"Pump room"}`)

	v := rig.waitStatus(t, id, StatusComplete)
	if v.Answer.Text != "The pump is on page 1." {
		t.Errorf("answer = %q", v.Answer.Text)
	}
	if v.Answer.Concept == nil || v.Answer.Concept.Name != "Pump room" {
		t.Errorf("concept payload missing: %+v", v.Answer.Concept)
	}

	completed, dismissed := rig.notifier.counts("toast-" + id)
	if completed != 1 || dismissed != 0 {
		t.Errorf("toast completed=%d dismissed=%d, want exactly one completion", completed, dismissed)
	}

	entries := rig.history.all()
	if len(entries) != 1 || entries[0].QueryID != id || entries[0].Status != StatusComplete {
		t.Errorf("history entry missing or wrong: %+v", entries)
	}
}

func TestRegistry_WorkspaceEventsMergeIntoSharedArena(t *testing.T) {
	rig := newRig(t, DefaultConfig())
	ch := rig.streamer.expect("highlight valves")

	id, err := rig.registry.Submit("highlight valves", ModeMed)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	ch <- frame(`{"type":"workspace_update","action":"add_pages","pages":[{"page_id":"p1","page_name":"Mechanical"}]}`)
	ch <- frame(`{"type":"workspace_update","action":"highlight_pointers","pointers":[{"pointer_id":"h1","page_id":"p1","title":"Valve","bbox_x":1,"bbox_y":2,"bbox_width":3,"bbox_height":4}]}`)
	ch <- frame(`{"type":"page_state","page_id":"p1","page_name":"Mechanical","state":"done"}`)
	ch <- frame(`{"type":"done"}`)

	v := rig.waitStatus(t, id, StatusComplete)
	if v.PageStates["p1"] != "done" {
		t.Errorf("page state not tracked: %+v", v.PageStates)
	}

	pages := rig.registry.WorkspacePages()
	if len(pages) != 1 || pages[0].ID != "p1" {
		t.Fatalf("arena pages = %+v", pages)
	}
	if pages[0].Name != "Mechanical" || len(pages[0].Highlights) != 1 || pages[0].State != "done" {
		t.Errorf("merged page incomplete: %+v", pages[0])
	}
}

func TestRegistry_Timeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueryTimeout = 30 * time.Millisecond
	rig := newRig(t, cfg)
	rig.streamer.expect("slow query") // never fed

	id, err := rig.registry.Submit("slow query", ModeFast)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	v := rig.waitStatus(t, id, StatusError)
	if v.ErrMsg == "" {
		t.Error("timeout must carry an error message")
	}

	// The toast is dismissed exactly once, even though the stream goroutine
	// also unwinds through its cancellation path.
	time.Sleep(50 * time.Millisecond)
	completed, dismissed := rig.notifier.counts("toast-" + id)
	if completed != 0 || dismissed != 1 {
		t.Errorf("toast completed=%d dismissed=%d, want exactly one dismissal", completed, dismissed)
	}

	entries := rig.history.all()
	if len(entries) != 1 || entries[0].Status != StatusError {
		t.Errorf("timeout should record exactly one error entry, got %+v", entries)
	}
}

func TestRegistry_StreamEndWithoutTerminalEvent(t *testing.T) {
	rig := newRig(t, DefaultConfig())

	// Case 1: events arrived, then the stream ended early.
	ch := rig.streamer.expect("truncated")
	id1, _ := rig.registry.Submit("truncated", ModeFast)
	ch <- frame(`{"type":"token","content":"partial"}`)
	close(ch)
	v1 := rig.waitStatus(t, id1, StatusError)
	if v1.ErrMsg != msgStreamEnded {
		t.Errorf("truncated stream message = %q", v1.ErrMsg)
	}

	// Case 2: the stream ended having delivered nothing.
	ch2 := rig.streamer.expect("empty")
	id2, _ := rig.registry.Submit("empty", ModeFast)
	close(ch2)
	v2 := rig.waitStatus(t, id2, StatusError)
	if v2.ErrMsg != msgNoEvents {
		t.Errorf("empty stream message = %q", v2.ErrMsg)
	}
}

func TestRegistry_TransportFailureIsolated(t *testing.T) {
	rig := newRig(t, DefaultConfig())

	chGood := rig.streamer.expect("healthy")
	rig.streamer.failWith("doomed", fmt.Errorf("connection refused"))

	idGood, _ := rig.registry.Submit("healthy", ModeFast)
	idBad, _ := rig.registry.Submit("doomed", ModeFast)

	rig.waitStatus(t, idBad, StatusError)

	// The healthy query is untouched and still completes.
	if v, _ := rig.registry.Query(idGood); v.Status != StatusStreaming {
		t.Fatalf("healthy query disturbed: %s", v.Status)
	}
	chGood <- frame(`{"type":"token","content":"fine"}`)
	chGood <- frame(`{"type":"done"}`)
	v := rig.waitStatus(t, idGood, StatusComplete)
	if v.Answer.Text != "fine" {
		t.Errorf("answer = %q", v.Answer.Text)
	}
}

func TestRegistry_ErrorEventSettlesQuery(t *testing.T) {
	rig := newRig(t, DefaultConfig())
	ch := rig.streamer.expect("bad query")

	id, _ := rig.registry.Submit("bad query", ModeFast)
	ch <- frame(`{"type":"error","message":"tool crashed"}`)

	v := rig.waitStatus(t, id, StatusError)
	if v.ErrMsg != "tool crashed" {
		t.Errorf("error message = %q", v.ErrMsg)
	}
}

func TestRegistry_AbortClearsFocusAndIsIdempotent(t *testing.T) {
	rig := newRig(t, DefaultConfig())
	rig.streamer.expect("focused query")

	id, _ := rig.registry.Submit("focused query", ModeFast)
	rig.registry.SetActive(id)
	if rig.registry.Active() != id {
		t.Fatal("focus not set")
	}

	rig.registry.Abort(id)
	if rig.registry.Active() != "" {
		t.Error("focus not cleared by abort")
	}
	if _, ok := rig.registry.Query(id); ok {
		t.Error("aborted record should be removed")
	}

	// No-ops: unknown id, repeated abort.
	rig.registry.Abort(id)
	rig.registry.Abort("no-such-query")

	_, dismissed := rig.notifier.counts("toast-" + id)
	if dismissed != 1 {
		t.Errorf("abort should dismiss the toast exactly once, got %d", dismissed)
	}
}

func TestRegistry_SnapshotSeededAtSubmission(t *testing.T) {
	rig := newRig(t, DefaultConfig())

	// Pre-populate the shared workspace through a first query.
	ch1 := rig.streamer.expect("seed")
	id1, _ := rig.registry.Submit("seed", ModeFast)
	ch1 <- frame(`{"type":"workspace_update","action":"add_pages","pages":[{"page_id":"p1","page_name":"A"}]}`)
	ch1 <- frame(`{"type":"done"}`)
	rig.waitStatus(t, id1, StatusComplete)

	ch2 := rig.streamer.expect("second")
	id2, _ := rig.registry.Submit("second", ModeFast)

	rig.registry.mu.Lock()
	snapshot := rig.registry.queries[id2].Snapshot
	rig.registry.mu.Unlock()
	if len(snapshot) != 1 || snapshot[0].ID != "p1" {
		t.Errorf("submission snapshot = %+v", snapshot)
	}

	ch2 <- frame(`{"type":"done"}`)
	rig.waitStatus(t, id2, StatusComplete)
}
