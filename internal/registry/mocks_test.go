package registry

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"docagent/internal/workspace"
)

// frame renders one SSE frame for a JSON event payload.
func frame(eventJSON string) []byte {
	return []byte("data: " + eventJSON + "\n\n")
}

// fakeConn is a scripted stream body. Chunks are fed through ch; closing
// ch ends the stream with EOF. Reads unblock when the query's context is
// cancelled, like an HTTP response body would.
type fakeConn struct {
	ch  chan []byte
	ctx context.Context
	buf []byte

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if len(c.buf) == 0 {
		select {
		case chunk, ok := <-c.ch:
			if !ok {
				return 0, io.EOF
			}
			c.buf = chunk
		case <-c.ctx.Done():
			return 0, c.ctx.Err()
		}
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// fakeStreamer hands out scripted connections keyed by query text.
type fakeStreamer struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	errs  map[string]error
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{
		conns: make(map[string]*fakeConn),
		errs:  make(map[string]error),
	}
}

// expect registers a scripted stream for a query text and returns the
// channel to feed chunks through.
func (f *fakeStreamer) expect(text string) chan []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan []byte, 16)
	f.conns[text] = &fakeConn{ch: ch}
	return ch
}

// failWith makes StreamQuery fail for a query text.
func (f *fakeStreamer) failWith(text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[text] = err
}

func (f *fakeStreamer) StreamQuery(ctx context.Context, _ string, message string, _ Mode) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[message]; ok {
		return nil, err
	}
	conn, ok := f.conns[message]
	if !ok {
		return nil, fmt.Errorf("no scripted stream for %q", message)
	}
	conn.ctx = ctx
	return conn, nil
}

// fakeNotifier counts toast transitions.
type fakeNotifier struct {
	mu        sync.Mutex
	added     int
	completed map[string]int
	dismissed map[string]int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		completed: make(map[string]int),
		dismissed: make(map[string]int),
	}
}

func (n *fakeNotifier) AddToast(_, ownerID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.added++
	return "toast-" + ownerID
}

func (n *fakeNotifier) MarkComplete(toastID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed[toastID]++
}

func (n *fakeNotifier) DismissToast(toastID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissed[toastID]++
}

func (n *fakeNotifier) counts(toastID string) (completed, dismissed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.completed[toastID], n.dismissed[toastID]
}

// fakeSessionStore serves in-memory sessions.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]SessionInfo
	nextID   int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]SessionInfo)}
}

func (s *fakeSessionStore) CreateSession(_ context.Context, name string) (SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	info := SessionInfo{ID: fmt.Sprintf("ws-%d", s.nextID), Name: name, CreatedAt: time.Now()}
	s.sessions[info.ID] = info
	return info, nil
}

func (s *fakeSessionStore) ListSessions(_ context.Context) ([]SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, info := range s.sessions {
		out = append(out, info)
	}
	return out, nil
}

func (s *fakeSessionStore) GetSession(_ context.Context, id string) (SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.sessions[id]
	if !ok {
		return SessionInfo{}, fmt.Errorf("session %s not found", id)
	}
	return info, nil
}

func (s *fakeSessionStore) SwitchSession(ctx context.Context, id string) (SessionInfo, error) {
	return s.GetSession(ctx, id)
}

func (s *fakeSessionStore) CloseSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// fakeLookup satisfies workspace.Lookup; every lookup fails, which the
// merge engine tolerates.
type fakeLookup struct{}

func (fakeLookup) LookupPage(context.Context, string) (workspace.PageInfo, error) {
	return workspace.PageInfo{}, fmt.Errorf("not found")
}

func (fakeLookup) LookupPointer(context.Context, string) (workspace.PointerInfo, error) {
	return workspace.PointerInfo{}, fmt.Errorf("not found")
}

// fakeHistory records entries in memory.
type fakeHistory struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

func (h *fakeHistory) Record(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
}

func (h *fakeHistory) all() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryEntry(nil), h.entries...)
}
