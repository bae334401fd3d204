// Package registry owns the set of concurrently running queries for the
// active workspace session: it enforces the concurrency ceiling and the
// per-query timeout, routes decoded stream events to each query's trace and
// to the shared workspace arena, and finalizes answers.
//
// All shared-state mutation is funneled through one mutex so that each
// event's processing (accumulate -> merge) is atomic with respect to every
// other event, whatever query it belongs to. Merges from concurrent queries
// therefore serialize in arrival order - last-applicable-write-wins.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"docagent/internal/logging"
	"docagent/internal/workspace"
)

// Recoverable submit rejections. Neither is an error state on any query.
var (
	ErrTooManyQueries  = errors.New("concurrent query limit reached")
	ErrNoActiveSession = errors.New("no active workspace session")
)

// Config bounds the registry's resource usage.
type Config struct {
	// MaxConcurrent is the ceiling on queries in streaming status.
	MaxConcurrent int

	// QueryTimeout is the per-query deadline, measured from submission.
	QueryTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 3,
		QueryTimeout:  90 * time.Second,
	}
}

// Registry coordinates concurrent queries against one shared workspace.
type Registry struct {
	mu sync.Mutex

	cfg      Config
	streamer Streamer
	notifier Notifier
	sessions SessionStore
	resolver *workspace.Resolver
	history  HistorySink

	queries map[string]*QueryRecord

	// arena is the shared page collection of the active workspace session.
	arena   *workspace.Arena
	session SessionInfo

	// active is the UI-focused query id, cleared when that query is aborted.
	active string
}

// New creates a registry. notifier and history may be nil; lookups flow
// through resolver into the shared arena.
func New(cfg Config, streamer Streamer, sessions SessionStore, resolver *workspace.Resolver, notifier Notifier, history HistorySink) *Registry {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	logging.Session("creating registry (max concurrent: %d, timeout: %s)", cfg.MaxConcurrent, cfg.QueryTimeout)

	return &Registry{
		cfg:      cfg,
		streamer: streamer,
		notifier: notifier,
		sessions: sessions,
		resolver: resolver,
		history:  history,
		queries:  make(map[string]*QueryRecord),
	}
}

// Submit allocates a query against the active workspace session and opens
// its stream. It returns the query id immediately without blocking on
// completion. Submission is rejected - no identifier, no state change -
// when no session is active or the concurrency ceiling is reached.
func (r *Registry) Submit(text string, mode Mode) (string, error) {
	r.mu.Lock()

	if r.arena == nil {
		r.mu.Unlock()
		return "", ErrNoActiveSession
	}
	if r.streamingCountLocked() >= r.cfg.MaxConcurrent {
		r.mu.Unlock()
		logging.Get(logging.CategorySession).Warn("submit rejected: %d queries already streaming", r.cfg.MaxConcurrent)
		return "", ErrTooManyQueries
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec := &QueryRecord{
		ID:         uuid.NewString(),
		Text:       text,
		Mode:       mode,
		SessionID:  r.arena.SessionID(),
		StartedAt:  time.Now(),
		Trace:      newTraceLog(),
		Snapshot:   r.arena.Snapshot(),
		PageStates: make(map[string]string),
		arena:      r.arena,
		cancel:     cancel,
	}
	rec.setStatus(StatusStreaming)
	if r.notifier != nil {
		rec.toastID = r.notifier.AddToast(text, rec.ID)
	}
	rec.timer = time.AfterFunc(r.cfg.QueryTimeout, func() {
		r.timeoutQuery(rec.ID)
	})

	r.queries[rec.ID] = rec
	r.mu.Unlock()

	logging.Session("submitted query %s (mode: %s): %s", rec.ID, mode, truncate(text))

	go r.consumeStream(ctx, rec)

	return rec.ID, nil
}

// Abort cancels a query's connection and timer, removes its record, and
// clears the UI focus if this query held it. Safe to call on unknown or
// already-completed ids.
func (r *Registry) Abort(queryID string) {
	r.mu.Lock()
	rec, ok := r.queries[queryID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.releaseLocked(rec, false)
	delete(r.queries, queryID)
	if r.active == queryID {
		r.active = ""
	}
	r.mu.Unlock()

	logging.Session("aborted query %s", queryID)
}

// timeoutQuery fires when a query's deadline passes before a terminal event
// was processed.
func (r *Registry) timeoutQuery(queryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.queries[queryID]
	if !ok || rec.Status() != StatusStreaming {
		return
	}
	logging.Get(logging.CategorySession).Warn("query %s timed out after %s", queryID, r.cfg.QueryTimeout)
	r.failLocked(rec, fmt.Sprintf("query timed out after %s", r.cfg.QueryTimeout))
}

// SetActive marks a query as UI-focused.
func (r *Registry) SetActive(queryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queries[queryID]; ok {
		r.active = queryID
	}
}

// Active returns the UI-focused query id, empty when none.
func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Query returns an immutable view of one query.
func (r *Registry) Query(queryID string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.queries[queryID]
	if !ok {
		return View{}, false
	}
	return rec.view(), true
}

// Queries returns views of all known queries.
func (r *Registry) Queries() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]View, 0, len(r.queries))
	for _, rec := range r.queries {
		out = append(out, rec.view())
	}
	return out
}

// StreamingCount returns the number of queries currently streaming.
func (r *Registry) StreamingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamingCountLocked()
}

func (r *Registry) streamingCountLocked() int {
	n := 0
	for _, rec := range r.queries {
		if rec.Status() == StatusStreaming {
			n++
		}
	}
	return n
}

// WorkspacePages returns a snapshot of the active session's shared page
// collection.
func (r *Registry) WorkspacePages() []workspace.Page {
	r.mu.Lock()
	arena := r.arena
	r.mu.Unlock()
	if arena == nil {
		return nil
	}
	return arena.Snapshot()
}

// CreateSession creates a durable workspace session and makes it active.
func (r *Registry) CreateSession(ctx context.Context, name string) (SessionInfo, error) {
	info, err := r.sessions.CreateSession(ctx, name)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("create session: %w", err)
	}
	r.adoptSession(ctx, info)
	return info, nil
}

// SwitchSession makes an existing session active and rehydrates the shared
// workspace view from its persisted state. In-flight queries keep merging
// into the arena of the session they were submitted against.
func (r *Registry) SwitchSession(ctx context.Context, id string) (SessionInfo, error) {
	info, err := r.sessions.SwitchSession(ctx, id)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("switch session: %w", err)
	}
	r.adoptSession(ctx, info)
	return info, nil
}

// ListSessions lists the durable workspace sessions.
func (r *Registry) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	return r.sessions.ListSessions(ctx)
}

// CloseSession closes a session; when it is the active one, the active
// workspace is cleared and further submissions are rejected until another
// session is adopted.
func (r *Registry) CloseSession(ctx context.Context, id string) error {
	if err := r.sessions.CloseSession(ctx, id); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	r.mu.Lock()
	if r.session.ID == id {
		r.arena = nil
		r.session = SessionInfo{}
	}
	r.mu.Unlock()
	return nil
}

// ActiveSession returns the active session info; ok is false when none.
func (r *Registry) ActiveSession() (SessionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.arena != nil
}

func (r *Registry) adoptSession(ctx context.Context, info SessionInfo) {
	arena := workspace.NewArena(info.ID, r.resolver)
	arena.Hydrate(ctx, info.State)

	r.mu.Lock()
	r.arena = arena
	r.session = info
	r.mu.Unlock()

	logging.Session("active workspace session: %s (%d pages)", info.ID, len(info.State.PageIDs))
}

func truncate(s string) string {
	const maxLen = 100
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
