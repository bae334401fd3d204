package registry

import (
	"context"
	"io"
	"time"

	"docagent/internal/protocol"
)

// Streamer opens the long-lived streaming connection for one query.
// Implemented by the Agent Service client; tests substitute fakes.
type Streamer interface {
	// StreamQuery POSTs the query against the workspace session's query
	// endpoint and returns the raw response stream. The stream stops
	// producing when ctx is cancelled.
	StreamQuery(ctx context.Context, sessionID, message string, mode Mode) (io.ReadCloser, error)
}

// Notifier is the toast notification collaborator. All calls are
// fire-and-forget and must never block the core.
type Notifier interface {
	AddToast(text, ownerID string) string
	MarkComplete(toastID string)
	DismissToast(toastID string)
}

// SessionInfo describes one durable workspace session.
type SessionInfo struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name,omitempty"`
	State     protocol.WorkspaceState `json:"state"`
	CreatedAt time.Time               `json:"created_at,omitempty"`
}

// SessionStore is the workspace session lifecycle collaborator; storage is
// delegated to the Agent Service.
type SessionStore interface {
	CreateSession(ctx context.Context, name string) (SessionInfo, error)
	ListSessions(ctx context.Context) ([]SessionInfo, error)
	GetSession(ctx context.Context, id string) (SessionInfo, error)
	SwitchSession(ctx context.Context, id string) (SessionInfo, error)
	CloseSession(ctx context.Context, id string) error
}

// HistoryEntry is one completed query handed to the history sink.
type HistoryEntry struct {
	QueryID   string
	SessionID string
	Text      string
	Mode      Mode
	Status    Status
	Answer    string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// HistorySink records completed queries. Best-effort: failures are logged,
// never surfaced to the query.
type HistorySink interface {
	Record(entry HistoryEntry)
}
