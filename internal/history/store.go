// Package history persists completed queries to a local SQLite database so
// past answers survive restarts.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"docagent/internal/logging"
	"docagent/internal/registry"
)

// Store implements registry.HistorySink on SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewStore opens (or creates) the history database at the given path.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.History("history store opened at %s", path)
	return store, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_history (
		query_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		text TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		answer TEXT,
		error TEXT,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_session ON query_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_history_started ON query_history(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record stores one settled query. Uses INSERT OR REPLACE so a retried
// record for the same query id is idempotent. Failures are logged, never
// surfaced: history must not disturb query processing.
func (s *Store) Record(entry registry.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO query_history
		 (query_id, session_id, text, mode, status, answer, error, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.QueryID, entry.SessionID, entry.Text, string(entry.Mode),
		entry.Status.String(), entry.Answer, entry.Error,
		entry.StartedAt.UTC().Format(time.RFC3339Nano), entry.Duration.Milliseconds(),
	)
	if err != nil {
		logging.Get(logging.CategoryHistory).Error("failed to record query %s: %v", entry.QueryID, err)
		return
	}
	logging.History("recorded query %s (%s)", entry.QueryID, entry.Status)
}

// List returns the most recent entries, newest first. A non-empty sessionID
// restricts the listing to one workspace session.
func (s *Store) List(sessionID string, limit int) ([]registry.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `SELECT query_id, session_id, text, mode, status, answer, error, started_at, duration_ms
	          FROM query_history`
	args := []interface{}{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []registry.HistoryEntry
	for rows.Next() {
		var e registry.HistoryEntry
		var mode, status, startedAt string
		var durationMs int64
		if err := rows.Scan(&e.QueryID, &e.SessionID, &e.Text, &mode, &status, &e.Answer, &e.Error, &startedAt, &durationMs); err != nil {
			continue
		}
		e.Mode = registry.Mode(mode)
		e.Status = parseStatus(status)
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func parseStatus(s string) registry.Status {
	switch s {
	case "complete":
		return registry.StatusComplete
	case "error":
		return registry.StatusError
	default:
		return registry.StatusStreaming
	}
}
