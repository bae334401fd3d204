package registry

import (
	"context"
	"sync/atomic"
	"time"

	"docagent/internal/trace"
	"docagent/internal/workspace"
)

// Mode selects how much effort the agent spends on a query.
type Mode string

const (
	ModeFast Mode = "fast"
	ModeMed  Mode = "med"
	ModeDeep Mode = "deep"
)

// Status is the lifecycle state of a query record.
type Status int32

const (
	StatusStreaming Status = iota
	StatusComplete
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStreaming:
		return "streaming"
	case StatusComplete:
		return "complete"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// AnnotatedImage is an agent-produced image attached to a query.
type AnnotatedImage struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

// QueryRecord is one in-flight or completed query. It is exclusively owned
// by the Registry; all mutation happens inside the registry's serialized
// event processing. A record transitions streaming -> complete or
// streaming -> error exactly once and is never resurrected.
type QueryRecord struct {
	ID        string
	Text      string
	Mode      Mode
	SessionID string
	StartedAt time.Time

	status int32 // atomic Status

	// Trace and derived fields, mutated one event at a time.
	Trace *trace.Log

	// Snapshot of the shared page collection at submission time. The
	// record never holds a private mutable copy of the live collection;
	// incremental updates land in the shared arena.
	Snapshot []workspace.Page

	// Answer is populated by the finalizer on a terminal success event.
	Answer trace.Answer

	// ErrMsg carries the human-readable failure reason for StatusError.
	ErrMsg string

	// PageStates tracks per-page sub-agent progress (queued/processing/done).
	PageStates map[string]string

	// Images holds annotated images attached by the agent.
	Images []AnnotatedImage

	LearningDone bool

	arena   *workspace.Arena
	toastID string
	cancel  context.CancelFunc
	timer   *time.Timer

	// released guards the exactly-once release of timer, cancel func and
	// toast.
	released bool
}

// Status returns the record's current lifecycle state.
func (q *QueryRecord) Status() Status {
	return Status(atomic.LoadInt32(&q.status))
}

func (q *QueryRecord) setStatus(s Status) {
	atomic.StoreInt32(&q.status, int32(s))
}

// View is an immutable copy of a record's caller-visible state.
type View struct {
	ID          string
	Text        string
	Mode        Mode
	SessionID   string
	Status      Status
	Preview     string
	CurrentTool string
	Answer      trace.Answer
	ErrMsg      string
	PageStates  map[string]string
	Learnings   []string
	StartedAt   time.Time
}

// view must be called with the registry lock held.
func (q *QueryRecord) view() View {
	v := View{
		ID:        q.ID,
		Text:      q.Text,
		Mode:      q.Mode,
		SessionID: q.SessionID,
		Status:    q.Status(),
		Answer:    q.Answer,
		ErrMsg:    q.ErrMsg,
		StartedAt: q.StartedAt,
	}
	if q.Trace != nil {
		v.Preview = q.Trace.Preview
		v.CurrentTool = q.Trace.CurrentTool
		v.Learnings = append(v.Learnings, q.Trace.Learnings...)
	}
	if len(q.PageStates) > 0 {
		v.PageStates = make(map[string]string, len(q.PageStates))
		for k, s := range q.PageStates {
			v.PageStates[k] = s
		}
	}
	return v
}
