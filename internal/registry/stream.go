package registry

import (
	"context"
	"fmt"
	"io"
	"time"

	"docagent/internal/logging"
	"docagent/internal/protocol"
	"docagent/internal/trace"
)

// Messages for the two flavors of protocol incompleteness, kept distinct so
// a caller can tell an empty response apart from a truncated one.
const (
	msgNoEvents     = "no events received from agent"
	msgStreamEnded  = "stream ended before completion"
	msgTransportFmt = "transport failed: %v"
)

func newTraceLog() *trace.Log {
	return &trace.Log{}
}

// consumeStream is the read loop for one query: read chunk, decode, fold
// events through the registry, repeat. It runs in its own goroutine; all
// state mutation happens inside processEvent under the registry lock.
func (r *Registry) consumeStream(ctx context.Context, rec *QueryRecord) {
	defer func() {
		// One query's panic must never take down another query's stream.
		if p := recover(); p != nil {
			logging.Get(logging.CategoryStream).Error("query %s: panic in stream processing: %v", rec.ID, p)
			r.fail(rec.ID, fmt.Sprintf("internal error: %v", p))
		}
	}()

	body, err := r.streamer.StreamQuery(ctx, rec.SessionID, rec.Text, rec.Mode)
	if err != nil {
		if ctx.Err() != nil {
			return // cancelled before the connection opened
		}
		r.fail(rec.ID, fmt.Sprintf(msgTransportFmt, err))
		return
	}
	defer body.Close()

	decoder := protocol.NewDecoder()
	buf := make([]byte, 32*1024)
	eventCount := 0

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, evt := range decoder.Decode(buf[:n]) {
				eventCount++
				if done := r.processEvent(ctx, rec, &evt); done {
					return
				}
			}
		}
		if readErr == io.EOF {
			for _, evt := range decoder.Flush() {
				eventCount++
				if done := r.processEvent(ctx, rec, &evt); done {
					return
				}
			}
			r.streamEnded(rec, eventCount)
			return
		}
		if readErr != nil {
			if ctx.Err() != nil {
				// User- or timeout-initiated cancellation: the status
				// transition already happened; nothing to surface here.
				return
			}
			r.fail(rec.ID, fmt.Sprintf(msgTransportFmt, readErr))
			return
		}
	}
}

// processEvent folds one decoded event into the query's trace and, for
// workspace-relevant events, into the shared arena. The registry lock is
// held for the whole step, making it atomic with respect to every other
// query's events. Returns true when stream processing should stop.
func (r *Registry) processEvent(ctx context.Context, rec *QueryRecord, evt *protocol.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Status() != StatusStreaming {
		// Timed out or aborted while this event was in flight; the record
		// is settled and later events are not applied.
		return true
	}

	logging.StreamDebug("query %s: event %s", rec.ID, evt.Type)

	switch evt.Type {
	case protocol.EventDone:
		r.finalizeLocked(rec, evt)
		return true

	case protocol.EventError:
		msg := evt.Message
		if msg == "" {
			msg = "agent reported an error"
		}
		r.failLocked(rec, msg)
		return true

	case protocol.EventWorkspace:
		rec.arena.ApplyUpdate(ctx, evt)

	case protocol.EventCodeBBoxes:
		rec.Trace.Apply(evt)
		rec.arena.AddCodeBoxes(ctx, evt.PageID, evt.BBoxes)

	case protocol.EventPageState:
		rec.PageStates[evt.PageID] = evt.State
		rec.arena.SetPageState(ctx, evt.PageID, evt.PageName, evt.State)

	case protocol.EventAnnotatedImage:
		rec.Images = append(rec.Images, AnnotatedImage{MimeType: evt.MimeType, Base64: evt.ImageBase64})

	case protocol.EventLearningDone:
		rec.LearningDone = true

	default:
		rec.Trace.Apply(evt)
	}
	return false
}

// streamEnded synthesizes an error when the transport ends without a
// terminal event, so a query is never left streaming forever.
func (r *Registry) streamEnded(rec *QueryRecord, eventCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.Status() != StatusStreaming {
		return
	}
	msg := msgStreamEnded
	if eventCount == 0 {
		msg = msgNoEvents
	}
	r.failLocked(rec, msg)
}

// finalizeLocked settles a query on its terminal success event.
func (r *Registry) finalizeLocked(rec *QueryRecord, done *protocol.Event) {
	rec.Answer = trace.Finalize(rec.Trace, done, rec.arena)
	rec.setStatus(StatusComplete)
	r.releaseLocked(rec, true)

	logging.Session("query %s complete in %s (%d steps)", rec.ID, time.Since(rec.StartedAt).Round(time.Millisecond), len(rec.Trace.Steps))
	r.recordHistoryLocked(rec)
}

// failLocked settles a query in error status. Idempotent: a settled record
// is never re-failed, so resources release exactly once.
func (r *Registry) failLocked(rec *QueryRecord, msg string) {
	if rec.Status() != StatusStreaming {
		return
	}
	rec.ErrMsg = msg
	rec.setStatus(StatusError)
	r.releaseLocked(rec, false)

	logging.Get(logging.CategorySession).Error("query %s failed: %s", rec.ID, msg)
	r.recordHistoryLocked(rec)
}

func (r *Registry) fail(queryID, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.queries[queryID]; ok {
		r.failLocked(rec, msg)
	}
}

// releaseLocked frees a query's timer, cancellation token and linked toast
// exactly once. completed selects between marking the toast done and
// dismissing it.
func (r *Registry) releaseLocked(rec *QueryRecord, completed bool) {
	if rec.released {
		return
	}
	rec.released = true

	if rec.timer != nil {
		rec.timer.Stop()
	}
	if rec.cancel != nil {
		rec.cancel()
	}
	if r.notifier != nil && rec.toastID != "" {
		if completed {
			r.notifier.MarkComplete(rec.toastID)
		} else {
			r.notifier.DismissToast(rec.toastID)
		}
	}
}

func (r *Registry) recordHistoryLocked(rec *QueryRecord) {
	if r.history == nil {
		return
	}
	r.history.Record(HistoryEntry{
		QueryID:   rec.ID,
		SessionID: rec.SessionID,
		Text:      rec.Text,
		Mode:      rec.Mode,
		Status:    rec.Status(),
		Answer:    rec.Answer.Text,
		Error:     rec.ErrMsg,
		StartedAt: rec.StartedAt,
		Duration:  time.Since(rec.StartedAt),
	})
}
