package protocol

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func decodeAll(t *testing.T, chunks ...[]byte) []Event {
	t.Helper()
	d := NewDecoder()
	var events []Event
	for _, c := range chunks {
		events = append(events, d.Decode(c)...)
	}
	return append(events, d.Flush()...)
}

func TestDecoder_TwoFramesOneChunk(t *testing.T) {
	input := []byte("data: {\"type\":\"token\",\"content\":\"Hello\"}\n\n" +
		"data: {\"type\":\"done\",\"summary\":\"ok\"}\n\n")

	events := decodeAll(t, input)
	want := []Event{
		{Type: EventToken, Content: "Hello"},
		{Type: EventDone, Summary: "ok"},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

// Splitting the same byte sequence at every possible offset must yield the
// identical ordered event list: splits can land mid-tag, mid-JSON, and
// mid-blank-line.
func TestDecoder_ChunkBoundaryIndependence(t *testing.T) {
	input := []byte("data: {\"type\":\"tool_call\",\"tool\":\"search\",\"input\":{\"q\":\"pump\"}}\n\n" +
		"data: {\"type\":\"thinking\",\"panel\":\"assembly\",\"content\":\"looking\"}\n\n")

	want := decodeAll(t, input)
	if len(want) != 2 {
		t.Fatalf("expected 2 events from unsplit input, got %d", len(want))
	}

	for off := 1; off < len(input); off++ {
		got := decodeAll(t, input[:off], input[off:])
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("split at offset %d diverged (-want +got):\n%s", off, diff)
		}
	}
}

func TestDecoder_MalformedFrameSkipped(t *testing.T) {
	input := []byte("data: {not json at all\n\n" +
		"data: {\"type\":\"token\",\"content\":\"after\"}\n\n")

	events := decodeAll(t, input)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Content != "after" {
		t.Errorf("expected event after malformed frame, got %+v", events[0])
	}
}

func TestDecoder_FlushPartialFinalFrame(t *testing.T) {
	// Final frame has no terminating blank line; end-of-stream flush must
	// still surface it.
	d := NewDecoder()
	events := d.Decode([]byte("data: {\"type\":\"error\",\"message\":\"boom\"}"))
	if len(events) != 0 {
		t.Fatalf("unterminated frame emitted early: %+v", events)
	}
	events = d.Flush()
	if len(events) != 1 || events[0].Type != EventError || events[0].Message != "boom" {
		t.Fatalf("flush did not recover final frame: %+v", events)
	}
	// Flush drains: a second call returns nothing.
	if extra := d.Flush(); len(extra) != 0 {
		t.Errorf("second flush redelivered events: %+v", extra)
	}
}

func TestDecoder_IgnoresNonDataLinesAndCRLF(t *testing.T) {
	input := []byte("event: message\r\ndata: {\"type\":\"token\",\"content\":\"hi\"}\r\n\n" +
		": keepalive comment\n\n")

	events := decodeAll(t, input)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Content != "hi" {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestDecoder_WorkspaceUpdatePayload(t *testing.T) {
	input := []byte(`data: {"type":"workspace_update","action":"highlight_pointers","pointers":[{"pointer_id":"h1","page_id":"p9","title":"Valve","bbox_x":1,"bbox_y":2,"bbox_width":10,"bbox_height":20}],"workspace_state":{"page_ids":["p9"],"pinned_page_ids":[]}}` + "\n\n")

	events := decodeAll(t, input)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.Action != ActionHighlightPointers {
		t.Errorf("action = %q", evt.Action)
	}
	if len(evt.Pointers) != 1 || evt.Pointers[0].PageID != "p9" || evt.Pointers[0].BBoxHeight != 20 {
		t.Errorf("pointer payload mismatch: %+v", evt.Pointers)
	}
	if evt.WorkspaceState == nil || len(evt.WorkspaceState.PageIDs) != 1 {
		t.Errorf("workspace state missing: %+v", evt.WorkspaceState)
	}
}

func TestEvent_ToolInputNormalization(t *testing.T) {
	legacy := Event{Arguments: []byte(`{"q":1}`)}
	if string(legacy.ToolInput()) != `{"q":1}` {
		t.Errorf("arguments field not used: %s", legacy.ToolInput())
	}
	modern := Event{Arguments: []byte(`{"old":1}`), Input: []byte(`{"new":1}`)}
	if string(modern.ToolInput()) != `{"new":1}` {
		t.Errorf("input field should win: %s", modern.ToolInput())
	}
}
