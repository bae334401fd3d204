package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"docagent/internal/logging"
)

// Decoder turns an incoming byte stream into discrete events, tolerant of
// arbitrary chunk boundaries. Frames may be split anywhere - mid-tag,
// mid-JSON, mid-blank-line - and are only emitted once syntactically
// complete, so no event is delivered twice and none is dropped.
//
// A Decoder is single-stream; create one per query connection.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder returns a decoder with an empty carry-over buffer.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode appends chunk to the carry-over buffer and returns every event
// whose frame is now complete. The unterminated remainder stays buffered
// for the next chunk.
func (d *Decoder) Decode(chunk []byte) []Event {
	d.buf.Write(chunk)

	var events []Event
	for {
		raw := d.buf.Bytes()
		idx := bytes.Index(raw, []byte("\n\n"))
		if idx < 0 {
			break
		}
		frame := make([]byte, idx)
		copy(frame, raw[:idx])
		d.buf.Next(idx + 2)

		if evt, ok := parseFrame(frame); ok {
			events = append(events, evt)
		}
	}
	return events
}

// Flush drains the carry-over buffer at end-of-stream, attempting any
// remaining content as a best-effort final frame.
func (d *Decoder) Flush() []Event {
	if d.buf.Len() == 0 {
		return nil
	}
	frame := d.buf.Bytes()
	defer d.buf.Reset()

	if evt, ok := parseFrame(frame); ok {
		return []Event{evt}
	}
	return nil
}

// parseFrame extracts the data payload from one frame and unmarshals it.
// Frames whose payload is not valid JSON are dropped; a bad frame is never
// fatal to the stream.
func parseFrame(frame []byte) (Event, bool) {
	var payload strings.Builder
	for _, line := range strings.Split(string(frame), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			// Other SSE tags (event:, id:, retry:) and comments are ignored.
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if payload.Len() > 0 {
			payload.WriteByte('\n')
		}
		payload.WriteString(data)
	}

	if payload.Len() == 0 {
		return Event{}, false
	}

	var evt Event
	if err := json.Unmarshal([]byte(payload.String()), &evt); err != nil {
		logging.ProtocolDebug("dropping malformed frame: %v", err)
		return Event{}, false
	}
	if evt.Type == "" {
		logging.ProtocolDebug("dropping frame without type discriminator")
		return Event{}, false
	}
	return evt, true
}
