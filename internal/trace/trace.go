// Package trace builds the ordered, append-only event log for one query and
// derives its final answer. The accumulator is a pure fold over decoded
// events: deterministic, side-effect-free beyond the log and preview fields,
// so it can be driven synchronously in tests without a transport.
package trace

import (
	"encoding/json"

	"docagent/internal/protocol"
)

// StepType tags a trace step variant.
type StepType string

const (
	StepThinking      StepType = "thinking"
	StepReasoning     StepType = "reasoning"
	StepToolCall      StepType = "tool_call"
	StepToolResult    StepType = "tool_result"
	StepCodeExecution StepType = "code_execution"
	StepCodeResult    StepType = "code_result"
	StepCodeBBoxes    StepType = "code_bboxes"
)

// Step is one typed record in a query's trace. Steps are append-only and
// never reordered or deleted once appended.
type Step struct {
	Type  StepType `json:"type"`
	Panel string   `json:"panel,omitempty"`
	Text  string   `json:"text,omitempty"`

	Tool   string          `json:"tool,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`

	// Matched marks a tool_call step that has been paired with a result.
	// PairedCall is the index of the paired tool_call on a tool_result
	// step, -1 when no unmatched call of the same name preceded it.
	Matched    bool `json:"matched,omitempty"`
	PairedCall int  `json:"paired_call,omitempty"`

	PageID string             `json:"page_id,omitempty"`
	Boxes  []protocol.CodeBBox `json:"boxes,omitempty"`
}

// Log accumulates one query's trace and its UI-facing derived fields.
type Log struct {
	Steps []Step

	// Preview is the latest assembly-panel thinking or non-empty reasoning
	// content, whichever arrived last.
	Preview string

	// CurrentTool names the most recently issued tool call.
	CurrentTool string

	// Draft holds the highest-versioned response_update text seen so far.
	Draft        string
	DraftVersion int

	// Learnings accumulates learning-note text in arrival order.
	Learnings []string
}

// Apply folds one decoded event into the log. Events the accumulator does
// not own (workspace updates, terminal events, page states) are ignored
// here; the registry routes those to the merge engine and finalizer.
func (l *Log) Apply(evt *protocol.Event) {
	switch evt.Type {
	case protocol.EventThinking:
		panel := evt.Panel
		if panel == "" {
			panel = protocol.PanelAssembly
		}
		l.Steps = append(l.Steps, Step{Type: StepThinking, Panel: panel, Text: evt.Content})
		if panel == protocol.PanelAssembly && evt.Content != "" {
			l.Preview = evt.Content
		}

	case protocol.EventToken:
		l.appendReasoning(evt.Content)

	case protocol.EventToolCall:
		l.Steps = append(l.Steps, Step{Type: StepToolCall, Tool: evt.Tool, Input: evt.ToolInput()})
		l.CurrentTool = evt.Tool

	case protocol.EventToolResult:
		step := Step{Type: StepToolResult, Tool: evt.Tool, Result: evt.Result, PairedCall: -1}
		// Pair to the nearest preceding unmatched call of the same tool,
		// scanning backward: the most recently issued unmatched call wins.
		for i := len(l.Steps) - 1; i >= 0; i-- {
			if l.Steps[i].Type == StepToolCall && l.Steps[i].Tool == evt.Tool && !l.Steps[i].Matched {
				l.Steps[i].Matched = true
				step.PairedCall = i
				break
			}
		}
		l.Steps = append(l.Steps, step)

	case protocol.EventCodeExecution:
		l.Steps = append(l.Steps, Step{Type: StepCodeExecution, Text: evt.Content})

	case protocol.EventCodeResult:
		l.Steps = append(l.Steps, Step{Type: StepCodeResult, Text: evt.Content})

	case protocol.EventCodeBBoxes:
		l.Steps = append(l.Steps, Step{Type: StepCodeBBoxes, PageID: evt.PageID, Boxes: evt.BBoxes})

	case protocol.EventResponse:
		if evt.Version >= l.DraftVersion {
			l.Draft = evt.Text
			l.DraftVersion = evt.Version
		}

	case protocol.EventLearning:
		if evt.Text != "" {
			l.Learnings = append(l.Learnings, evt.Text)
		}
	}
}

// appendReasoning coalesces token text into the trailing reasoning step,
// appending a new step only when the last step is of another type.
func (l *Log) appendReasoning(text string) {
	if n := len(l.Steps); n > 0 && l.Steps[n-1].Type == StepReasoning {
		l.Steps[n-1].Text += text
		if l.Steps[n-1].Text != "" {
			l.Preview = l.Steps[n-1].Text
		}
		return
	}
	l.Steps = append(l.Steps, Step{Type: StepReasoning, Text: text})
	if text != "" {
		l.Preview = text
	}
}

// Clone returns a deep copy of the log, used to seed snapshot-and-replay
// checks and to hand completed traces out of the registry.
func (l *Log) Clone() *Log {
	cp := &Log{
		Preview:      l.Preview,
		CurrentTool:  l.CurrentTool,
		Draft:        l.Draft,
		DraftVersion: l.DraftVersion,
	}
	cp.Steps = append(cp.Steps, l.Steps...)
	cp.Learnings = append(cp.Learnings, l.Learnings...)
	return cp
}
