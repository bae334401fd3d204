package trace

import (
	"strings"

	"docagent/internal/protocol"
)

// FallbackAnswer is surfaced when a query completes with neither prose nor
// structured content.
const FallbackAnswer = "The agent completed without producing an answer."

// PageNamer resolves a page id to a display name, falling back to the raw
// id when unresolved. Satisfied by workspace.Arena.
type PageNamer interface {
	PageName(pageID string) string
}

// Finding is a structured finding annotated with its resolved page name.
type Finding struct {
	PageID   string `json:"page_id,omitempty"`
	PageName string `json:"page_name,omitempty"`
	Text     string `json:"text"`
}

// CrossRef is a structured cross-reference annotated with its resolved
// page name.
type CrossRef struct {
	PageID      string `json:"page_id,omitempty"`
	PageName    string `json:"page_name,omitempty"`
	Description string `json:"description"`
}

// Concept is the structured payload optionally accompanying a final answer.
type Concept struct {
	Name            string     `json:"name,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	Findings        []Finding  `json:"findings,omitempty"`
	CrossReferences []CrossRef `json:"cross_references,omitempty"`
	Gaps            []string   `json:"gaps,omitempty"`
}

func (c *Concept) empty() bool {
	return c.Name == "" && c.Summary == "" &&
		len(c.Findings) == 0 && len(c.CrossReferences) == 0 && len(c.Gaps) == 0
}

// Answer is the finalized result of a query.
type Answer struct {
	Text    string   `json:"text"`
	Concept *Concept `json:"concept,omitempty"`
}

// Finalize extracts the final answer from an accumulated trace and the
// terminal success event.
//
// The answer text is the concatenation, in trace order, of every reasoning
// step after the last tool_result; a trace with no tool_result contributes
// all of its reasoning content. When no reasoning survives, the versioned
// draft answer is used, then a structured-only rendering of the concept
// payload, then a fixed fallback - the answer is never left blank.
func Finalize(log *Log, done *protocol.Event, pages PageNamer) Answer {
	text := answerText(log)

	var concept *Concept
	if done != nil {
		concept = buildConcept(done, pages)
		if concept.empty() {
			concept = nil
		}
	}

	if text == "" {
		text = log.Draft
	}
	if text == "" && concept != nil {
		text = structuredText(concept)
	}
	if text == "" {
		text = FallbackAnswer
	}

	return Answer{Text: text, Concept: concept}
}

// answerText concatenates reasoning content after the last tool_result.
func answerText(log *Log) string {
	start := 0
	for i, step := range log.Steps {
		if step.Type == StepToolResult {
			start = i + 1
		}
	}

	var b strings.Builder
	for _, step := range log.Steps[start:] {
		if step.Type == StepReasoning {
			b.WriteString(step.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// buildConcept lifts the done event's structured fields, annotating
// findings and cross-references with resolved page names.
func buildConcept(done *protocol.Event, pages PageNamer) *Concept {
	c := &Concept{
		Name:    done.ConceptName,
		Summary: done.Summary,
		Gaps:    done.Gaps,
	}
	for _, f := range done.Findings {
		annotated := Finding{PageID: f.PageID, Text: f.Text}
		if f.PageID != "" && pages != nil {
			annotated.PageName = pages.PageName(f.PageID)
		}
		c.Findings = append(c.Findings, annotated)
	}
	for _, x := range done.CrossReferences {
		annotated := CrossRef{PageID: x.PageID, Description: x.Description}
		if x.PageID != "" && pages != nil {
			annotated.PageName = pages.PageName(x.PageID)
		}
		c.CrossReferences = append(c.CrossReferences, annotated)
	}
	return c
}

// structuredText renders a prose stand-in from structured content so a
// structured-only completion is never surfaced as an empty string.
func structuredText(c *Concept) string {
	if c.Summary != "" {
		return c.Summary
	}
	if c.Name != "" {
		return c.Name
	}
	var parts []string
	for _, f := range c.Findings {
		if f.Text != "" {
			parts = append(parts, f.Text)
		}
	}
	for _, x := range c.CrossReferences {
		if x.Description != "" {
			parts = append(parts, x.Description)
		}
	}
	parts = append(parts, c.Gaps...)
	return strings.Join(parts, " ")
}
