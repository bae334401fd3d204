// Package protocol defines the streaming query wire protocol consumed by docagent.
// The Agent Service answers a query with a chunked stream of SSE-style frames
// ("data: <json>" lines separated by a blank line); each frame carries one
// event record discriminated on its "type" field.
package protocol

import "encoding/json"

// Event types emitted by the Agent Service.
const (
	EventToken          = "token"
	EventThinking       = "thinking"
	EventToolCall       = "tool_call"
	EventToolResult     = "tool_result"
	EventCodeExecution  = "code_execution"
	EventCodeResult     = "code_result"
	EventCodeBBoxes     = "code_bboxes"
	EventAnnotatedImage = "annotated_image"
	EventWorkspace      = "workspace_update"
	EventResponse       = "response_update"
	EventLearning       = "learning"
	EventPageState      = "page_state"
	EventDone           = "done"
	EventLearningDone   = "learning_done"
	EventError          = "error"
)

// Thinking panels.
const (
	PanelAssembly        = "assembly"
	PanelLearning        = "learning"
	PanelKnowledgeUpdate = "knowledge_update"
)

// Workspace update actions.
const (
	ActionAddPages          = "add_pages"
	ActionRemovePages       = "remove_pages"
	ActionHighlightPointers = "highlight_pointers"
	ActionPinPage           = "pin_page"
)

// Page states reported by page_state events.
const (
	PageStateQueued     = "queued"
	PageStateProcessing = "processing"
	PageStateDone       = "done"
)

// Event is one decoded stream event. Only the fields belonging to the
// event's Type are populated; everything else stays zero.
type Event struct {
	Type string `json:"type"`

	// token / thinking / code_execution / code_result
	Content        string `json:"content,omitempty"`
	Panel          string `json:"panel,omitempty"`
	Classification string `json:"classification,omitempty"`
	FileUpdated    string `json:"file_updated,omitempty"`

	// tool_call / tool_result. Older backends send tool input under
	// "arguments", newer ones under "input"; ToolInput() normalizes.
	Tool      string          `json:"tool,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`

	// code_bboxes / page_state
	PageID   string     `json:"page_id,omitempty"`
	PageName string     `json:"page_name,omitempty"`
	State    string     `json:"state,omitempty"`
	BBoxes   []CodeBBox `json:"bboxes,omitempty"`

	// annotated_image
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`

	// workspace_update
	Action         string          `json:"action,omitempty"`
	WorkspaceState *WorkspaceState `json:"workspace_state,omitempty"`
	PageIDs        []string        `json:"page_ids,omitempty"`
	PointerIDs     []string        `json:"pointer_ids,omitempty"`
	Pages          []PageRef       `json:"pages,omitempty"`
	Pointers       []PointerRef    `json:"pointers,omitempty"`

	// response_update / learning
	Text    string `json:"text,omitempty"`
	Version int    `json:"version,omitempty"`

	// done
	DisplayTitle      string     `json:"displayTitle,omitempty"`
	ConversationTitle string     `json:"conversationTitle,omitempty"`
	ConceptName       string     `json:"conceptName,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	Findings          []Finding  `json:"findings,omitempty"`
	CrossReferences   []CrossRef `json:"crossReferences,omitempty"`
	Gaps              []string   `json:"gaps,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// ToolInput returns the tool input payload regardless of which wire field
// carried it.
func (e *Event) ToolInput() json.RawMessage {
	if len(e.Input) > 0 {
		return e.Input
	}
	return e.Arguments
}

// Terminal reports whether this event ends the query's stream.
func (e *Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// CodeBBox is one rectangle reported by a code_bboxes event.
// BBox is [x0, y0, x1, y1] in page coordinates.
type CodeBBox struct {
	BBox  [4]float64 `json:"bbox"`
	Label string     `json:"label,omitempty"`
}

// PageRef is a page reference carried by an add_pages update.
type PageRef struct {
	PageID        string `json:"page_id"`
	PageName      string `json:"page_name,omitempty"`
	PageImagePath string `json:"page_image_path,omitempty"`
	DisciplineID  string `json:"discipline_id,omitempty"`
}

// PointerRef is a pointer reference carried by a highlight_pointers update.
type PointerRef struct {
	PointerID  string  `json:"pointer_id"`
	PageID     string  `json:"page_id,omitempty"`
	Title      string  `json:"title,omitempty"`
	BBoxX      float64 `json:"bbox_x"`
	BBoxY      float64 `json:"bbox_y"`
	BBoxWidth  float64 `json:"bbox_width"`
	BBoxHeight float64 `json:"bbox_height"`
}

// WorkspaceState is the authoritative view of a workspace session: the
// ordered displayed pages, the ordered highlighted pointers, and the set
// of pinned pages. When present on an update, the merge engine reorders
// its local collection to match.
type WorkspaceState struct {
	PageIDs       []string `json:"page_ids"`
	PointerIDs    []string `json:"highlighted_pointer_ids,omitempty"`
	PinnedPageIDs []string `json:"pinned_page_ids,omitempty"`
}

// Finding is one structured finding in a done event's concept payload.
type Finding struct {
	PageID string `json:"page_id,omitempty"`
	Text   string `json:"text"`
}

// CrossRef is one structured cross-reference in a done event's concept payload.
type CrossRef struct {
	PageID      string `json:"page_id,omitempty"`
	Description string `json:"description"`
}
