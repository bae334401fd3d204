// Package workspace maintains the shared page/pointer collection for one
// workspace session. Every concurrently running query merges its updates
// into the same arena; merges are serialized one event at a time, so the
// result of N concurrent queries is their batches applied in arrival order.
package workspace

// HighlightBox is a labeled rectangular region of interest on a page.
// Two boxes with the same coordinates are the same box - identity for
// de-duplication is the coordinate 4-tuple, not an id.
type HighlightBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label,omitempty"`
}

// SameRect reports whether two boxes cover the identical rectangle.
func (b HighlightBox) SameRect(o HighlightBox) bool {
	return b.X == o.X && b.Y == o.Y && b.Width == o.Width && b.Height == o.Height
}

// Page is one entry in the shared workspace collection, unique by ID.
type Page struct {
	ID           string         `json:"id"`
	Name         string         `json:"name,omitempty"`
	ImagePath    string         `json:"image_path,omitempty"`
	DisciplineID string         `json:"discipline_id,omitempty"`
	State        string         `json:"state,omitempty"`
	Pinned       bool           `json:"pinned"`
	Highlights   []HighlightBox `json:"highlights,omitempty"`
	Findings     []string       `json:"findings,omitempty"`
}

// clone returns a deep copy; snapshots handed to query records must not
// alias the arena's slices.
func (p *Page) clone() Page {
	cp := *p
	if len(p.Highlights) > 0 {
		cp.Highlights = append([]HighlightBox(nil), p.Highlights...)
	}
	if len(p.Findings) > 0 {
		cp.Findings = append([]string(nil), p.Findings...)
	}
	return cp
}

// PageInfo is the lookup collaborator's answer for a page id.
type PageInfo struct {
	PageID       string `json:"pageId"`
	PageName     string `json:"pageName"`
	ImagePath    string `json:"pageImagePath"`
	DisciplineID string `json:"disciplineId"`
}

// PointerInfo is the lookup collaborator's answer for a pointer id.
type PointerInfo struct {
	ID         string  `json:"id"`
	PageID     string  `json:"pageId"`
	Title      string  `json:"title"`
	BBoxX      float64 `json:"bboxX"`
	BBoxY      float64 `json:"bboxY"`
	BBoxWidth  float64 `json:"bboxWidth"`
	BBoxHeight float64 `json:"bboxHeight"`
}
