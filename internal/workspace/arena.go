package workspace

import (
	"context"
	"sync"

	"docagent/internal/logging"
	"docagent/internal/protocol"
)

// Arena owns the one shared page collection for a workspace session.
// All merge operations are idempotent: applying the same batch twice yields
// the same collection as applying it once. Conflicting instructions from
// concurrent queries resolve last-applied-wins in arrival order; the
// authoritative workspace_state carried by later updates self-heals any
// divergence.
type Arena struct {
	mu sync.Mutex

	sessionID string
	pages     []*Page
	index     map[string]*Page
	resolver  *Resolver
}

// NewArena creates an empty arena for the given workspace session.
func NewArena(sessionID string, resolver *Resolver) *Arena {
	return &Arena{
		sessionID: sessionID,
		index:     make(map[string]*Page),
		resolver:  resolver,
	}
}

// SessionID returns the owning workspace session id.
func (a *Arena) SessionID() string {
	return a.sessionID
}

// Snapshot returns a deep copy of the current ordered collection.
func (a *Arena) Snapshot() []Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Page, 0, len(a.pages))
	for _, p := range a.pages {
		out = append(out, p.clone())
	}
	return out
}

// PageName resolves a page id to its display name, falling back to the raw
// id when the page is unknown or unnamed.
func (a *Arena) PageName(pageID string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.index[pageID]; ok && p.Name != "" {
		return p.Name
	}
	return pageID
}

// ApplyUpdate merges one workspace_update event into the collection.
func (a *Arena) ApplyUpdate(ctx context.Context, evt *protocol.Event) {
	switch evt.Action {
	case protocol.ActionAddPages:
		refs := evt.Pages
		for _, id := range evt.PageIDs {
			refs = append(refs, protocol.PageRef{PageID: id})
		}
		a.AddPages(ctx, refs)
	case protocol.ActionRemovePages:
		a.RemovePages(evt.PageIDs)
	case protocol.ActionHighlightPointers:
		a.HighlightPointers(ctx, evt.Pointers, evt.PointerIDs)
	case protocol.ActionPinPage:
		// Pins ride on the authoritative state below.
	default:
		logging.Workspace("ignoring unknown workspace action %q", evt.Action)
	}

	if evt.WorkspaceState != nil {
		a.ApplyState(*evt.WorkspaceState)
	}
}

// AddPages inserts or patches pages by id. Existing entries are patched in
// place; a populated field is never downgraded to empty. New entries have
// missing metadata resolved through the lookup collaborator and start with
// empty highlight/finding lists, unpinned.
func (a *Arena) AddPages(ctx context.Context, refs []protocol.PageRef) {
	for _, ref := range refs {
		if ref.PageID == "" {
			continue
		}

		a.mu.Lock()
		existing, ok := a.index[ref.PageID]
		a.mu.Unlock()

		if ok {
			a.mu.Lock()
			patchField(&existing.Name, ref.PageName)
			patchField(&existing.ImagePath, ref.PageImagePath)
			patchField(&existing.DisciplineID, ref.DisciplineID)
			a.mu.Unlock()
			continue
		}

		page := &Page{
			ID:           ref.PageID,
			Name:         ref.PageName,
			ImagePath:    ref.PageImagePath,
			DisciplineID: ref.DisciplineID,
		}
		if page.Name == "" || page.ImagePath == "" {
			// Lookup happens outside the arena lock; it may block on HTTP.
			if info, ok := a.resolver.Page(ctx, ref.PageID); ok {
				patchField(&page.Name, info.PageName)
				patchField(&page.ImagePath, info.ImagePath)
				patchField(&page.DisciplineID, info.DisciplineID)
			}
		}

		a.mu.Lock()
		// Re-check: a concurrent merge may have inserted it during lookup.
		if existing, ok := a.index[ref.PageID]; ok {
			patchField(&existing.Name, page.Name)
			patchField(&existing.ImagePath, page.ImagePath)
			patchField(&existing.DisciplineID, page.DisciplineID)
			a.mu.Unlock()
			continue
		}
		a.pages = append(a.pages, page)
		a.index[page.ID] = page
		a.mu.Unlock()

		logging.WorkspaceDebug("session %s: added page %s (%s)", a.sessionID, page.ID, page.Name)
	}
}

// RemovePages drops every page whose id is in the removal set. Removal is
// authoritative and ignores pin state.
func (a *Arena) RemovePages(pageIDs []string) {
	if len(pageIDs) == 0 {
		return
	}
	drop := make(map[string]bool, len(pageIDs))
	for _, id := range pageIDs {
		drop[id] = true
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.pages[:0]
	for _, p := range a.pages {
		if drop[p.ID] {
			delete(a.index, p.ID)
			logging.WorkspaceDebug("session %s: removed page %s", a.sessionID, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	a.pages = kept
}

// HighlightPointers appends highlight boxes for the given pointers,
// creating owning pages that are not yet present. A box whose rectangle
// already exists on the page is skipped.
func (a *Arena) HighlightPointers(ctx context.Context, refs []protocol.PointerRef, pointerIDs []string) {
	for _, id := range pointerIDs {
		if info, ok := a.resolver.Pointer(ctx, id); ok {
			refs = append(refs, protocol.PointerRef{
				PointerID:  info.ID,
				PageID:     info.PageID,
				Title:      info.Title,
				BBoxX:      info.BBoxX,
				BBoxY:      info.BBoxY,
				BBoxWidth:  info.BBoxWidth,
				BBoxHeight: info.BBoxHeight,
			})
		}
	}

	for _, ref := range refs {
		pageID := ref.PageID
		title := ref.Title
		if pageID == "" {
			info, ok := a.resolver.Pointer(ctx, ref.PointerID)
			if !ok {
				continue
			}
			pageID = info.PageID
			if title == "" {
				title = info.Title
			}
		}
		if pageID == "" {
			continue
		}

		a.AddPages(ctx, []protocol.PageRef{{PageID: pageID}})

		box := HighlightBox{
			X:      ref.BBoxX,
			Y:      ref.BBoxY,
			Width:  ref.BBoxWidth,
			Height: ref.BBoxHeight,
			Label:  title,
		}
		a.appendBox(pageID, box)
	}
}

// AddCodeBoxes merges page-scoped rectangles from a code_bboxes event.
// Degenerate (zero-area) boxes are filtered out. Wire boxes arrive as
// [x0,y0,x1,y1] corners and are stored as origin plus extent.
func (a *Arena) AddCodeBoxes(ctx context.Context, pageID string, boxes []protocol.CodeBBox) {
	if pageID == "" || len(boxes) == 0 {
		return
	}
	a.AddPages(ctx, []protocol.PageRef{{PageID: pageID}})

	for _, cb := range boxes {
		w := cb.BBox[2] - cb.BBox[0]
		h := cb.BBox[3] - cb.BBox[1]
		if w <= 0 || h <= 0 {
			continue
		}
		a.appendBox(pageID, HighlightBox{
			X:      cb.BBox[0],
			Y:      cb.BBox[1],
			Width:  w,
			Height: h,
			Label:  cb.Label,
		})
	}
}

func (a *Arena) appendBox(pageID string, box HighlightBox) {
	a.mu.Lock()
	defer a.mu.Unlock()
	page, ok := a.index[pageID]
	if !ok {
		return
	}
	for _, b := range page.Highlights {
		if b.SameRect(box) {
			return
		}
	}
	page.Highlights = append(page.Highlights, box)
}

// AddFinding appends a finding to a page, skipping exact duplicates.
func (a *Arena) AddFinding(pageID, finding string) {
	if finding == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	page, ok := a.index[pageID]
	if !ok {
		return
	}
	for _, f := range page.Findings {
		if f == finding {
			return
		}
	}
	page.Findings = append(page.Findings, finding)
}

// SetPageState records a page's sub-agent processing state, creating the
// entry if the page is not yet known.
func (a *Arena) SetPageState(ctx context.Context, pageID, pageName, state string) {
	if pageID == "" {
		return
	}
	a.AddPages(ctx, []protocol.PageRef{{PageID: pageID, PageName: pageName}})

	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.index[pageID]; ok {
		p.State = state
	}
}

// ApplyState applies an authoritative workspace state: pin flags are fully
// overwritten from the pinned set, and the collection is reordered to the
// supplied id list with locally-known pages not in the list appended after,
// order preserved.
func (a *Arena) ApplyState(state protocol.WorkspaceState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if state.PinnedPageIDs != nil {
		pinned := make(map[string]bool, len(state.PinnedPageIDs))
		for _, id := range state.PinnedPageIDs {
			pinned[id] = true
		}
		for _, p := range a.pages {
			p.Pinned = pinned[p.ID]
		}
	}

	if len(state.PageIDs) == 0 {
		return
	}
	reordered := make([]*Page, 0, len(a.pages))
	seen := make(map[string]bool, len(state.PageIDs))
	for _, id := range state.PageIDs {
		if p, ok := a.index[id]; ok && !seen[id] {
			reordered = append(reordered, p)
			seen[id] = true
		}
	}
	for _, p := range a.pages {
		if !seen[p.ID] {
			reordered = append(reordered, p)
		}
	}
	a.pages = reordered
}

// Hydrate rebuilds the collection from a persisted workspace state, used
// when loading or switching sessions. Metadata is resolved lazily through
// the lookup collaborator.
func (a *Arena) Hydrate(ctx context.Context, state protocol.WorkspaceState) {
	refs := make([]protocol.PageRef, 0, len(state.PageIDs))
	for _, id := range state.PageIDs {
		refs = append(refs, protocol.PageRef{PageID: id})
	}
	a.AddPages(ctx, refs)
	a.HighlightPointers(ctx, nil, state.PointerIDs)
	a.ApplyState(state)
}

// patchField overwrites dst with src when src is non-empty; a populated
// field never downgrades to empty.
func patchField(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
