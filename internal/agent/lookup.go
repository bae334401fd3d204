package agent

import (
	"context"
	"fmt"

	"docagent/internal/workspace"
)

// LookupPage fetches page metadata for workspace enrichment.
func (c *Client) LookupPage(ctx context.Context, pageID string) (workspace.PageInfo, error) {
	var info workspace.PageInfo
	if err := c.getJSON(ctx, c.endpoint("pages", pageID), &info); err != nil {
		return workspace.PageInfo{}, fmt.Errorf("lookup page %s: %w", pageID, err)
	}
	return info, nil
}

// LookupPointer fetches highlight pointer metadata.
func (c *Client) LookupPointer(ctx context.Context, pointerID string) (workspace.PointerInfo, error) {
	var info workspace.PointerInfo
	if err := c.getJSON(ctx, c.endpoint("pointers", pointerID), &info); err != nil {
		return workspace.PointerInfo{}, fmt.Errorf("lookup pointer %s: %w", pointerID, err)
	}
	return info, nil
}
