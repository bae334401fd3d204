package agent

import (
	"context"
	"fmt"
	"net/http"

	"docagent/internal/logging"
	"docagent/internal/registry"
)

type createSessionRequest struct {
	Name string `json:"name,omitempty"`
}

// CreateSession creates a durable workspace session on the Agent Service.
func (c *Client) CreateSession(ctx context.Context, name string) (registry.SessionInfo, error) {
	var info registry.SessionInfo
	if err := c.postJSON(ctx, c.endpoint("sessions"), createSessionRequest{Name: name}, &info); err != nil {
		return registry.SessionInfo{}, fmt.Errorf("create session: %w", err)
	}
	logging.API("created workspace session %s", info.ID)
	return info, nil
}

// ListSessions lists the workspace sessions known to the Agent Service.
func (c *Client) ListSessions(ctx context.Context) ([]registry.SessionInfo, error) {
	var out struct {
		Sessions []registry.SessionInfo `json:"sessions"`
	}
	if err := c.getJSON(ctx, c.endpoint("sessions"), &out); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out.Sessions, nil
}

// GetSession fetches one session with its persisted workspace state.
func (c *Client) GetSession(ctx context.Context, id string) (registry.SessionInfo, error) {
	var info registry.SessionInfo
	if err := c.getJSON(ctx, c.endpoint("sessions", id), &info); err != nil {
		return registry.SessionInfo{}, fmt.Errorf("get session: %w", err)
	}
	return info, nil
}

// SwitchSession activates a session server-side and returns its persisted
// state for rehydration.
func (c *Client) SwitchSession(ctx context.Context, id string) (registry.SessionInfo, error) {
	var info registry.SessionInfo
	if err := c.postJSON(ctx, c.endpoint("sessions", id, "activate"), nil, &info); err != nil {
		return registry.SessionInfo{}, fmt.Errorf("switch session: %w", err)
	}
	logging.API("switched to workspace session %s", id)
	return info, nil
}

// CloseSession closes a session on the Agent Service.
func (c *Client) CloseSession(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("sessions", id), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)
	if err := c.doJSON(req, nil); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	logging.API("closed workspace session %s", id)
	return nil
}
