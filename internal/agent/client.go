// Package agent is the HTTP client for the Agent Service: it opens the
// streaming query connection, manages workspace sessions, and resolves page
// and pointer metadata.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"docagent/internal/logging"
	"docagent/internal/registry"
)

// Config holds the Agent Service connection settings.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout applies to plain request/response calls. Streaming queries are
	// exempt; their lifetime is bounded by the caller's context.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults for a local Agent Service.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8420/api/v1",
		Timeout: 30 * time.Second,
	}
}

// Client talks to the Agent Service. It implements registry.Streamer,
// registry.SessionStore and workspace.Lookup.
type Client struct {
	baseURL string
	apiKey  string

	// httpClient serves bounded request/response calls; streamClient has no
	// client-side timeout so long streams are not cut mid-query.
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a client with default settings.
func NewClient(baseURL, apiKey string) *Client {
	config := DefaultConfig()
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	config.APIKey = apiKey
	return NewClientWithConfig(config)
}

// NewClientWithConfig creates a client with custom settings.
func NewClientWithConfig(config Config) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL:      config.BaseURL,
		apiKey:       config.APIKey,
		httpClient:   &http.Client{Timeout: config.Timeout},
		streamClient: &http.Client{},
	}
}

// StreamQuery opens the streaming connection for one query against a
// workspace session. The returned body delivers server-sent event frames
// until the agent finishes or ctx is cancelled.
func (c *Client) StreamQuery(ctx context.Context, sessionID, message string, mode registry.Mode) (io.ReadCloser, error) {
	payload, err := json.Marshal(queryRequest{Message: message, Mode: string(mode)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	endpoint := c.endpoint("sessions", sessionID, "query")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	logging.API("opening query stream for session %s (mode: %s)", sessionID, mode)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("query request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return resp.Body, nil
}

type queryRequest struct {
	Message string `json:"message"`
	Mode    string `json:"mode,omitempty"`
}

// getJSON performs a bounded GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)
	return c.doJSON(req, out)
}

// postJSON performs a bounded POST with a JSON body and decodes the JSON
// response into out; in and out may be nil.
func (c *Client) postJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found: %s", req.URL.Path)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) endpoint(parts ...string) string {
	s := c.baseURL
	for _, p := range parts {
		s += "/" + url.PathEscape(p)
	}
	return s
}
