package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bridgefund/internal/pipeline"
	"bridgefund/internal/projects"
	"bridgefund/internal/research"
)

// PlanResponse is the wire form of a pipeline response. Data is decoded by
// the caller according to the stage requested.
type PlanResponse struct {
	OK       bool            `json:"ok"`
	Data     json.RawMessage `json:"data,omitempty"`
	Warning  string          `json:"warning,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Error    string          `json:"error,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
	Fallback bool            `json:"fallback,omitempty"`
}

// API is the server surface the planner drives.
type API interface {
	// Plan returns the decoded response for any status the server answers
	// with; err is reserved for transport and decoding failures.
	Plan(ctx context.Context, req pipeline.Request) (*PlanResponse, error)
	SaveDraft(ctx context.Context, req projects.SaveDraftRequest) (projects.SaveResult, error)
	Publish(ctx context.Context, req projects.PublishRequest) (projects.SaveResult, error)
	Research(ctx context.Context, claims []string) ([]research.Source, error)
}

// HTTPClient implements API against a running bridgefund server.
type HTTPClient struct {
	baseURL    string
	userID     string
	userHeader string
	httpClient *http.Client
}

// NewHTTPClient creates a client for baseURL. userID, when set, is sent in
// the identity header the way the upstream provider would.
func NewHTTPClient(baseURL, userID string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		userHeader: "X-User-Id",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Plan calls POST /api/ai/plan.
func (c *HTTPClient) Plan(ctx context.Context, req pipeline.Request) (*PlanResponse, error) {
	var out PlanResponse
	if _, err := c.post(ctx, "/api/ai/plan", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type saveResponse struct {
	OK      bool   `json:"ok"`
	Created bool   `json:"created"`
	Updated bool   `json:"updated"`
	Error   string `json:"error"`
}

// SaveDraft calls POST /api/projects/save-draft.
func (c *HTTPClient) SaveDraft(ctx context.Context, req projects.SaveDraftRequest) (projects.SaveResult, error) {
	return c.save(ctx, "/api/projects/save-draft", req)
}

// Publish calls POST /api/projects/publish.
func (c *HTTPClient) Publish(ctx context.Context, req projects.PublishRequest) (projects.SaveResult, error) {
	return c.save(ctx, "/api/projects/publish", req)
}

func (c *HTTPClient) save(ctx context.Context, path string, req any) (projects.SaveResult, error) {
	var out saveResponse
	status, err := c.post(ctx, path, req, &out)
	if err != nil {
		return projects.SaveResult{}, err
	}
	if status != http.StatusOK || !out.OK {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("status %d", status)
		}
		return projects.SaveResult{}, errors.New(msg)
	}
	return projects.SaveResult{Created: out.Created, Updated: out.Updated}, nil
}

// Research calls POST /api/research.
func (c *HTTPClient) Research(ctx context.Context, claims []string) ([]research.Source, error) {
	var out struct {
		OK      bool              `json:"ok"`
		Sources []research.Source `json:"sources"`
		Error   string            `json:"error"`
	}
	status, err := c.post(ctx, "/api/research", map[string]any{"claims": claims}, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !out.OK {
		return nil, fmt.Errorf("research failed: %s", out.Error)
	}
	return out.Sources, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userID != "" {
		req.Header.Set(c.userHeader, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%s returned status %d with non-JSON body: %s",
			path, resp.StatusCode, truncate(string(raw), 200))
	}
	return resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
