// Package scriptforge provides a small Go client for the orchestration
// service's REST API.
package scriptforge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// DefaultPollInterval is how often WaitForRun re-checks a run's status.
const DefaultPollInterval = 500 * time.Millisecond

// Client wraps the HTTP interactions with the ScriptForge REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
}

// RunSubmission represents the payload required to create a new run.
type RunSubmission struct {
	ID       string         `json:"id,omitempty"`
	Request  string         `json:"request"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunResult contains the outcome of a finished run.
type RunResult struct {
	FinalScript       string `json:"final_script"`
	Completed         bool   `json:"completed"`
	Cycles            int    `json:"cycles"`
	GenesisHash       string `json:"genesis_hash"`
	ChainHead         string `json:"chain_head"`
	AnchorChainID     string `json:"anchor_chain_id,omitempty"`
	AnchorBlockNumber string `json:"anchor_block_number,omitempty"`
}

// Run mirrors the server's run record.
type Run struct {
	ID         string         `json:"id"`
	Request    string         `json:"request"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *RunResult     `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Terminal reports whether the run has reached a final state.
func (r *Run) Terminal() bool {
	return r != nil && (r.Status == "succeeded" || r.Status == "failed")
}

// RunStats aggregates run counts by status.
type RunStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// ListParams narrows the run listing.
type ListParams struct {
	Limit    int
	Offset   int
	Statuses []string
	Query    string
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("scriptforge api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("scriptforge api error (%d): %s", e.StatusCode, e.Message)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithAPIKey attaches a static key to every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// NewClient instantiates a client for the ScriptForge API.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	c := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// SubmitRun creates a new run.
func (c *Client) SubmitRun(ctx context.Context, submission RunSubmission) (*Run, error) {
	var created Run
	if err := c.post(ctx, "/api/v1/runs", submission, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetRun fetches a run by identifier.
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	var detail Run
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListRuns returns runs matching the given parameters.
func (c *Client) ListRuns(ctx context.Context, params ListParams) ([]*Run, error) {
	values := url.Values{}
	if params.Limit > 0 {
		values.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		values.Set("offset", strconv.Itoa(params.Offset))
	}
	if len(params.Statuses) > 0 {
		values.Set("status", strings.Join(params.Statuses, ","))
	}
	if params.Query != "" {
		values.Set("q", params.Query)
	}
	endpoint := "/api/v1/runs"
	if encoded := values.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var runs []*Run
	if err := c.get(ctx, endpoint, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Stats returns aggregate run counts.
func (c *Client) Stats(ctx context.Context) (*RunStats, error) {
	var stats RunStats
	if err := c.get(ctx, "/api/v1/runs/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// WaitForRun polls until the run reaches a terminal state or the context is
// cancelled. A non-positive interval falls back to DefaultPollInterval.
func (c *Client) WaitForRun(ctx context.Context, runID string, interval time.Duration) (*Run, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		detail, err := c.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if detail.Terminal() {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("read error response: %w", readErr)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
