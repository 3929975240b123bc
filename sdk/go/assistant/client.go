package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the assistant task REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// Source mirrors the citation entries attached to completed tasks.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Task mirrors the engine's task resource.
type Task struct {
	ID              string   `json:"id"`
	OriginalRequest string   `json:"original_request"`
	Intent          string   `json:"intent"`
	Status          string   `json:"status"`
	NeedsInternet   bool     `json:"needs_internet"`
	ClientTime      string   `json:"client_time,omitempty"`
	Plan            string   `json:"plan,omitempty"`
	Sources         []Source `json:"sources,omitempty"`
	RetryCount      int      `json:"retry_count"`
	MaxRetries      int      `json:"max_retries"`
	LastError       string   `json:"last_error,omitempty"`
	ErrorCode       string   `json:"error_code,omitempty"`
	CreatedAt       int64    `json:"created_at"`
	UpdatedAt       int64    `json:"updated_at"`
}

// Submission is the payload required to create a new task.
type Submission struct {
	Text       string `json:"text"`
	ClientTime string `json:"client_time,omitempty"`
}

// Completion carries an externally produced answer for a task.
type Completion struct {
	PlanUpdate string   `json:"plan_update,omitempty"`
	Sources    []Source `json:"sources,omitempty"`
}

// Stats reports task counts per status.
type Stats struct {
	Total     int `json:"total"`
	Planned   int `json:"planned"`
	Waiting   int `json:"waiting_for_internet"`
	Executing int `json:"executing"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ListResult wraps the list endpoint response.
type ListResult struct {
	Tasks []Task `json:"tasks"`
	Count int    `json:"count"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("assistant api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the assistant API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetToken stores the bearer token attached to mutating requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the currently stored token string.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Submit creates a new task from free-form text.
func (c *Client) Submit(ctx context.Context, submission Submission) (*Task, error) {
	var created Task
	if err := c.post(ctx, "/api/v1/tasks", submission, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Get fetches a single task by identifier.
func (c *Client) Get(ctx context.Context, taskID string) (*Task, error) {
	var found Task
	if err := c.get(ctx, "/api/v1/tasks/"+url.PathEscape(taskID), &found); err != nil {
		return nil, err
	}
	return &found, nil
}

// List returns tasks, optionally filtered by status names.
func (c *Client) List(ctx context.Context, limit int, statuses ...string) (*ListResult, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(statuses) > 0 {
		query.Set("status", strings.Join(statuses, ","))
	}
	endpoint := "/api/v1/tasks"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var result ListResult
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stats returns aggregate task counts.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/api/v1/tasks/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Complete marks a task as completed with an externally produced answer.
func (c *Client) Complete(ctx context.Context, taskID string, completion Completion) (*Task, error) {
	var completed Task
	endpoint := "/api/v1/tasks/" + url.PathEscape(taskID) + "/complete"
	if err := c.post(ctx, endpoint, completion, &completed); err != nil {
		return nil, err
	}
	return &completed, nil
}

// Resume retries a deferred task immediately, bypassing the connectivity
// monitor. The stored token is sent as the resume credential.
func (c *Client) Resume(ctx context.Context, taskID string) (*Task, error) {
	var resumed Task
	endpoint := "/api/v1/tasks/" + url.PathEscape(taskID) + "/resume"
	payload := struct {
		Credential string `json:"credential,omitempty"`
	}{Credential: c.Token()}
	if err := c.post(ctx, endpoint, payload, &resumed); err != nil {
		return nil, err
	}
	return &resumed, nil
}

// Online reports whether the engine currently considers itself connected.
func (c *Client) Online(ctx context.Context) (bool, error) {
	var status struct {
		Online bool `json:"online"`
	}
	if err := c.get(ctx, "/api/v1/connectivity", &status); err != nil {
		return false, err
	}
	return status.Online, nil
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
	target := *c.baseURL
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	target.Path = path.Join(c.baseURL.Path, parsed.Path)
	target.RawQuery = parsed.RawQuery
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
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
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
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
