package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/server"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// RequestOption configures HTTP requests
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery adds query parameters
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Error decodes the error envelope.
func (r *Response) Error() (*server.ErrorDetail, error) {
	var env server.ErrorResponse
	if err := r.JSON(&env); err != nil {
		return nil, err
	}
	return &env.Error, nil
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// Patch performs HTTP PATCH request with JSON body
func (c *TestClient) Patch(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPatch, path, body, opts...)
}

// Delete performs HTTP DELETE request
func (c *TestClient) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, opts...)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// decode checks for a 2xx status and unmarshals the body into v.
func decode(resp *Response, v interface{}) error {
	if !resp.IsSuccess() {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, resp.String())
	}
	return resp.JSON(v)
}

// ---- Session Helpers ----

// CreateSession starts an extraction session for sourceURL.
func (c *TestClient) CreateSession(ctx context.Context, sourceURL string, mode types.ExtractionMode) (*types.ExtractionSession, error) {
	resp, err := c.Post(ctx, "/session", server.CreateSessionRequest{SourceURL: sourceURL, Mode: mode})
	if err != nil {
		return nil, err
	}
	var s types.ExtractionSession
	return &s, decode(resp, &s)
}

// GetSession fetches a session by ID.
func (c *TestClient) GetSession(ctx context.Context, id string) (*types.ExtractionSession, error) {
	resp, err := c.Get(ctx, "/session/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var s types.ExtractionSession
	return &s, decode(resp, &s)
}

// ListSessions returns the sessions still in progress.
func (c *TestClient) ListSessions(ctx context.Context) ([]types.ExtractionSession, error) {
	resp, err := c.Get(ctx, "/session")
	if err != nil {
		return nil, err
	}
	var sessions []types.ExtractionSession
	if err := decode(resp, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateStatus moves a session to status.
func (c *TestClient) UpdateStatus(ctx context.Context, id string, status types.SessionStatus) (*Response, error) {
	return c.Patch(ctx, "/session/"+url.PathEscape(id), types.SessionUpdate{Status: status})
}

// FailSession records a failure for the session.
func (c *TestClient) FailSession(ctx context.Context, id, message string) (*types.ExtractionSession, error) {
	resp, err := c.Post(ctx, "/session/"+url.PathEscape(id)+"/fail", server.FailSessionRequest{Error: message})
	if err != nil {
		return nil, err
	}
	var s types.ExtractionSession
	return &s, decode(resp, &s)
}

// RetrySession asks the server to retry a failed session.
func (c *TestClient) RetrySession(ctx context.Context, id string) (*server.RetryResponse, error) {
	resp, err := c.Post(ctx, "/session/"+url.PathEscape(id)+"/retry", nil)
	if err != nil {
		return nil, err
	}
	var r server.RetryResponse
	return &r, decode(resp, &r)
}

// Generate runs a generation for the session. The raw response is returned
// so callers can inspect error envelopes.
func (c *TestClient) Generate(ctx context.Context, id string, req types.GenerationRequest, withRetry bool) (*Response, error) {
	var opts []RequestOption
	if withRetry {
		opts = append(opts, WithQuery(map[string]string{"retry": "true"}))
	}
	return c.Post(ctx, "/session/"+url.PathEscape(id)+"/generate", req, opts...)
}

// ---- History Helpers ----

// History returns up to limit history entries, newest first. Zero means all.
func (c *TestClient) History(ctx context.Context, limit int) ([]types.HistoryEntry, error) {
	var opts []RequestOption
	if limit > 0 {
		opts = append(opts, WithQuery(map[string]string{"limit": strconv.Itoa(limit)}))
	}
	resp, err := c.Get(ctx, "/history", opts...)
	if err != nil {
		return nil, err
	}
	var entries []types.HistoryEntry
	if err := decode(resp, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Analytics returns the extraction analytics summary.
func (c *TestClient) Analytics(ctx context.Context) (*types.AnalyticsSummary, error) {
	resp, err := c.Get(ctx, "/analytics")
	if err != nil {
		return nil, err
	}
	var summary types.AnalyticsSummary
	return &summary, decode(resp, &summary)
}
