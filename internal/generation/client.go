package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

const maxErrorBody = 64 * 1024

// Client opens generation streams against the remote service.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithToken sends token as a bearer credential.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestsPerMinute limits how often streams are opened. Zero or less
// disables the limit.
func WithRequestsPerMinute(rpm float64) ClientOption {
	return func(c *Client) {
		if rpm <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rpm)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rpm/60.0), burst)
	}
}

// NewClient creates a client posting to endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		// No overall timeout: streams are long-lived and bounded by the
		// caller's context and the orchestrator's idle timer.
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL streams are opened against.
func (c *Client) Endpoint() string { return c.endpoint }

// Stream posts req and returns the response body of a 2xx response. A
// non-2xx response is returned as *UpstreamError.
func (c *Client) Stream(ctx context.Context, req *types.GenerationRequest) (io.ReadCloser, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("%w: no generation endpoint configured", ErrTransport)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: rate limit: %v", ErrTransport, err)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, upstreamFromBody(resp.StatusCode, data)
	}
	return resp.Body, nil
}

// upstreamFromBody accepts {"error": {...}} or a bare error object.
func upstreamFromBody(status int, data []byte) *UpstreamError {
	var wrapped struct {
		Error *types.GenerationError `json:"error"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
		return &UpstreamError{GenerationError: *wrapped.Error, StatusCode: status}
	}

	var bare types.GenerationError
	if err := json.Unmarshal(data, &bare); err == nil && bare.Message != "" {
		return &UpstreamError{GenerationError: bare, StatusCode: status}
	}

	msg := http.StatusText(status)
	if text := bytes.TrimSpace(data); len(text) > 0 && len(text) <= 512 {
		msg = string(text)
	}
	return &UpstreamError{
		GenerationError: types.GenerationError{
			Type:    "HTTPError",
			Message: fmt.Sprintf("generation service returned %d: %s", status, msg),
		},
		StatusCode: status,
	}
}
