package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	maxPageSize         = 5 * 1024 * 1024 // 5MB
	defaultFetchTimeout = 30 * time.Second
)

// ErrPageTooLarge is returned when a page exceeds the size limit.
var ErrPageTooLarge = errors.New("page too large (exceeds 5MB limit)")

// Fetcher downloads pages.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a fetcher. A zero timeout uses the default of 30s.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads pageURL and prepares it with FromHTML. Plain text
// responses are used as they are.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Document, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		return nil, fmt.Errorf("URL must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "lessonpipe/1.0")
	req.Header.Set("Accept", "text/html;q=1.0, application/xhtml+xml;q=0.9, text/plain;q=0.8, */*;q=0.1")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status code: %d", resp.StatusCode)
	}
	if resp.ContentLength > maxPageSize {
		return nil, ErrPageTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > maxPageSize {
		return nil, ErrPageTooLarge
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		text := Sanitize(string(body))
		return &Document{URL: pageURL, Title: Domain(pageURL), Text: text}, nil
	}
	return FromHTML(pageURL, string(body))
}

// Fetch downloads a page with a default fetcher.
func Fetch(ctx context.Context, pageURL string) (*Document, error) {
	return NewFetcher(0).Fetch(ctx, pageURL)
}
