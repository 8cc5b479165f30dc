package testutil

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/event"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// heartbeat is the type recorded for SSE comment lines.
const heartbeat = "heartbeat"

// SSEEvent is one event read from the /event stream.
type SSEEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// Decode unmarshals the event properties into v.
func (evt *SSEEvent) Decode(v interface{}) error {
	return json.Unmarshal(evt.Properties, v)
}

// Progress decodes a generation.progress event.
func (evt *SSEEvent) Progress() (*event.GenerationProgressData, error) {
	var data event.GenerationProgressData
	if err := evt.Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Session decodes the session carried by a session.* event.
func (evt *SSEEvent) Session() (*types.ExtractionSession, error) {
	var data event.SessionData
	if err := evt.Decode(&data); err != nil {
		return nil, err
	}
	if data.Info == nil {
		return nil, fmt.Errorf("event %s carries no session", evt.Type)
	}
	return data.Info, nil
}

// SSEClient provides SSE client utilities for testing
type SSEClient struct {
	BaseURL    string
	HTTPClient *http.Client

	mu       sync.Mutex
	events   []SSEEvent
	eventsCh chan SSEEvent
	errCh    chan error
	cancel   context.CancelFunc
	body     io.ReadCloser
}

// NewSSEClient creates a new SSE test client
func NewSSEClient(baseURL string) *SSEClient {
	return &SSEClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 0, // No timeout for SSE
		},
		eventsCh: make(chan SSEEvent, 256),
		errCh:    make(chan error, 1),
	}
}

// Connect opens the event stream. A non-empty sessionID limits the stream
// to that session. It returns once server.connected has arrived.
func (c *SSEClient) Connect(ctx context.Context, sessionID string) error {
	path := "/event"
	if sessionID != "" {
		path += "?sessionID=" + url.QueryEscape(sessionID)
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/event-stream") {
		resp.Body.Close()
		return fmt.Errorf("unexpected content type: %s", contentType)
	}

	c.body = resp.Body

	go c.readEvents(resp.Body)

	if _, err := c.WaitForEvent("server.connected", 5*time.Second); err != nil {
		c.Close()
		return err
	}
	return nil
}

// readEvents reads SSE events from the connection
func (c *SSEClient) readEvents(body io.Reader) {
	defer func() {
		close(c.eventsCh)
		close(c.errCh)
	}()

	reader := bufio.NewReader(body)
	var data strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && err != context.Canceled {
				c.errCh <- err
			}
			return
		}

		line = strings.TrimRight(line, "\r\n")

		// Empty line = event complete
		if line == "" {
			if data.Len() > 0 {
				var evt SSEEvent
				if err := json.Unmarshal([]byte(data.String()), &evt); err == nil {
					c.record(evt)
				}
			}
			data.Reset()
			continue
		}

		// Comment (heartbeat)
		if strings.HasPrefix(line, ":") {
			c.record(SSEEvent{Type: heartbeat})
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

func (c *SSEClient) record(evt SSEEvent) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()

	select {
	case c.eventsCh <- evt:
	default:
		// Channel full, drop event
	}
}

// Events returns the event channel
func (c *SSEClient) Events() <-chan SSEEvent {
	return c.eventsCh
}

// WaitForEvent waits for a specific event type with timeout
func (c *SSEClient) WaitForEvent(eventType string, timeout time.Duration) (*SSEEvent, error) {
	return c.WaitFor(func(evt SSEEvent) bool { return evt.Type == eventType }, timeout)
}

// WaitFor waits for the first event accepted by match.
func (c *SSEClient) WaitFor(match func(SSEEvent) bool, timeout time.Duration) (*SSEEvent, error) {
	deadline := time.After(timeout)
	for {
		select {
		case evt, ok := <-c.eventsCh:
			if !ok {
				return nil, fmt.Errorf("connection closed")
			}
			if match(evt) {
				return &evt, nil
			}
		case err, ok := <-c.errCh:
			if ok && err != nil {
				return nil, err
			}
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event")
		}
	}
}

// CollectUntil gathers events up to and including the first of eventType.
func (c *SSEClient) CollectUntil(eventType string, timeout time.Duration) ([]SSEEvent, error) {
	var collected []SSEEvent
	_, err := c.WaitFor(func(evt SSEEvent) bool {
		if evt.Type == heartbeat {
			return false
		}
		collected = append(collected, evt)
		return evt.Type == eventType
	}, timeout)
	return collected, err
}

// GetAllEvents returns all received events
func (c *SSEClient) GetAllEvents() []SSEEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]SSEEvent, len(c.events))
	copy(result, c.events)
	return result
}

// CountEventType counts events of a specific type
func (c *SSEClient) CountEventType(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, evt := range c.events {
		if evt.Type == eventType {
			count++
		}
	}
	return count
}

// Close closes the SSE connection
func (c *SSEClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.body != nil {
		c.body.Close()
	}
}
