package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// RandomString generates a random string of n characters
func RandomString(n int) string {
	bytes := make([]byte, n/2+1)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)[:n]
}

// SourceURL returns a unique article URL so tests don't share history rows.
func SourceURL(slug string) string {
	return fmt.Sprintf("https://example.com/%s-%s", slug, RandomString(8))
}

// GenerationRequest builds a B1 discussion request for text.
func GenerationRequest(sourceURL, text string) types.GenerationRequest {
	return types.GenerationRequest{
		SourceText:     text,
		LessonType:     "discussion",
		StudentLevel:   "B1",
		TargetLanguage: "en",
		SourceURL:      sourceURL,
	}
}

// ---- Assertion Matchers ----

// EventMatcher helps match SSE events
type EventMatcher struct {
	events []SSEEvent
}

// NewEventMatcher creates an event matcher
func NewEventMatcher(events []SSEEvent) *EventMatcher {
	return &EventMatcher{events: events}
}

// HasType checks if any event has the given type
func (m *EventMatcher) HasType(eventType string) bool {
	return m.CountType(eventType) > 0
}

// CountType counts events of given type
func (m *EventMatcher) CountType(eventType string) int {
	count := 0
	for _, evt := range m.events {
		if evt.Type == eventType {
			count++
		}
	}
	return count
}

// FilterType returns events of given type
func (m *EventMatcher) FilterType(eventType string) []SSEEvent {
	var filtered []SSEEvent
	for _, evt := range m.events {
		if evt.Type == eventType {
			filtered = append(filtered, evt)
		}
	}
	return filtered
}

// Types returns the event types in arrival order.
func (m *EventMatcher) Types() []string {
	out := make([]string, len(m.events))
	for i, evt := range m.events {
		out[i] = evt.Type
	}
	return out
}
