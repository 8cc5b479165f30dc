// Package types provides the core data types for the lesson pipeline.
package types

import "time"

// SessionStatus is the lifecycle status of an extraction session.
type SessionStatus string

const (
	StatusStarted    SessionStatus = "started"
	StatusExtracting SessionStatus = "extracting"
	StatusValidating SessionStatus = "validating"
	StatusComplete   SessionStatus = "complete"
	StatusFailed     SessionStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusStarted, StatusExtracting, StatusValidating, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends an attempt. A failed session may still be
// retried through the session manager.
func (s SessionStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ExtractionMode describes the scope of an extraction.
type ExtractionMode string

const (
	ModeFullPage  ExtractionMode = "full-page"
	ModeSelection ExtractionMode = "selection"
	ModeArticle   ExtractionMode = "article"
)

// Valid reports whether m is a known extraction mode.
func (m ExtractionMode) Valid() bool {
	switch m {
	case ModeFullPage, ModeSelection, ModeArticle:
		return true
	}
	return false
}

// ExtractionSession tracks one attempt to turn a source into lesson input.
type ExtractionSession struct {
	ID               string            `json:"sessionId"`
	SourceURL        string            `json:"sourceUrl"`
	Mode             ExtractionMode    `json:"extractionMode"`
	Status           SessionStatus     `json:"status"`
	RetryCount       int               `json:"retryCount"`
	StartTime        time.Time         `json:"startTime"`
	EndTime          *time.Time        `json:"endTime,omitempty"`
	UpdatedTime      time.Time         `json:"updatedTime"`
	ExtractedContent *ExtractedContent `json:"extractedContent,omitempty"`
	Error            string            `json:"error,omitempty"`

	// PendingContent is content staged by a content-only update. It becomes
	// ExtractedContent when the session completes without explicit content.
	PendingContent *ExtractedContent `json:"pendingContent,omitempty"`
}

// Clone returns a deep copy of the session.
func (s *ExtractionSession) Clone() *ExtractionSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	c.ExtractedContent = s.ExtractedContent.Clone()
	c.PendingContent = s.PendingContent.Clone()
	return &c
}

// SessionUpdate is a partial update applied through the session manager.
// Exactly one of Status or Content must be set.
type SessionUpdate struct {
	Status  SessionStatus     `json:"status,omitempty"`
	Content *ExtractedContent `json:"content,omitempty"`
}

// ExtractedContent is the structured payload attached to a completed session.
type ExtractedContent struct {
	Text     string          `json:"text"`
	Title    string          `json:"title"`
	Metadata ContentMetadata `json:"metadata"`
	Quality  ContentQuality  `json:"quality"`
}

// Clone returns a deep copy of the content.
func (c *ExtractedContent) Clone() *ExtractedContent {
	if c == nil {
		return nil
	}
	ec := *c
	if c.Metadata.PublicationDate != nil {
		t := *c.Metadata.PublicationDate
		ec.Metadata.PublicationDate = &t
	}
	return &ec
}

// ContentMetadata describes where extracted content came from.
type ContentMetadata struct {
	SourceURL       string     `json:"sourceUrl"`
	Domain          string     `json:"domain"`
	Author          string     `json:"author,omitempty"`
	PublicationDate *time.Time `json:"publicationDate,omitempty"`
}

// ContentQuality holds derived quality measures of extracted text.
type ContentQuality struct {
	WordCount        int     `json:"wordCount"`
	ReadingTime      int     `json:"readingTime"` // minutes
	SuitabilityScore float64 `json:"suitabilityScore"`
}

// HistoryEntry records one terminal outcome of an extraction attempt.
// Entries are append-only.
type HistoryEntry struct {
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	Timestamp  time.Time     `json:"timestamp"`
	Status     SessionStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	SessionID  string        `json:"sessionId,omitempty"`
	RetryCount *int          `json:"retryCount,omitempty"`
}

// InteractionEvent is an append-only telemetry record.
type InteractionEvent struct {
	ID        string    `json:"id"`
	EventType string    `json:"eventType"`
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
}

// Interaction event types recorded by the session manager.
const (
	InteractionExtractionStarted   = "extraction_started"
	InteractionExtractionCompleted = "extraction_completed"
	InteractionExtractionFailed    = "extraction_failed"
	InteractionExtractionRetried   = "extraction_retried"
)

// AnalyticsSummary is derived from history and never stored.
type AnalyticsSummary struct {
	SuccessfulExtractions int          `json:"successfulExtractions"`
	FailedExtractions     int          `json:"failedExtractions"`
	TotalExtractions      int          `json:"totalExtractions"`
	AverageRetries        float64      `json:"averageRetries"`
	MostCommonErrors      []ErrorCount `json:"mostCommonErrors"`
}

// ErrorCount is one row of the most common errors ranking.
type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}
