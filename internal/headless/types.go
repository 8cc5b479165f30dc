package headless

import (
	"time"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// OutputFormat defines the output format for headless mode.
type OutputFormat string

const (
	// OutputText is human-readable streaming text output.
	OutputText OutputFormat = "text"
	// OutputJSON is final JSON result summary.
	OutputJSON OutputFormat = "json"
	// OutputJSONL is streaming JSONL events.
	OutputJSONL OutputFormat = "jsonl"
)

// ExitCode defines exit codes for headless mode.
type ExitCode int

const (
	// ExitSuccess indicates successful completion.
	ExitSuccess ExitCode = 0
	// ExitError indicates a general/unknown error.
	ExitError ExitCode = 1
	// ExitTimeout indicates the generation deadline or idle timeout passed.
	ExitTimeout ExitCode = 2
	// ExitCancelled indicates the run was interrupted.
	ExitCancelled ExitCode = 3
	// ExitUpstreamError indicates the generation service failed or broke the
	// stream contract.
	ExitUpstreamError ExitCode = 4
	// ExitInvalidInput indicates missing source text or required flags.
	ExitInvalidInput ExitCode = 5
	// ExitSessionNotFound indicates session not found when continuing.
	ExitSessionNotFound ExitCode = 6
)

// Config holds configuration for headless mode execution.
type Config struct {
	// SourceURL is the page the lesson is built from.
	SourceURL string
	// Fetch downloads and extracts SourceURL instead of reading local text.
	Fetch bool
	// InputFile is a local text or HTML file with the source content.
	InputFile string
	// ReadStdin indicates whether to read source text from stdin.
	ReadStdin bool
	// Mode is the extraction mode recorded on the session.
	Mode types.ExtractionMode

	LessonType     string
	StudentLevel   string
	TargetLanguage string

	// OutputFormat specifies the output format (text, json, jsonl).
	OutputFormat OutputFormat
	// Timeout is the maximum generation time.
	Timeout time.Duration
	// Retry retries failed generations through the session's retry policy.
	Retry bool
	// SessionID is an existing session ID to continue.
	SessionID string
	// Quiet suppresses progress output, only shows result.
	Quiet bool
	// Verbose shows all events (with jsonl format).
	Verbose bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:           types.ModeFullPage,
		LessonType:     "discussion",
		StudentLevel:   "B1",
		TargetLanguage: "en",
		OutputFormat:   OutputText,
		Timeout:        10 * time.Minute,
	}
}

// Result holds the final result of a headless execution.
type Result struct {
	SessionID  string                `json:"session_id"`
	Status     string                `json:"status"` // "success", "error", "timeout", "cancelled"
	SourceURL  string                `json:"source_url,omitempty"`
	DurationMS int64                 `json:"duration_ms"`
	Steps      int                   `json:"steps"`
	RetryCount int                   `json:"retry_count"`
	Quality    *types.ContentQuality `json:"quality,omitempty"`
	Lesson     types.Lesson          `json:"lesson,omitempty"`
	Error      string                `json:"error,omitempty"`
	ExitCode   ExitCode              `json:"exit_code"`
}

// Event represents a JSONL event for streaming output.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType string, data any) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}
