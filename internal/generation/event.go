package generation

import (
	"encoding/json"
	"fmt"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// EventType discriminates stream records.
type EventType string

const (
	TypeProgress EventType = "progress"
	TypeComplete EventType = "complete"
	TypeError    EventType = "error"
)

// Event is one decoded stream record: *ProgressEvent, *CompleteEvent or
// *ErrorEvent.
type Event interface {
	Type() EventType
	terminal() bool
}

// ProgressEvent reports advancement of a running generation.
type ProgressEvent struct {
	Step     string  `json:"step"`
	Progress float64 `json:"progress"`
	Phase    string  `json:"phase,omitempty"`
	Section  string  `json:"section,omitempty"`
}

func (*ProgressEvent) Type() EventType { return TypeProgress }
func (*ProgressEvent) terminal() bool  { return false }

// CompleteEvent carries the finished lesson.
type CompleteEvent struct {
	Step     string       `json:"step"`
	Progress float64      `json:"progress"`
	Lesson   types.Lesson `json:"lesson"`
}

func (*CompleteEvent) Type() EventType { return TypeComplete }
func (*CompleteEvent) terminal() bool  { return true }

// ErrorEvent carries the structured failure reported by the service.
type ErrorEvent struct {
	Error types.GenerationError `json:"error"`
}

func (*ErrorEvent) Type() EventType { return TypeError }
func (*ErrorEvent) terminal() bool  { return true }

// wireRecord is the union of every field a record may carry.
type wireRecord struct {
	Type     EventType              `json:"type"`
	Step     string                 `json:"step"`
	Progress *float64               `json:"progress"`
	Phase    string                 `json:"phase"`
	Section  string                 `json:"section"`
	Lesson   json.RawMessage        `json:"lesson"`
	Error    *types.GenerationError `json:"error"`
}

// decodeEvent validates one record payload against the three shapes.
func decodeEvent(data []byte) (Event, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch w.Type {
	case TypeProgress:
		if w.Progress == nil || *w.Progress < 0 || *w.Progress > 100 {
			return nil, fmt.Errorf("%w: progress must be within 0-100", ErrMalformedFrame)
		}
		return &ProgressEvent{Step: w.Step, Progress: *w.Progress, Phase: w.Phase, Section: w.Section}, nil

	case TypeComplete:
		lesson := types.Lesson(w.Lesson)
		if !lesson.IsObject() {
			return nil, fmt.Errorf("%w: complete without a lesson object", ErrMalformedFrame)
		}
		progress := 100.0
		if w.Progress != nil {
			progress = *w.Progress
		}
		return &CompleteEvent{Step: w.Step, Progress: progress, Lesson: lesson}, nil

	case TypeError:
		if w.Error == nil || w.Error.Message == "" {
			return nil, fmt.Errorf("%w: error without a message", ErrMalformedFrame)
		}
		return &ErrorEvent{Error: *w.Error}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, w.Type)
}
