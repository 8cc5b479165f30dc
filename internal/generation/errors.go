package generation

import (
	"errors"
	"fmt"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

var (
	// ErrMalformedFrame marks a record that matches none of the event shapes.
	// Such records are logged and skipped; the error never reaches callers.
	ErrMalformedFrame = errors.New("malformed event frame")

	// ErrNoTerminalEvent is returned when the stream ends without a
	// complete or error record.
	ErrNoTerminalEvent = errors.New("stream ended without a terminal event")

	// ErrCancelled is returned when the caller abandons a run.
	ErrCancelled = errors.New("generation cancelled")

	// ErrTimeout is returned when the run deadline passes or the stream
	// stays silent for longer than the idle timeout.
	ErrTimeout = errors.New("generation timed out")

	// ErrTransport is returned when the service cannot be reached or the
	// stream breaks mid-read.
	ErrTransport = errors.New("generation transport failed")

	// ErrUpstream matches every *UpstreamError.
	ErrUpstream = errors.New("upstream generation error")
)

// UpstreamError is the structured failure reported by the generation
// service, either as an error record or as a non-2xx response body.
type UpstreamError struct {
	types.GenerationError
	// StatusCode is the HTTP status for non-2xx responses, 0 for stream records.
	StatusCode int `json:"-"`
}

func (e *UpstreamError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Retryable reports whether a failed run may succeed on another attempt.
// Cancellation and contract violations are never retryable.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstream) ||
		errors.Is(err, ErrNoTerminalEvent) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrTransport)
}
