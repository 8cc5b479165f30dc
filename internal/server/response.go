package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/generation"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/logging"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/retry"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/session"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/storage"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeUpstreamError     = "UPSTREAM_ERROR"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeUnavailable       = "UNAVAILABLE"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// StatusClientClosedRequest is the non-standard status for a request the
// client abandoned.
const StatusClientClosedRequest = 499

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorWithDetails(w, status, code, message, nil)
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeServiceError maps a session or generation error to its API shape.
func writeServiceError(w http.ResponseWriter, err error) {
	var transition *session.TransitionError
	var upstream *generation.UpstreamError

	switch {
	case errors.As(err, &transition):
		writeErrorWithDetails(w, http.StatusConflict, ErrCodeInvalidTransition, err.Error(), map[string]any{
			"sessionId": transition.SessionID,
			"from":      transition.From,
			"to":        transition.To,
		})
	case errors.Is(err, session.ErrInvalidTransition):
		writeError(w, http.StatusConflict, ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidInput), errors.Is(err, session.ErrInvalidUpdate):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.As(err, &upstream):
		writeErrorWithDetails(w, http.StatusBadGateway, ErrCodeUpstreamError, upstream.Message, map[string]any{
			"upstream":         upstream.GenerationError,
			"statusCode":       upstream.StatusCode,
			"retriesExhausted": errors.Is(err, retry.ErrRetryExhausted),
		})
	case errors.Is(err, generation.ErrTimeout):
		writeErrorWithDetails(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error(), map[string]any{
			"retriesExhausted": errors.Is(err, retry.ErrRetryExhausted),
		})
	case errors.Is(err, generation.ErrCancelled):
		writeError(w, StatusClientClosedRequest, ErrCodeCancelled, err.Error())
	case errors.Is(err, generation.ErrNoTerminalEvent), errors.Is(err, generation.ErrTransport):
		writeErrorWithDetails(w, http.StatusBadGateway, ErrCodeUpstreamError, err.Error(), map[string]any{
			"retriesExhausted": errors.Is(err, retry.ErrRetryExhausted),
		})
	case errors.Is(err, storage.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		logging.Error().Err(err).Msg("unhandled server error")
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}

// writeSuccess writes a success response.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
