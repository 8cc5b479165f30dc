package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// GenerateResponse carries a generated lesson.
type GenerateResponse struct {
	SessionID string       `json:"sessionId"`
	Lesson    types.Lesson `json:"lesson"`
}

// generate handles POST /session/{sessionID}/generate
//
// The request body is a GenerationRequest. With ?retry=true failed attempts
// are retried through the session's retry policy before responding.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	if s.orch == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "no generation endpoint configured")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	var req types.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	ctx := r.Context()
	if s.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.GenerationTimeout)
		defer cancel()
	}

	var lesson *types.Lesson
	var err error
	if r.URL.Query().Get("retry") == "true" {
		lesson, err = s.runner.RunWithRetry(ctx, sessionID, &req)
	} else {
		lesson, err = s.orch.Run(ctx, sessionID, &req)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{SessionID: sessionID, Lesson: *lesson})
}
