package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// CreateSessionRequest represents the request body for creating a session.
type CreateSessionRequest struct {
	SourceURL string               `json:"sourceUrl"`
	Mode      types.ExtractionMode `json:"mode,omitempty"`
}

// CompleteSessionRequest represents the request body for completing a session.
type CompleteSessionRequest struct {
	Content *types.ExtractedContent `json:"content,omitempty"`
}

// FailSessionRequest represents the request body for failing a session.
type FailSessionRequest struct {
	Error string `json:"error"`
}

// RetryResponse reports the outcome of a retry request.
type RetryResponse struct {
	Retried    bool  `json:"retried"`
	RetryCount int   `json:"retryCount"`
	Exhausted  bool  `json:"exhausted"`
	WaitMs     int64 `json:"waitMs"`
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"maxRetries": s.manager.MaxRetries(),
		"generation": s.orch != nil,
	})
}

// listSessions handles GET /session
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.manager.GetActiveSessions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Ensure we return an empty array [] instead of null
	if sessions == nil {
		sessions = []*types.ExtractionSession{}
	}

	writeJSON(w, http.StatusOK, sessions)
}

// createSession handles POST /session
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	session, err := s.manager.CreateSession(r.Context(), req.SourceURL, req.Mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// getSession handles GET /session/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.manager.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// updateSession handles PATCH /session/{sessionID}
func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var update types.SessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if err := s.manager.UpdateSession(r.Context(), sessionID, update); err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeSession(w, r, sessionID)
}

// completeSession handles POST /session/{sessionID}/complete
func (s *Server) completeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req CompleteSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
			return
		}
	}

	if err := s.manager.CompleteSession(r.Context(), sessionID, req.Content); err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeSession(w, r, sessionID)
}

// failSession handles POST /session/{sessionID}/fail
func (s *Server) failSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req FailSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if err := s.manager.FailSession(r.Context(), sessionID, req.Error); err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeSession(w, r, sessionID)
}

// retrySession handles POST /session/{sessionID}/retry
func (s *Server) retrySession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// The delay the policy asks for before this attempt.
	wait, err := s.manager.NextRetryDelay(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	retried, err := s.manager.RetryExtraction(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	session, err := s.manager.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := RetryResponse{
		Retried:    retried,
		RetryCount: session.RetryCount,
		Exhausted:  !retried,
	}
	if retried {
		resp.WaitMs = wait.Milliseconds()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, err := s.manager.GetSession(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// queryLimit reads the limit query parameter; absent means no limit.
func queryLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
