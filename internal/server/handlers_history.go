package server

import (
	"encoding/json"
	"net/http"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// RecordInteractionRequest represents the request body for recording an
// interaction event.
type RecordInteractionRequest struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CleanupResponse reports one maintenance sweep.
type CleanupResponse struct {
	Removed       int `json:"removed"`
	HistoryPruned int `json:"historyPruned"`
}

// getHistory handles GET /history
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
		return
	}

	entries, err := s.manager.GetExtractionHistory(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// getAnalytics handles GET /analytics
func (s *Server) getAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.manager.GetAnalyticsSummary(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// listInteractions handles GET /interaction
func (s *Server) listInteractions(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
		return
	}

	events, err := s.manager.GetInteractionEvents(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []types.InteractionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// recordInteraction handles POST /interaction
func (s *Server) recordInteraction(w http.ResponseWriter, r *http.Request) {
	var req RecordInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	if err := s.manager.RecordInteraction(r.Context(), req.EventType, req.SessionID, req.URL); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w)
}

// cleanup handles POST /maintenance/cleanup
func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	removed, pruned, err := s.runCleanup(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CleanupResponse{Removed: removed, HistoryPruned: pruned})
}
