package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/event"
)

// StreamEvent is the payload of every relayed event.
type StreamEvent struct {
	ID         string          `json:"id,omitempty"`
	Type       event.EventType `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

const (
	// SSEHeartbeatInterval is the interval for SSE heartbeats.
	SSEHeartbeatInterval = 30 * time.Second

	sseBuffer = 64
)

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

// newSSEWriter creates a new SSE writer.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE record and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData)
	if err != nil {
		return err
	}

	// ResponseController reaches through middleware wrappers; fall back to
	// the Flusher when it cannot.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}

	return nil
}

// writeHeartbeat writes an SSE heartbeat comment.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events handles GET /event. It relays bus events, optionally only those
// of the session named by the sessionID query parameter.
func (srv *Server) events(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	stream, err := srv.bus.Stream(r.Context(), sseBuffer)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	// Explicitly write status and flush headers immediately
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent("message", StreamEvent{Type: "server.connected", Properties: json.RawMessage(`{}`)}); err != nil {
		return
	}

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case env, ok := <-stream:
			if !ok {
				return
			}
			if sessionID != "" && envelopeSessionID(env) != sessionID {
				continue
			}
			if err := sse.writeEvent("message", StreamEvent{ID: env.ID, Type: env.Type, Properties: env.Data}); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// envelopeSessionID extracts the session an event belongs to, or "".
func envelopeSessionID(env event.Envelope) string {
	var probe struct {
		SessionID string `json:"sessionID"`
		Info      *struct {
			ID string `json:"sessionId"`
		} `json:"info"`
		Event *struct {
			SessionID string `json:"sessionId"`
		} `json:"event"`
	}
	if err := json.Unmarshal(env.Data, &probe); err != nil {
		return ""
	}
	switch {
	case probe.Info != nil:
		return probe.Info.ID
	case probe.Event != nil:
		return probe.Event.SessionID
	}
	return probe.SessionID
}
