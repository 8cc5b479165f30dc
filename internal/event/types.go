package event

import "github.com/etiennegwiavander/linguaspark-sub009/pkg/types"

// SessionData is the data for session.created, session.updated,
// session.completed, session.failed and session.retried events.
type SessionData struct {
	Info *types.ExtractionSession `json:"info"`
}

// SessionExpiredData is the data for session.expired events.
type SessionExpiredData struct {
	SessionID string `json:"sessionID"`
	SourceURL string `json:"sourceUrl"`
}

// GenerationProgressData is the data for generation.progress events.
type GenerationProgressData struct {
	SessionID string              `json:"sessionID"`
	Step      string              `json:"step"`
	Progress  float64             `json:"progress"`
	Phase     string              `json:"phase,omitempty"`
	Section   string              `json:"section,omitempty"`
	Status    types.SessionStatus `json:"status"`
}

// InteractionRecordedData is the data for interaction.recorded events.
type InteractionRecordedData struct {
	Event *types.InteractionEvent `json:"event"`
}
