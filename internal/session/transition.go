package session

import (
	"errors"
	"fmt"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/storage"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

var (
	// ErrNotFound is returned for an unknown session ID.
	ErrNotFound = fmt.Errorf("session %w", storage.ErrNotFound)

	// ErrInvalidTransition is returned when the state machine forbids a change.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidUpdate is returned for a malformed partial update.
	ErrInvalidUpdate = errors.New("invalid update")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	SessionID string
	From      types.SessionStatus
	To        types.SessionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session %s: invalid transition from %s to %s", e.SessionID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// rank orders the non-terminal statuses along the forward-only chain.
var rank = map[types.SessionStatus]int{
	types.StatusStarted:    0,
	types.StatusExtracting: 1,
	types.StatusValidating: 2,
}

// CanAdvance reports whether a session in status from may move to the
// non-terminal status to through a plain update. Equal statuses are allowed
// and mean no change.
func CanAdvance(from, to types.SessionStatus) bool {
	if from.Terminal() || to.Terminal() {
		return false
	}
	rf, ok1 := rank[from]
	rt, ok2 := rank[to]
	return ok1 && ok2 && rt >= rf
}

func transitionErr(s *types.ExtractionSession, to types.SessionStatus) error {
	return &TransitionError{SessionID: s.ID, From: s.Status, To: to}
}
