package session

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock supplies the current time. Tests substitute a fixed or stepping clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// idSource issues ULIDs that sort in issue order, even when the clock stalls
// or steps backwards.
type idSource struct {
	mu      sync.Mutex
	clock   Clock
	entropy io.Reader
	lastMs  uint64
}

func newIDSource(clock Clock) *idSource {
	return &idSource{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *idSource) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ms := ulid.Timestamp(s.clock.Now())
	if ms < s.lastMs {
		ms = s.lastMs
	}
	s.lastMs = ms
	return ulid.MustNew(ms, s.entropy).String()
}
