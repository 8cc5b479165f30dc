// Package session tracks extraction sessions through their lifecycle,
// records the history of terminal outcomes, and enforces the retry cap.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/event"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/logging"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/retry"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/storage"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

const (
	// DefaultMaxAge is how long a session lives before the expiry sweep removes it.
	DefaultMaxAge = 24 * time.Hour
	// DefaultHistoryLimit is the rolling capacity of the history log.
	DefaultHistoryLimit = 100
	// DefaultEventLimit is the rolling capacity of the interaction event log.
	DefaultEventLimit = 500
)

var (
	// ErrInvalidInput is returned for a malformed create request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session manager closed")
)

// Manager owns extraction sessions. Every read-modify-write of one session is
// serialized; different sessions never contend.
type Manager struct {
	store      storage.Store
	policy     retry.Policy
	maxRetries int
	clock      Clock
	bus        *event.Bus

	maxAge           time.Duration
	historyLimit     int
	eventLimit       int
	historyRetention time.Duration
	analyticsWindow  time.Duration

	ids      *idSource
	locks    keyedMutex
	histMu   sync.Mutex
	eventsMu sync.Mutex
	closed   atomic.Bool
	log      zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetryPolicy replaces the default bounded policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithMaxRetries sets the retry cap passed to the policy.
func WithMaxRetries(n int) Option {
	return func(m *Manager) { m.maxRetries = n }
}

// WithClock sets the time source for timestamps and IDs.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithBus publishes lifecycle events to b.
func WithBus(b *event.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithMaxAge sets the age threshold of CleanupExpiredSessions.
func WithMaxAge(d time.Duration) Option {
	return func(m *Manager) { m.maxAge = d }
}

// WithHistoryLimit sets the rolling capacity of the history log.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) { m.historyLimit = n }
}

// WithEventLimit sets the rolling capacity of the interaction event log.
func WithEventLimit(n int) Option {
	return func(m *Manager) { m.eventLimit = n }
}

// WithHistoryRetention makes PruneHistory drop entries older than d.
func WithHistoryRetention(d time.Duration) Option {
	return func(m *Manager) { m.historyRetention = d }
}

// WithAnalyticsWindow limits GetAnalyticsSummary to entries newer than d.
func WithAnalyticsWindow(d time.Duration) Option {
	return func(m *Manager) { m.analyticsWindow = d }
}

// NewManager creates a manager over store. The manager owns the store and
// closes it in Close.
func NewManager(store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		policy:       retry.Bounded{},
		maxRetries:   retry.DefaultMax,
		clock:        systemClock{},
		maxAge:       DefaultMaxAge,
		historyLimit: DefaultHistoryLimit,
		eventLimit:   DefaultEventLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ids = newIDSource(m.clock)
	m.log = logging.Component("session")
	return m
}

// MaxRetries returns the configured retry cap.
func (m *Manager) MaxRetries() int { return m.maxRetries }

// Policy returns the retry policy.
func (m *Manager) Policy() retry.Policy { return m.policy }

// Close closes the underlying store. Later calls fail with ErrClosed.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return m.store.Close()
}

// CreateSession starts tracking a new extraction.
func (m *Manager) CreateSession(ctx context.Context, sourceURL string, mode types.ExtractionMode) (*types.ExtractionSession, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	if sourceURL == "" {
		return nil, fmt.Errorf("%w: source URL is required", ErrInvalidInput)
	}
	if mode == "" {
		mode = types.ModeFullPage
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown extraction mode %q", ErrInvalidInput, mode)
	}

	now := m.clock.Now()
	s := &types.ExtractionSession{
		ID:          m.ids.next(),
		SourceURL:   sourceURL,
		Mode:        mode,
		Status:      types.StatusStarted,
		StartTime:   now,
		UpdatedTime: now,
	}
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}

	m.log.Debug().Str("sessionID", s.ID).Str("url", sourceURL).Msg("session created")
	m.publish(event.SessionCreated, event.SessionData{Info: s.Clone()})
	m.recordQuietly(ctx, types.InteractionExtractionStarted, s)
	return s.Clone(), nil
}

// GetSession returns a copy of the session.
func (m *Manager) GetSession(ctx context.Context, id string) (*types.ExtractionSession, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	return m.load(ctx, id)
}

// GetActiveSessions returns every session not in complete or failed, oldest first.
func (m *Manager) GetActiveSessions(ctx context.Context) ([]*types.ExtractionSession, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	all, err := m.allSessions(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]*types.ExtractionSession, 0, len(all))
	for _, s := range all {
		if !s.Status.Terminal() {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].StartTime.Equal(active[j].StartTime) {
			return active[i].StartTime.Before(active[j].StartTime)
		}
		return active[i].ID < active[j].ID
	})
	return active, nil
}

// UpdateSession applies a status-only or content-only partial update.
//
// A status update may only move forward along started, extracting,
// validating; complete and failed are reached through CompleteSession and
// FailSession. Repeating the current status is a no-op. Content updates are
// staged until the session completes.
func (m *Manager) UpdateSession(ctx context.Context, id string, update types.SessionUpdate) error {
	if err := m.check(); err != nil {
		return err
	}
	hasStatus, hasContent := update.Status != "", update.Content != nil
	if hasStatus == hasContent {
		return fmt.Errorf("%w: exactly one of status or content must be set", ErrInvalidUpdate)
	}
	if hasStatus && !update.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidUpdate, update.Status)
	}

	unlock, err := m.lockSession(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return err
	}

	if hasContent {
		if s.Status.Terminal() {
			return transitionErr(s, s.Status)
		}
		s.PendingContent = update.Content.Clone()
	} else {
		if !CanAdvance(s.Status, update.Status) {
			return transitionErr(s, update.Status)
		}
		if s.Status == update.Status {
			return nil
		}
		s.Status = update.Status
	}
	s.UpdatedTime = m.clock.Now()

	if err := m.save(ctx, s); err != nil {
		return err
	}
	m.log.Debug().Str("sessionID", id).Str("status", string(s.Status)).Msg("session updated")
	m.publish(event.SessionUpdated, event.SessionData{Info: s.Clone()})
	return nil
}

// CompleteSession moves the session to complete with content attached and
// appends a history entry. A nil content uses content staged by UpdateSession.
func (m *Manager) CompleteSession(ctx context.Context, id string, content *types.ExtractedContent) error {
	if err := m.check(); err != nil {
		return err
	}

	unlock, err := m.lockSession(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if s.Status.Terminal() {
		return transitionErr(s, types.StatusComplete)
	}
	if content == nil {
		content = s.PendingContent
	}
	if content == nil {
		return fmt.Errorf("%w: content is required to complete", ErrInvalidUpdate)
	}

	now := m.clock.Now()
	s.Status = types.StatusComplete
	s.ExtractedContent = content.Clone()
	s.PendingContent = nil
	s.Error = ""
	s.EndTime = &now
	s.UpdatedTime = now
	if err := m.save(ctx, s); err != nil {
		return err
	}

	if err := m.appendHistory(ctx, s); err != nil {
		return err
	}
	m.log.Info().Str("sessionID", id).Int("retryCount", s.RetryCount).Msg("session complete")
	m.publish(event.SessionCompleted, event.SessionData{Info: s.Clone()})
	m.recordQuietly(ctx, types.InteractionExtractionCompleted, s)
	return nil
}

// FailSession moves the session to failed with message and appends a
// history entry.
func (m *Manager) FailSession(ctx context.Context, id string, message string) error {
	if err := m.check(); err != nil {
		return err
	}
	if message == "" {
		message = "unknown error"
	}

	unlock, err := m.lockSession(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if s.Status.Terminal() {
		return transitionErr(s, types.StatusFailed)
	}

	now := m.clock.Now()
	s.Status = types.StatusFailed
	s.Error = message
	s.EndTime = &now
	s.UpdatedTime = now
	if err := m.save(ctx, s); err != nil {
		return err
	}

	if err := m.appendHistory(ctx, s); err != nil {
		return err
	}
	m.log.Info().Str("sessionID", id).Str("error", message).Int("retryCount", s.RetryCount).Msg("session failed")
	m.publish(event.SessionFailed, event.SessionData{Info: s.Clone()})
	m.recordQuietly(ctx, types.InteractionExtractionFailed, s)
	return nil
}

// RetryExtraction restarts a failed session if the retry policy permits.
// It returns false, leaving the session untouched, once retries are
// exhausted. Sessions that are not failed cannot be retried.
func (m *Manager) RetryExtraction(ctx context.Context, id string) (bool, error) {
	if err := m.check(); err != nil {
		return false, err
	}

	unlock, err := m.lockSession(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	s, err := m.load(ctx, id)
	if err != nil {
		return false, err
	}
	if s.Status != types.StatusFailed {
		return false, transitionErr(s, types.StatusStarted)
	}
	if !m.policy.MayRetry(s.RetryCount, m.maxRetries) {
		m.log.Debug().Str("sessionID", id).Int("retryCount", s.RetryCount).Msg("retries exhausted")
		return false, nil
	}

	s.RetryCount++
	s.Status = types.StatusStarted
	s.Error = ""
	s.EndTime = nil
	s.ExtractedContent = nil
	s.PendingContent = nil
	s.UpdatedTime = m.clock.Now()
	if err := m.save(ctx, s); err != nil {
		return false, err
	}

	m.log.Info().Str("sessionID", id).Int("retryCount", s.RetryCount).Msg("session retried")
	m.publish(event.SessionRetried, event.SessionData{Info: s.Clone()})
	m.recordQuietly(ctx, types.InteractionExtractionRetried, s)
	return true, nil
}

// RetriesExhausted reports whether a failed session can no longer be retried.
func (m *Manager) RetriesExhausted(ctx context.Context, id string) (bool, error) {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return false, err
	}
	return s.Status == types.StatusFailed && !m.policy.MayRetry(s.RetryCount, m.maxRetries), nil
}

// NextRetryDelay is the policy's wait before the session's next attempt.
func (m *Manager) NextRetryDelay(ctx context.Context, id string) (time.Duration, error) {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return 0, err
	}
	return m.policy.Delay(s.RetryCount), nil
}

// CleanupExpiredSessions removes sessions whose start time is older than the
// configured max age, regardless of status, together with their interaction
// events. History is kept. It returns the number of sessions removed.
func (m *Manager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	cutoff := m.clock.Now().Add(-m.maxAge)

	all, err := m.allSessions(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, s := range all {
		if !s.StartTime.Before(cutoff) {
			continue
		}
		ok, err := m.expire(ctx, s.ID, cutoff)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		m.log.Info().Int("removed", removed).Msg("expired sessions removed")
	}
	return removed, nil
}

// lockSession serializes read-modify-write of one session. Stores that can
// hold a document across processes are asked to as well.
func (m *Manager) lockSession(ctx context.Context, id string) (func(), error) {
	unlock := m.locks.lock(id)
	l, ok := m.store.(storage.Locker)
	if !ok || id == "" {
		return unlock, nil
	}
	release, err := l.Hold(ctx, []string{"session", id})
	if err != nil {
		unlock()
		return nil, fmt.Errorf("lock session %s: %w", id, err)
	}
	return func() {
		release()
		unlock()
	}, nil
}

func (m *Manager) expire(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	unlock, err := m.lockSession(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	s, err := m.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !s.StartTime.Before(cutoff) {
		return false, nil
	}

	if err := m.store.Delete(ctx, []string{"session", id}); err != nil {
		return false, fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if err := m.deleteEvents(ctx, id); err != nil {
		return true, err
	}
	m.publish(event.SessionExpired, event.SessionExpiredData{SessionID: id, SourceURL: s.SourceURL})
	return true, nil
}

func (m *Manager) check() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (m *Manager) load(ctx context.Context, id string) (*types.ExtractionSession, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrNotFound)
	}
	var s types.ExtractionSession
	if err := m.store.Get(ctx, []string{"session", id}, &s); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return &s, nil
}

func (m *Manager) save(ctx context.Context, s *types.ExtractionSession) error {
	if err := m.store.Put(ctx, []string{"session", s.ID}, s); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

func (m *Manager) allSessions(ctx context.Context) ([]*types.ExtractionSession, error) {
	var out []*types.ExtractionSession
	err := m.store.Scan(ctx, []string{"session"}, func(key string, data json.RawMessage) error {
		var s types.ExtractionSession
		if err := json.Unmarshal(data, &s); err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("skipping unreadable session")
			return nil
		}
		out = append(out, &s)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return out, nil
}

func (m *Manager) publish(t event.EventType, data any) {
	if m.bus == nil {
		return
	}
	m.bus.PublishSync(event.Event{Type: t, Data: data})
}
