package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/analytics"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/event"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// appendHistory records the terminal outcome of s and trims the log to the
// rolling capacity, oldest first.
func (m *Manager) appendHistory(ctx context.Context, s *types.ExtractionSession) error {
	m.histMu.Lock()
	defer m.histMu.Unlock()

	retries := s.RetryCount
	entry := types.HistoryEntry{
		ID:         m.ids.next(),
		URL:        s.SourceURL,
		Timestamp:  m.clock.Now(),
		Status:     s.Status,
		Error:      s.Error,
		SessionID:  s.ID,
		RetryCount: &retries,
	}
	if err := m.store.Put(ctx, []string{"history", entry.ID}, entry); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	if m.historyLimit <= 0 {
		return nil
	}
	keys, err := m.store.List(ctx, []string{"history"})
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	for i := 0; i < len(keys)-m.historyLimit; i++ {
		if err := m.store.Delete(ctx, []string{"history", keys[i]}); err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}
	return nil
}

func (m *Manager) history(ctx context.Context) ([]types.HistoryEntry, error) {
	var entries []types.HistoryEntry
	err := m.store.Scan(ctx, []string{"history"}, func(key string, data json.RawMessage) error {
		var e types.HistoryEntry
		if err := json.Unmarshal(data, &e); err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("skipping unreadable history entry")
			return nil
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	return entries, nil
}

// GetExtractionHistory returns history entries, most recent first. A limit
// of zero or less returns all entries.
func (m *Manager) GetExtractionHistory(ctx context.Context, limit int) ([]types.HistoryEntry, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	entries, err := m.history(ctx)
	if err != nil {
		return nil, err
	}
	reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	return entries, nil
}

// PruneHistory removes entries older than the retention period and returns
// how many were removed. Without a retention period it does nothing.
func (m *Manager) PruneHistory(ctx context.Context) (int, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	if m.historyRetention <= 0 {
		return 0, nil
	}

	m.histMu.Lock()
	defer m.histMu.Unlock()

	cutoff := m.clock.Now().Add(-m.historyRetention)
	entries, err := m.history(ctx)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			continue
		}
		if err := m.store.Delete(ctx, []string{"history", e.ID}); err != nil {
			return pruned, fmt.Errorf("failed to prune history: %w", err)
		}
		pruned++
	}
	return pruned, nil
}

// GetAnalyticsSummary summarizes a snapshot of the history log.
func (m *Manager) GetAnalyticsSummary(ctx context.Context) (*types.AnalyticsSummary, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	entries, err := m.history(ctx)
	if err != nil {
		return nil, err
	}

	var opts analytics.Options
	if m.analyticsWindow > 0 {
		opts.Since = m.clock.Now().Add(-m.analyticsWindow)
	}
	summary := analytics.SummarizeWith(entries, opts)
	return &summary, nil
}

// RecordInteraction appends a telemetry event.
func (m *Manager) RecordInteraction(ctx context.Context, eventType, sessionID, url string) error {
	if err := m.check(); err != nil {
		return err
	}
	if eventType == "" || sessionID == "" {
		return fmt.Errorf("%w: event type and session ID are required", ErrInvalidInput)
	}

	e := types.InteractionEvent{
		ID:        m.ids.next(),
		EventType: eventType,
		SessionID: sessionID,
		URL:       url,
		Timestamp: m.clock.Now(),
	}
	if err := m.appendEvent(ctx, e); err != nil {
		return err
	}
	m.publish(event.InteractionRecorded, event.InteractionRecordedData{Event: &e})
	return nil
}

// recordQuietly records a lifecycle interaction. Telemetry failures are
// logged and never fail the transition that produced them.
func (m *Manager) recordQuietly(ctx context.Context, eventType string, s *types.ExtractionSession) {
	if err := m.RecordInteraction(ctx, eventType, s.ID, s.SourceURL); err != nil {
		m.log.Warn().Err(err).Str("sessionID", s.ID).Str("eventType", eventType).Msg("interaction not recorded")
	}
}

func (m *Manager) appendEvent(ctx context.Context, e types.InteractionEvent) error {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()

	if err := m.store.Put(ctx, []string{"event", e.SessionID, e.ID}, e); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	if m.eventLimit <= 0 {
		return nil
	}

	refs, err := m.eventRefs(ctx)
	if err != nil {
		return err
	}
	for i := 0; i < len(refs)-m.eventLimit; i++ {
		if err := m.store.Delete(ctx, []string{"event", refs[i].sessionID, refs[i].id}); err != nil {
			return fmt.Errorf("failed to trim events: %w", err)
		}
	}
	return nil
}

type eventRef struct {
	sessionID string
	id        string
}

// eventRefs lists every stored event in insertion order.
func (m *Manager) eventRefs(ctx context.Context) ([]eventRef, error) {
	sessions, err := m.store.List(ctx, []string{"event"})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	var refs []eventRef
	for _, sid := range sessions {
		ids, err := m.store.List(ctx, []string{"event", sid})
		if err != nil {
			return nil, fmt.Errorf("failed to list events: %w", err)
		}
		for _, id := range ids {
			refs = append(refs, eventRef{sessionID: sid, id: id})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].id < refs[j].id })
	return refs, nil
}

// GetInteractionEvents returns interaction events, most recent first. A
// limit of zero or less returns all events.
func (m *Manager) GetInteractionEvents(ctx context.Context, limit int) ([]types.InteractionEvent, error) {
	if err := m.check(); err != nil {
		return nil, err
	}

	sessions, err := m.store.List(ctx, []string{"event"})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	events := []types.InteractionEvent{}
	for _, sid := range sessions {
		err := m.store.Scan(ctx, []string{"event", sid}, func(key string, data json.RawMessage) error {
			var e types.InteractionEvent
			if err := json.Unmarshal(data, &e); err != nil {
				m.log.Warn().Err(err).Str("key", key).Msg("skipping unreadable event")
				return nil
			}
			events = append(events, e)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan events: %w", err)
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].ID > events[j].ID })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (m *Manager) deleteEvents(ctx context.Context, sessionID string) error {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()

	ids, err := m.store.List(ctx, []string{"event", sessionID})
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	for _, id := range ids {
		if err := m.store.Delete(ctx, []string{"event", sessionID, id}); err != nil {
			return fmt.Errorf("failed to delete event: %w", err)
		}
	}
	return nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
