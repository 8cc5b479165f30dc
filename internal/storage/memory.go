package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a process-local Store. Values are kept as encoded JSON so
// callers never share mutable state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, path []string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return unavailable("get", errClosed)
	}
	data, ok := s.data[joinPath(path)]
	s.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", joinPath(path), err)
	}
	return nil
}

func (s *MemoryStore) Put(ctx context.Context, path []string, v any) error {
	if err := validatePath(path); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", joinPath(path), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("put", errClosed)
	}
	s.data[joinPath(path)] = data
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path []string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return unavailable("delete", errClosed)
	}
	delete(s.data, joinPath(path))
	return nil
}

func (s *MemoryStore) List(ctx context.Context, path []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, unavailable("list", errClosed)
	}

	prefix := childPrefix(path)
	seen := make(map[string]struct{})
	for key := range s.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name, _, _ := strings.Cut(key[len(prefix):], "/")
		seen[name] = struct{}{}
	}

	items := make([]string, 0, len(seen))
	for name := range seen {
		items = append(items, name)
	}
	sort.Strings(items)
	return items, nil
}

func (s *MemoryStore) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	type kv struct {
		key  string
		data []byte
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return unavailable("scan", errClosed)
	}
	prefix := childPrefix(path)
	var items []kv
	for key, data := range s.data {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		items = append(items, kv{key: rest, data: data})
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].key < items[j].key })
	for _, item := range items {
		if err := fn(item.key, json.RawMessage(item.data)); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the store unusable; later calls fail with ErrUnavailable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func childPrefix(path []string) string {
	if len(path) == 0 {
		return ""
	}
	return joinPath(path) + "/"
}
