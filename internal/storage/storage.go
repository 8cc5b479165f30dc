// Package storage provides the session store: a namespaced key-value
// collection addressed by path segments, with file, in-memory, SQLite and
// Redis backends plus a fallback wrapper.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by Get when no value exists at a path.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks a backend that cannot currently serve requests.
	// Callers are expected to route to an alternate store (see Fallback).
	ErrUnavailable = errors.New("store unavailable")

	errClosed = errors.New("store closed")
)

// Store is the persistence contract used by the session manager.
//
// Paths are slices of segments such as {"session", id}. List returns the
// names of the direct children of a path (values and sub-collections), and
// Scan visits the values directly under a path. Both yield keys in
// ascending lexical order, so ULID keys come back in insertion order.
type Store interface {
	Get(ctx context.Context, path []string, v any) error
	Put(ctx context.Context, path []string, v any) error
	Delete(ctx context.Context, path []string) error
	List(ctx context.Context, path []string) ([]string, error)
	Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error
	Close() error
}

// Locker is implemented by stores that can hold a document against other
// processes for the length of a read-modify-write. Hold blocks until the
// document is held or ctx is done; release must be called exactly once.
type Locker interface {
	Hold(ctx context.Context, path []string) (release func(), err error)
}

// validatePath rejects segments that would escape or alias other keys.
func validatePath(path []string) error {
	if len(path) == 0 {
		return errors.New("empty path")
	}
	for _, p := range path {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\:`) {
			return fmt.Errorf("invalid path segment %q", p)
		}
	}
	return nil
}

func joinPath(path []string) string {
	return strings.Join(path, "/")
}

// unavailable wraps a backend failure so errors.Is(err, ErrUnavailable) holds.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
