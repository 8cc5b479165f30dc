package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/logging"
)

// Fallback routes calls to a primary store until it reports ErrUnavailable,
// then switches to the secondary for the rest of its life (or until Reset).
// Data written before the switch is not copied.
type Fallback struct {
	primary   Store
	secondary Store
	degraded  atomic.Bool
}

// NewFallback wraps primary with secondary as the degraded-mode store.
func NewFallback(primary, secondary Store) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

// Degraded reports whether calls are currently served by the secondary.
func (f *Fallback) Degraded() bool {
	return f.degraded.Load()
}

// Reset routes calls back to the primary.
func (f *Fallback) Reset() {
	f.degraded.Store(false)
}

func (f *Fallback) do(op string, fn func(Store) error) error {
	if !f.degraded.Load() {
		err := fn(f.primary)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return err
		}
		if f.degraded.CompareAndSwap(false, true) {
			log := logging.Component("storage")
			log.Warn().Err(err).Str("op", op).Msg("primary store unavailable, using fallback")
		}
	}
	return fn(f.secondary)
}

func (f *Fallback) Get(ctx context.Context, path []string, v any) error {
	return f.do("get", func(s Store) error { return s.Get(ctx, path, v) })
}

func (f *Fallback) Put(ctx context.Context, path []string, v any) error {
	return f.do("put", func(s Store) error { return s.Put(ctx, path, v) })
}

func (f *Fallback) Delete(ctx context.Context, path []string) error {
	return f.do("delete", func(s Store) error { return s.Delete(ctx, path) })
}

func (f *Fallback) List(ctx context.Context, path []string) ([]string, error) {
	var items []string
	err := f.do("list", func(s Store) error {
		var err error
		items, err = s.List(ctx, path)
		return err
	})
	return items, err
}

func (f *Fallback) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	return f.do("scan", func(s Store) error { return s.Scan(ctx, path, fn) })
}

// Hold holds path on whichever store is serving calls, when that store is a
// Locker. Otherwise it returns a no-op release.
func (f *Fallback) Hold(ctx context.Context, path []string) (func(), error) {
	release := func() {}
	err := f.do("hold", func(s Store) error {
		l, ok := s.(Locker)
		if !ok {
			return nil
		}
		r, err := l.Hold(ctx, path)
		if err != nil {
			return err
		}
		release = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return release, nil
}

// Close closes both stores and returns the first error.
func (f *Fallback) Close() error {
	err := f.primary.Close()
	if err2 := f.secondary.Close(); err == nil {
		err = err2
	}
	return err
}
