package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/config"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/event"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/retry"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/session"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/storage"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, err := OpenStore(ctx, types.StoreConfig{Backend: config.BackendMemory})
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &storage.MemoryStore{}, store)
	})

	t.Run("file with memory fallback", func(t *testing.T) {
		store, err := OpenStore(ctx, types.StoreConfig{
			Backend:  config.BackendFile,
			Path:     t.TempDir(),
			Fallback: config.BackendMemory,
		})
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &storage.Fallback{}, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := OpenStore(ctx, types.StoreConfig{
			Backend: config.BackendSQLite,
			Path:    filepath.Join(t.TempDir(), "sessions.db"),
		})
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Put(ctx, []string{"session", "a"}, map[string]string{"id": "a"}))
		var got map[string]string
		require.NoError(t, store.Get(ctx, []string{"session", "a"}, &got))
		assert.Equal(t, "a", got["id"])
	})

	t.Run("unreachable redis falls back", func(t *testing.T) {
		store, err := OpenStore(ctx, types.StoreConfig{
			Backend:   config.BackendRedis,
			RedisAddr: "127.0.0.1:1",
			Fallback:  config.BackendMemory,
		})
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &storage.MemoryStore{}, store)
	})

	t.Run("unreachable redis without fallback", func(t *testing.T) {
		_, err := OpenStore(ctx, types.StoreConfig{
			Backend:   config.BackendRedis,
			RedisAddr: "127.0.0.1:1",
			Fallback:  "none",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, storage.ErrUnavailable)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := OpenStore(ctx, types.StoreConfig{Backend: "etcd"})
		require.Error(t, err)
	})
}

func TestManagerOptions(t *testing.T) {
	cfg := config.Defaults()
	max := 5
	cfg.Retry.Max = &max
	cfg.Retry.Strategy = "exponential"
	cfg.Retry.InitialInterval = types.Duration(2 * time.Second)

	bus := event.NewBus()
	defer bus.Close()

	m := session.NewManager(storage.NewMemory(), ManagerOptions(cfg, bus)...)
	defer m.Close()

	assert.Equal(t, 5, m.MaxRetries())
	policy, ok := m.Policy().(*retry.Exponential)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, policy.InitialInterval)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	cfg := config.Defaults()
	cfg.Store.Backend = config.BackendMemory
	cfg.Server.Port = 9999

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Generation()
	assert.ErrorIs(t, err, ErrNoEndpoint)
	assert.Equal(t, "127.0.0.1:9999", a.Server().Addr())
	assert.Equal(t, retry.DefaultMax, a.Manager.MaxRetries())

	cfg.Generation.Endpoint = "http://127.0.0.1:1/generate"
	b, err := New(ctx, cfg)
	require.NoError(t, err)
	defer b.Close()

	orch, err := b.Generation()
	require.NoError(t, err)
	assert.NotNil(t, orch)
}
