// Package app assembles the store, event bus, session manager and generation
// orchestrator from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/config"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/event"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/generation"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/logging"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/retry"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/server"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/session"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/storage"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// ErrNoEndpoint is returned by Generation when no endpoint is configured.
var ErrNoEndpoint = errors.New("no generation endpoint configured")

// App holds the wired components.
type App struct {
	Config  *types.Config
	Store   storage.Store
	Bus     *event.Bus
	Manager *session.Manager

	// Orchestrator is nil when no generation endpoint is configured.
	Orchestrator *generation.Orchestrator
}

// Load reads the configuration for directory and builds an App.
func Load(ctx context.Context, directory string) (*App, error) {
	cfg, err := config.Load(directory)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New builds an App from cfg.
func New(ctx context.Context, cfg *types.Config) (*App, error) {
	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus()
	manager := session.NewManager(store, ManagerOptions(cfg, bus)...)

	a := &App{
		Config:  cfg,
		Store:   store,
		Bus:     bus,
		Manager: manager,
	}
	if cfg.Generation.Endpoint != "" {
		a.Orchestrator = NewOrchestrator(cfg.Generation, manager, bus)
	}
	return a, nil
}

// Generation returns the orchestrator or ErrNoEndpoint.
func (a *App) Generation() (*generation.Orchestrator, error) {
	if a.Orchestrator == nil {
		return nil, ErrNoEndpoint
	}
	return a.Orchestrator, nil
}

// Server builds the HTTP server from the server and session settings.
func (a *App) Server() *server.Server {
	cfg := server.DefaultConfig()
	if a.Config.Server.Port != 0 {
		cfg.Port = a.Config.Server.Port
	}
	if a.Config.Server.Hostname != "" {
		cfg.Hostname = a.Config.Server.Hostname
	}
	if a.Config.Server.EnableCORS != nil {
		cfg.EnableCORS = *a.Config.Server.EnableCORS
	}
	cfg.CleanupInterval = a.Config.Session.CleanupInterval.Std()
	cfg.GenerationTimeout = a.Config.Generation.Timeout.Std()
	return server.New(cfg, a.Manager, a.Orchestrator, a.Bus)
}

// Close releases the manager, its store and the bus.
func (a *App) Close() error {
	err := a.Manager.Close()
	if berr := a.Bus.Close(); err == nil {
		err = berr
	}
	return err
}

// OpenStore opens the configured backend. When the primary cannot be reached
// and a fallback is configured, the fallback serves alone; a primary that
// fails later is wrapped so calls degrade to the fallback.
func OpenStore(ctx context.Context, cfg types.StoreConfig) (storage.Store, error) {
	log := logging.Component("app")

	primary, err := openBackend(ctx, cfg.Backend, cfg)
	secondary, ferr := openFallback(ctx, cfg)
	if ferr != nil {
		if primary != nil {
			primary.Close()
		}
		return nil, ferr
	}

	if err != nil {
		if secondary == nil || !errors.Is(err, storage.ErrUnavailable) {
			return nil, err
		}
		log.Warn().Err(err).Str("backend", cfg.Backend).Str("fallback", cfg.Fallback).Msg("store unavailable, using fallback")
		return secondary, nil
	}
	if secondary == nil {
		return primary, nil
	}
	return storage.NewFallback(primary, secondary), nil
}

func openFallback(ctx context.Context, cfg types.StoreConfig) (storage.Store, error) {
	switch cfg.Fallback {
	case "", "none":
		return nil, nil
	case cfg.Backend:
		return nil, nil
	}
	// The file fallback never shares the primary's explicit path.
	return openBackend(ctx, cfg.Fallback, types.StoreConfig{Backend: cfg.Fallback})
}

func openBackend(ctx context.Context, backend string, cfg types.StoreConfig) (storage.Store, error) {
	cfg.Backend = backend
	switch backend {
	case config.BackendFile, "":
		return storage.NewFile(config.StorePath(cfg)), nil
	case config.BackendSQLite:
		return storage.OpenSQLite(config.StorePath(cfg))
	case config.BackendRedis:
		return storage.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	case config.BackendMemory:
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// ManagerOptions maps retry and session settings to manager options.
func ManagerOptions(cfg *types.Config, bus *event.Bus) []session.Option {
	opts := []session.Option{
		session.WithBus(bus),
		session.WithRetryPolicy(retry.FromStrategy(
			cfg.Retry.Strategy,
			cfg.Retry.InitialInterval.Std(),
			cfg.Retry.MaxInterval.Std(),
		)),
	}
	if cfg.Retry.Max != nil {
		opts = append(opts, session.WithMaxRetries(*cfg.Retry.Max))
	}
	s := cfg.Session
	if s.MaxAge > 0 {
		opts = append(opts, session.WithMaxAge(s.MaxAge.Std()))
	}
	if s.HistoryLimit > 0 {
		opts = append(opts, session.WithHistoryLimit(s.HistoryLimit))
	}
	if s.EventLimit > 0 {
		opts = append(opts, session.WithEventLimit(s.EventLimit))
	}
	if s.HistoryRetention > 0 {
		opts = append(opts, session.WithHistoryRetention(s.HistoryRetention.Std()))
	}
	if s.AnalyticsWindow > 0 {
		opts = append(opts, session.WithAnalyticsWindow(s.AnalyticsWindow.Std()))
	}
	return opts
}

// NewOrchestrator builds the streaming client and orchestrator for gen.
func NewOrchestrator(gen types.GenerationConfig, manager *session.Manager, bus *event.Bus) *generation.Orchestrator {
	var clientOpts []generation.ClientOption
	if gen.Token != "" {
		clientOpts = append(clientOpts, generation.WithToken(gen.Token))
	}
	if gen.RequestsPerMinute > 0 {
		clientOpts = append(clientOpts, generation.WithRequestsPerMinute(gen.RequestsPerMinute))
	}

	return generation.NewOrchestrator(manager,
		generation.NewClient(gen.Endpoint, clientOpts...),
		generation.WithEventBus(bus),
		generation.WithIdleTimeout(gen.IdleTimeout.Std()),
	)
}

// InitLogging configures the global logger from cfg. An explicit level
// overrides the configured one.
func InitLogging(cfg types.LogConfig, level string, pretty bool) {
	if level == "" {
		level = cfg.Level
	}
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(level)
	lc.Pretty = pretty || cfg.Pretty
	logging.Init(lc)
}
