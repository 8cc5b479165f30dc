package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/event"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/generation"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/logging"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/session"
)

// Config holds server configuration.
type Config struct {
	Port         int
	Hostname     string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// CleanupInterval runs the expiry sweep and history pruning. Zero disables it.
	CleanupInterval time.Duration
	// GenerationTimeout bounds one generate request. Zero means no limit.
	GenerationTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:            8420,
		Hostname:        "127.0.0.1",
		EnableCORS:      true,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0, // No write timeout for SSE and streamed generation
		CleanupInterval: time.Hour,
	}
}

// Server is the HTTP server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server
	log     zerolog.Logger

	manager *session.Manager
	orch    *generation.Orchestrator
	runner  *generation.Runner
	bus     *event.Bus

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a new Server instance. orch may be nil, in which case the
// generate endpoint reports that no generation service is configured.
func New(cfg *Config, manager *session.Manager, orch *generation.Orchestrator, bus *event.Bus) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if bus == nil {
		bus = event.Default()
	}
	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		log:     logging.Component("server"),
		manager: manager,
		orch:    orch,
		bus:     bus,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if orch != nil {
		s.runner = generation.NewRunner(orch, manager)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// requestLogger logs each request through zerolog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("requestID", middleware.GetReqID(r.Context())).
				Msg("request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Hostname, strconv.Itoa(s.config.Port))
}

// Start starts the cleanup loop and the HTTP server. It blocks until the
// server stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go s.cleanupLoop()

	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("server listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.httpSrv == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	select {
	case <-s.done:
	case <-ctx.Done():
	}
	return nil
}

// cleanupLoop periodically removes expired sessions and prunes history.
func (s *Server) cleanupLoop() {
	defer close(s.done)
	if s.config.CleanupInterval <= 0 {
		<-s.stop
		return
	}

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if _, _, err := s.runCleanup(context.Background()); err != nil {
				s.log.Warn().Err(err).Msg("scheduled cleanup failed")
			}
		}
	}
}

// runCleanup runs one expiry sweep and history prune.
func (s *Server) runCleanup(ctx context.Context) (removed, pruned int, err error) {
	removed, err = s.manager.CleanupExpiredSessions(ctx)
	if err != nil {
		return removed, 0, err
	}
	pruned, err = s.manager.PruneHistory(ctx)
	if err != nil {
		return removed, pruned, err
	}
	if removed > 0 || pruned > 0 {
		s.log.Info().Int("removed", removed).Int("historyPruned", pruned).Msg("cleanup")
	}
	return removed, pruned, nil
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
