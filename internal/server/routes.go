package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	// Session routes
	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.updateSession)
			r.Post("/complete", s.completeSession)
			r.Post("/fail", s.failSession)
			r.Post("/retry", s.retrySession)
			r.Post("/generate", s.generate) // Runs the streamed generation
		})
	})

	r.Get("/history", s.getHistory)
	r.Get("/analytics", s.getAnalytics)

	r.Route("/interaction", func(r chi.Router) {
		r.Get("/", s.listInteractions)
		r.Post("/", s.recordInteraction)
	})

	r.Post("/maintenance/cleanup", s.cleanup)

	// Event streaming (SSE)
	r.Get("/event", s.events)
}
