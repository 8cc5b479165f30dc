// Package server provides the HTTP API for the lesson pipeline.
//
// The server exposes extraction sessions, lesson generation, history and
// analytics over JSON, and relays bus events to clients over Server-Sent
// Events.
//
// # API Endpoints
//
//   - GET /health: liveness and retry configuration
//   - GET|POST /session: list active sessions, start a session
//   - GET|PATCH /session/{sessionID}: read or advance a session
//   - POST /session/{sessionID}/complete|fail|retry: terminal transitions and retries
//   - POST /session/{sessionID}/generate: stream a lesson from the generation service
//   - GET /history, GET /analytics: finished extractions and their summary
//   - GET|POST /interaction: interaction telemetry
//   - POST /maintenance/cleanup: expire stale sessions and prune history
//   - GET /event: SSE stream, optionally filtered with ?sessionID=
//
// # Errors
//
// Failures use a single envelope:
//
//	{"error": {"code": "NOT_FOUND", "message": "...", "details": {...}}}
//
// Invalid transitions map to 409, upstream generation failures to 502,
// generation timeouts to 504 and abandoned requests to 499.
//
// # Usage
//
//	srv := server.New(server.DefaultConfig(), manager, orch, bus)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
