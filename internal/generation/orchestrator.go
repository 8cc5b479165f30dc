// Package generation consumes the streamed lesson generation protocol and
// drives extraction session state from it.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/content"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/event"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/logging"
	"github.com/etiennegwiavander/linguaspark-sub009/internal/session"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// Sessions is the part of the session manager the orchestrator drives.
type Sessions interface {
	GetSession(ctx context.Context, id string) (*types.ExtractionSession, error)
	UpdateSession(ctx context.Context, id string, update types.SessionUpdate) error
	CompleteSession(ctx context.Context, id string, content *types.ExtractedContent) error
	FailSession(ctx context.Context, id string, message string) error
}

// Streamer opens a generation stream.
type Streamer interface {
	Stream(ctx context.Context, req *types.GenerationRequest) (io.ReadCloser, error)
}

// ProgressFunc observes progress records of a run.
type ProgressFunc func(sessionID string, ev *ProgressEvent)

// Orchestrator runs one generation per call and keeps the session in step
// with the stream.
type Orchestrator struct {
	sessions    Sessions
	streamer    Streamer
	bus         *event.Bus
	idleTimeout time.Duration
	onProgress  ProgressFunc
	log         zerolog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithEventBus publishes generation.progress events to b.
func WithEventBus(b *event.Bus) OrchestratorOption {
	return func(o *Orchestrator) { o.bus = b }
}

// WithIdleTimeout fails a run whose stream delivers no bytes for d.
func WithIdleTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.idleTimeout = d }
}

// WithProgressHook calls fn for each progress record.
func WithProgressHook(fn ProgressFunc) OrchestratorOption {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(sessions Sessions, streamer Streamer, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		sessions: sessions,
		streamer: streamer,
		log:      logging.Component("generation"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type readResult struct {
	data []byte
	err  error
}

// Run generates a lesson for the session. Any failure other than an unknown
// or already terminal session is recorded on the session through
// FailSession before it is returned.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, req *types.GenerationRequest) (*types.Lesson, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return nil, &session.TransitionError{SessionID: sessionID, From: s.Status, To: types.StatusExtracting}
	}

	status := s.Status
	if status == types.StatusStarted {
		if err := o.sessions.UpdateSession(ctx, sessionID, types.SessionUpdate{Status: types.StatusExtracting}); err != nil {
			return nil, o.writeFailed(ctx, sessionID, err)
		}
		status = types.StatusExtracting
	}

	log := o.log.With().Str("sessionID", sessionID).Logger()
	log.Info().Str("url", req.SourceURL).Msg("generation started")

	body, err := o.streamer.Stream(ctx, req)
	if err != nil {
		return nil, o.fail(ctx, sessionID, err)
	}
	defer body.Close()

	chunks := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go readBody(body, chunks, done)

	var idle <-chan time.Time
	var timer *time.Timer
	if o.idleTimeout > 0 {
		timer = time.NewTimer(o.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	parser := NewParser()
	for {
		select {
		case <-ctx.Done():
			return nil, o.fail(ctx, sessionID, ctx.Err())

		case <-idle:
			return nil, o.fail(ctx, sessionID, fmt.Errorf("%w: no data for %s", ErrTimeout, o.idleTimeout))

		case r := <-chunks:
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(o.idleTimeout)
			}

			events := parser.Feed(r.data)
			if errors.Is(r.err, io.EOF) {
				events = append(events, parser.Flush()...)
			}
			for _, ev := range events {
				lesson, finished, err := o.dispatch(ctx, sessionID, req, ev, &status)
				if finished {
					return lesson, err
				}
			}

			switch {
			case r.err == nil:
			case errors.Is(r.err, io.EOF):
				log.Warn().Int("dropped", parser.Dropped).Msg("stream ended without a terminal event")
				return nil, o.fail(ctx, sessionID, ErrNoTerminalEvent)
			case ctx.Err() != nil:
				return nil, o.fail(ctx, sessionID, ctx.Err())
			default:
				return nil, o.fail(ctx, sessionID, fmt.Errorf("%w: %v", ErrTransport, r.err))
			}
		}
	}
}

// dispatch applies one event. finished reports that the run is over.
func (o *Orchestrator) dispatch(ctx context.Context, sessionID string, req *types.GenerationRequest, ev Event, status *types.SessionStatus) (*types.Lesson, bool, error) {
	switch ev := ev.(type) {
	case *ProgressEvent:
		if target := statusForProgress(ev); target != "" && target != *status && session.CanAdvance(*status, target) {
			if err := o.sessions.UpdateSession(ctx, sessionID, types.SessionUpdate{Status: target}); err != nil {
				return nil, true, o.writeFailed(ctx, sessionID, err)
			}
			*status = target
		}
		o.log.Debug().Str("sessionID", sessionID).Str("step", ev.Step).Float64("progress", ev.Progress).Msg("progress")
		if o.bus != nil {
			o.bus.Publish(event.Event{
				Type: event.GenerationProgress,
				Data: event.GenerationProgressData{
					SessionID: sessionID,
					Step:      ev.Step,
					Progress:  ev.Progress,
					Phase:     ev.Phase,
					Section:   ev.Section,
					Status:    *status,
				},
			})
		}
		if o.onProgress != nil {
			o.onProgress(sessionID, ev)
		}
		return nil, false, nil

	case *CompleteEvent:
		extracted := content.Build(req, ev.Lesson)
		if err := o.sessions.CompleteSession(context.WithoutCancel(ctx), sessionID, extracted); err != nil {
			return nil, true, o.writeFailed(ctx, sessionID, err)
		}
		o.log.Info().Str("sessionID", sessionID).Str("title", extracted.Title).Msg("generation complete")
		lesson := ev.Lesson
		return &lesson, true, nil

	case *ErrorEvent:
		upstream := &UpstreamError{GenerationError: ev.Error}
		if err := o.sessions.FailSession(context.WithoutCancel(ctx), sessionID, upstream.Message); err != nil {
			o.log.Error().Err(err).Str("sessionID", sessionID).Msg("failed to record upstream error")
		}
		return nil, true, upstream
	}
	return nil, false, nil
}

// fail normalizes err, records it on the session, and returns it. The
// session write is detached from ctx so a cancelled run is still recorded.
func (o *Orchestrator) fail(ctx context.Context, sessionID string, err error) error {
	var upstream *UpstreamError
	var message string

	switch {
	case errors.As(err, &upstream):
		message = upstream.Message
	case errors.Is(err, ErrTimeout):
		message = "Timeout: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
		message = "Timeout: generation deadline exceeded"
	case errors.Is(err, context.Canceled):
		err = fmt.Errorf("%w: %w", ErrCancelled, err)
		message = "Cancelled: generation abandoned before completion"
	default:
		message = err.Error()
	}

	if ferr := o.sessions.FailSession(context.WithoutCancel(ctx), sessionID, message); ferr != nil {
		o.log.Error().Err(ferr).Str("sessionID", sessionID).Msg("failed to record generation failure")
	}
	o.log.Warn().Err(err).Str("sessionID", sessionID).Msg("generation failed")
	return err
}

// writeFailed handles an error from a session write in the middle of a run.
// A rejected transition or a vanished session is returned as is; anything
// else, such as an unavailable store, still fails the session.
func (o *Orchestrator) writeFailed(ctx context.Context, sessionID string, err error) error {
	if errors.Is(err, session.ErrInvalidTransition) || errors.Is(err, session.ErrNotFound) {
		return err
	}
	return o.fail(ctx, sessionID, err)
}

// readBody forwards body reads until an error or until done is closed.
func readBody(body io.Reader, out chan<- readResult, done <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		var data []byte
		if n > 0 {
			data = append([]byte(nil), buf[:n]...)
		}
		if n > 0 || err != nil {
			select {
			case out <- readResult{data: data, err: err}:
			case <-done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}
