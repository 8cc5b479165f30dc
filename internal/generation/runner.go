package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/etiennegwiavander/linguaspark-sub009/internal/retry"
	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// RetrySessions is the part of the session manager the runner needs.
type RetrySessions interface {
	RetryExtraction(ctx context.Context, id string) (bool, error)
	RetriesExhausted(ctx context.Context, id string) (bool, error)
	NextRetryDelay(ctx context.Context, id string) (time.Duration, error)
}

// Runner repeats a generation through the session retry policy.
type Runner struct {
	orch     *Orchestrator
	sessions RetrySessions
}

// NewRunner creates a runner.
func NewRunner(orch *Orchestrator, sessions RetrySessions) *Runner {
	return &Runner{orch: orch, sessions: sessions}
}

// RunWithRetry runs the orchestrator and, after a retryable failure, waits
// the policy delay and retries the session until it succeeds, fails for a
// non-retryable reason, or the policy refuses. The last case returns an
// error matching both retry.ErrRetryExhausted and the last failure.
func (r *Runner) RunWithRetry(ctx context.Context, sessionID string, req *types.GenerationRequest) (*types.Lesson, error) {
	for {
		lesson, err := r.orch.Run(ctx, sessionID, req)
		if err == nil {
			return lesson, nil
		}
		if !Retryable(err) || ctx.Err() != nil {
			return nil, err
		}

		exhausted, xerr := r.sessions.RetriesExhausted(ctx, sessionID)
		if xerr != nil {
			return nil, xerr
		}
		if exhausted {
			return nil, fmt.Errorf("%w: %w", retry.ErrRetryExhausted, err)
		}

		delay, derr := r.sessions.NextRetryDelay(ctx, sessionID)
		if derr != nil {
			return nil, derr
		}
		if delay > 0 {
			r.orch.log.Info().Str("sessionID", sessionID).Dur("delay", delay).Msg("retrying generation")
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
			case <-t.C:
			}
		}

		ok, rerr := r.sessions.RetryExtraction(ctx, sessionID)
		if rerr != nil {
			return nil, rerr
		}
		if !ok {
			return nil, fmt.Errorf("%w: %w", retry.ErrRetryExhausted, err)
		}
	}
}
