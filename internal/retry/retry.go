// Package retry decides whether a failed extraction may be attempted again
// and how long to wait before doing so.
package retry

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMax is the number of retries allowed when none is configured.
const DefaultMax = 3

// ErrRetryExhausted is reported when a policy refuses another attempt.
var ErrRetryExhausted = errors.New("retries exhausted")

// Policy is consulted with the number of retries already performed.
type Policy interface {
	MayRetry(retryCount, max int) bool
	Delay(retryCount int) time.Duration
}

// Bounded allows retryCount < max attempts and never waits.
type Bounded struct{}

func (Bounded) MayRetry(retryCount, max int) bool { return retryCount < max }

func (Bounded) Delay(int) time.Duration { return 0 }

// Exponential caps retries like Bounded and spaces them with jittered
// exponential backoff.
type Exponential struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// ExponentialOption configures an Exponential policy.
type ExponentialOption func(*Exponential)

// WithInitialInterval sets the wait before the first retry.
func WithInitialInterval(d time.Duration) ExponentialOption {
	return func(e *Exponential) { e.InitialInterval = d }
}

// WithMaxInterval caps a single wait.
func WithMaxInterval(d time.Duration) ExponentialOption {
	return func(e *Exponential) { e.MaxInterval = d }
}

// WithJitter sets the randomization factor; 0 makes delays deterministic.
func WithJitter(factor float64) ExponentialOption {
	return func(e *Exponential) { e.RandomizationFactor = factor }
}

// NewExponential returns a policy starting at one second, doubling up to
// thirty seconds, with 50% jitter.
func NewExponential(opts ...ExponentialOption) *Exponential {
	e := &Exponential{
		InitialInterval:     time.Second,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Exponential) MayRetry(retryCount, max int) bool { return retryCount < max }

// Delay returns the wait before retry number retryCount+1.
func (e *Exponential) Delay(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.InitialInterval
	b.MaxInterval = e.MaxInterval
	b.Multiplier = e.Multiplier
	b.RandomizationFactor = e.RandomizationFactor
	// Elapsed time is bounded by the retry count, not the clock.
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i <= retryCount; i++ {
		d = b.NextBackOff()
	}
	if d < 0 {
		return 0
	}
	return d
}

// FromStrategy maps a configured strategy name to a policy. Unknown names
// fall back to Bounded.
func FromStrategy(name string, initial, max time.Duration) Policy {
	if name != "exponential" {
		return Bounded{}
	}
	var opts []ExponentialOption
	if initial > 0 {
		opts = append(opts, WithInitialInterval(initial))
	}
	if max > 0 {
		opts = append(opts, WithMaxInterval(max))
	}
	return NewExponential(opts...)
}
