// Package fetch performs upstream requests with per-attempt timeouts and
// exponential backoff between attempts.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrFetchExhausted matches any error returned after the final attempt failed.
var ErrFetchExhausted = errors.New("fetch attempts exhausted")

// ExhaustedError is returned when every attempt failed. It matches
// ErrFetchExhausted and unwraps to the last attempt's error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrFetchExhausted, e.Err}
}

// Policy configures a Retrier.
type Policy struct {
	// Timeout bounds a single attempt. Zero means no per-attempt timeout.
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	// Jitter scales each delay by a uniform factor in [1-Jitter, 1+Jitter].
	// Zero keeps delays deterministic.
	Jitter float64
}

// SingleAttempt is a policy that never retries.
func SingleAttempt(timeout time.Duration) Policy {
	return Policy{Timeout: timeout, MaxAttempts: 1}
}

// Backoff returns the delay that follows the given failed attempt (1-based):
// BaseBackoff * 2^(attempt-1).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseBackoff << (attempt - 1)
}

// State is a step of the retry state machine.
type State int

const (
	StateAttempting State = iota
	StateBackingOff
	StateSucceeded
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateBackingOff:
		return "backing_off"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Attempt describes a state transition reported to the attempt hook.
type Attempt struct {
	Number int
	State  State
	Err    error
	// Delay is set when State is StateBackingOff.
	Delay time.Duration
}

// Retrier runs operations under a Policy. It is safe for concurrent use.
type Retrier struct {
	policy    Policy
	clock     clockwork.Clock
	random    func() float64
	onAttempt func(Attempt)
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithAttemptHook registers a callback invoked on every state transition
// after an attempt completes.
func WithAttemptHook(fn func(Attempt)) Option {
	return func(r *Retrier) { r.onAttempt = fn }
}

// WithRandom replaces the jitter source. fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(r *Retrier) { r.random = fn }
}

// NewRetrier creates a Retrier. A nil clock uses the real clock.
func NewRetrier(policy Policy, clock clockwork.Clock, opts ...Option) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	r := &Retrier{
		policy: policy,
		clock:  clock,
		random: rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the retrier's policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do runs fn until it succeeds or the policy is exhausted. A cancelled ctx
// stops immediately and its error is returned as is.
func Do[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	state := StateAttempting
	attempt := 1
	var lastErr error

	for {
		switch state {
		case StateAttempting:
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			val, err := runAttempt(ctx, r.policy.Timeout, fn)
			if err == nil {
				r.emit(Attempt{Number: attempt, State: StateSucceeded})
				return val, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			lastErr = err
			if attempt >= r.policy.MaxAttempts {
				r.emit(Attempt{Number: attempt, State: StateExhausted, Err: err})
				return zero, &ExhaustedError{Attempts: attempt, Err: lastErr}
			}
			state = StateBackingOff

		case StateBackingOff:
			delay := r.delay(attempt)
			r.emit(Attempt{Number: attempt, State: StateBackingOff, Err: lastErr, Delay: delay})
			if err := sleep(ctx, r.clock, delay); err != nil {
				return zero, err
			}
			attempt++
			state = StateAttempting
		}
	}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := r.policy.Backoff(attempt)
	if r.policy.Jitter <= 0 || d <= 0 {
		return d
	}
	factor := 1 + (r.random()*2-1)*r.policy.Jitter
	return time.Duration(float64(d) * factor)
}

func (r *Retrier) emit(a Attempt) {
	if r.onAttempt != nil {
		r.onAttempt(a)
	}
}

// Sleep waits for d on clock or until ctx is done.
func Sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	return sleep(ctx, clock, d)
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
