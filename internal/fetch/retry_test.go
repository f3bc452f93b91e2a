package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type result struct {
	val string
	err error
}

func TestPolicyBackoff(t *testing.T) {
	p := Policy{BaseBackoff: 750 * time.Millisecond}
	assert.Equal(t, 750*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 1500*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 3000*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 750*time.Millisecond, p.Backoff(0))
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	r := NewRetrier(Policy{MaxAttempts: 3, BaseBackoff: time.Second}, clockwork.NewFakeClock())

	calls := 0
	val, err := Do(context.Background(), r, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesWithExponentialBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(start)

	var mu sync.Mutex
	var transitions []Attempt
	r := NewRetrier(Policy{Timeout: time.Second, MaxAttempts: 3, BaseBackoff: 750 * time.Millisecond}, fc,
		WithAttemptHook(func(a Attempt) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, a)
		}))

	calls := 0
	done := make(chan result, 1)
	go func() {
		val, err := Do(ctx, r, func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errBoom
			}
			return "payload", nil
		})
		done <- result{val, err}
	}()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(750 * time.Millisecond)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(1500 * time.Millisecond)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "payload", res.val)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2250*time.Millisecond, fc.Since(start))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 3)
	assert.Equal(t, StateBackingOff, transitions[0].State)
	assert.Equal(t, 750*time.Millisecond, transitions[0].Delay)
	assert.Equal(t, StateBackingOff, transitions[1].State)
	assert.Equal(t, 1500*time.Millisecond, transitions[1].Delay)
	assert.Equal(t, StateSucceeded, transitions[2].State)
	assert.Equal(t, 3, transitions[2].Number)
}

func TestDoExhausted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fc := clockwork.NewFakeClock()
	r := NewRetrier(Policy{MaxAttempts: 2, BaseBackoff: 100 * time.Millisecond}, fc)

	calls := 0
	done := make(chan result, 1)
	go func() {
		val, err := Do(ctx, r, func(context.Context) (string, error) {
			calls++
			return "", &StatusError{Code: 503, Body: "unavailable"}
		})
		done <- result{val, err}
	}()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(100 * time.Millisecond)

	res := <-done
	require.Error(t, res.err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, res.err, ErrFetchExhausted)

	var exhausted *ExhaustedError
	require.ErrorAs(t, res.err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)

	var status *StatusError
	require.ErrorAs(t, res.err, &status)
	assert.Equal(t, 503, status.Code)
}

func TestDoSingleAttemptDoesNotSleep(t *testing.T) {
	r := NewRetrier(SingleAttempt(time.Second), clockwork.NewFakeClock())

	calls := 0
	_, err := Do(context.Background(), r, func(context.Context) (int, error) {
		calls++
		return 0, errBoom
	})

	assert.ErrorIs(t, err, ErrFetchExhausted)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDoAttemptTimeoutIsRetried(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fc := clockwork.NewFakeClock()
	r := NewRetrier(Policy{Timeout: 10 * time.Millisecond, MaxAttempts: 2, BaseBackoff: time.Second}, fc)

	calls := 0
	done := make(chan result, 1)
	go func() {
		val, err := Do(ctx, r, func(attemptCtx context.Context) (string, error) {
			calls++
			if calls == 1 {
				<-attemptCtx.Done()
				return "", attemptCtx.Err()
			}
			return "second", nil
		})
		done <- result{val, err}
	}()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "second", res.val)
}

func TestDoStopsWhenParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fc := clockwork.NewFakeClock()
	r := NewRetrier(Policy{MaxAttempts: 5, BaseBackoff: time.Minute}, fc)

	calls := 0
	done := make(chan result, 1)
	go func() {
		val, err := Do(ctx, r, func(context.Context) (string, error) {
			calls++
			return "", errBoom
		})
		done <- result{val, err}
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))
	cancel()

	res := <-done
	assert.ErrorIs(t, res.err, context.Canceled)
	assert.NotErrorIs(t, res.err, ErrFetchExhausted)
	assert.Equal(t, 1, calls)
}

func TestDelayJitterBounds(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseBackoff: time.Second, Jitter: 0.5}

	low := NewRetrier(policy, clockwork.NewFakeClock(), WithRandom(func() float64 { return 0 }))
	assert.Equal(t, 500*time.Millisecond, low.delay(1))

	mid := NewRetrier(policy, clockwork.NewFakeClock(), WithRandom(func() float64 { return 0.5 }))
	assert.Equal(t, 2*time.Second, mid.delay(2))

	r := NewRetrier(policy, clockwork.NewFakeClock())
	for i := 0; i < 100; i++ {
		d := r.delay(1)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "backing_off", StateBackingOff.String())
	assert.Equal(t, "exhausted", StateExhausted.String())
}
