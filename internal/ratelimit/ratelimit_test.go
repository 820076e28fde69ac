package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGuard(t *testing.T, openTimeout time.Duration) *Guard {
	t.Helper()
	opts := DefaultOptions()
	opts.MinInterval = time.Millisecond
	opts.OpenTimeout = openTimeout
	return New(opts)
}

func fail(err error) func(ctx context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) { return nil, err }
}

func succeed() func(ctx context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) { return "ok", nil }
}

// S7: three consecutive failures move the breaker to open; calls within the
// open timeout return without reaching the guarded function at all; after
// the timeout elapses, exactly one probe is admitted, and on success the
// breaker returns to closed with its failure count reset.
func TestGuard_S7_CircuitBreakerLifecycle(t *testing.T) {
	// OpenTimeout is scaled down from the spec's 30s default so the test
	// does not need to sleep in real time for 30 seconds; the state-machine
	// behaviour under test does not depend on the timeout's magnitude.
	const openTimeout = 40 * time.Millisecond
	g := testGuard(t, openTimeout)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Do(ctx, fail(errors.New("upstream unavailable")))
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State())

	// While open, the breaker must refuse the call outright (back-pressure,
	// §5): the guarded function is never invoked.
	called := false
	_, err := g.Do(ctx, func(ctx context.Context) (interface{}, error) {
		called = true
		return nil, nil
	})
	require.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called, "guarded function must not run while the breaker is open")

	time.Sleep(openTimeout + 10*time.Millisecond)

	// Exactly one probe is admitted in half-open; it succeeds, so the
	// breaker returns to closed and the failure count resets.
	result, err := g.Do(ctx, succeed())
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, gobreaker.StateClosed, g.State())

	// The failure count having reset, two more ordinary failures (one short
	// of MaxFailures) must not reopen the breaker.
	for i := 0; i < 2; i++ {
		_, err := g.Do(ctx, fail(errors.New("transient")))
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

// S7 (half-open probe failure): a failing probe during half-open reopens
// the breaker and restarts its timer.
func TestGuard_HalfOpenProbeFailureReopens(t *testing.T) {
	const openTimeout = 40 * time.Millisecond
	g := testGuard(t, openTimeout)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		g.Do(ctx, fail(errors.New("upstream unavailable")))
	}
	require.Equal(t, gobreaker.StateOpen, g.State())

	time.Sleep(openTimeout + 10*time.Millisecond)

	_, err := g.Do(ctx, fail(errors.New("still unavailable")))
	assert.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, g.State())
}

// A terminal (400-class) failure must trip the breaker on its own, even
// though only one failure has occurred and MaxFailures is 3 (§4.10, §7d).
func TestGuard_TerminalFailureTripsImmediately(t *testing.T) {
	g := testGuard(t, time.Second)
	ctx := context.Background()

	_, err := g.Do(ctx, fail(&TerminalError{Err: errors.New("400 bad request")}))
	require.Error(t, err)
	assert.True(t, IsTerminal(err))
	assert.Equal(t, gobreaker.StateOpen, g.State(), "a single terminal failure must trip the breaker")
}

// An ordinary (non-terminal) failure must not trip the breaker before
// MaxFailures consecutive failures have accumulated.
func TestGuard_OrdinaryFailureDoesNotTripBelowThreshold(t *testing.T) {
	g := testGuard(t, time.Second)
	ctx := context.Background()

	_, err := g.Do(ctx, fail(errors.New("transient")))
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateClosed, g.State())
}

func TestGuard_ContextCancellationReleasesLimiterWithoutPanicking(t *testing.T) {
	g := testGuard(t, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Do(ctx, succeed())
	assert.Error(t, err)
}
