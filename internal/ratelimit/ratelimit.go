// Package ratelimit implements the rate limiter + circuit breaker guard
// (C9) placed in front of every external-store call the embedding/upsert
// pipeline makes (§4.10).
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Defaults mirror the spec's named constants (§4.10).
const (
	DefaultMinInterval = 100 * time.Millisecond
	DefaultOpenTimeout  = 30 * time.Second
)

// TerminalError wraps an error the caller has identified as an
// HTTP-400-equivalent response: never retried, and it trips the breaker
// once regardless of the consecutive-failure count (§4.10, §7d).
type TerminalError struct {
	Err error
}

func (t *TerminalError) Error() string { return t.Err.Error() }
func (t *TerminalError) Unwrap() error { return t.Err }

// IsTerminal reports whether err was raised as a TerminalError.
func IsTerminal(err error) bool {
	var terminal *TerminalError
	return errors.As(err, &terminal)
}

// ErrBreakerOpen is gobreaker's own sentinel, returned when the breaker
// refuses a call outright.
var ErrBreakerOpen = gobreaker.ErrOpenState

// Guard bounds concurrency (a minimum inter-call interval, FIFO-fair via
// golang.org/x/time/rate) and failure blast radius (a three-state circuit
// breaker) around calls to an external collaborator.
type Guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	// mu serialises Do calls end-to-end (the "serialised FIFO queue" of
	// §4.10), which also makes terminalSeen safe to read from ReadyToTrip
	// without a separate lock.
	mu sync.Mutex
	// terminalSeen is set by the in-flight call's wrapped closure the
	// moment it observes a TerminalError, and consulted by ReadyToTrip so a
	// single terminal (400-class) failure trips the breaker regardless of
	// the ordinary ConsecutiveFailures threshold (§4.10, §7d).
	terminalSeen bool
}

// Options tunes the guard away from the spec's defaults.
type Options struct {
	MinInterval time.Duration
	MaxFailures uint32
	OpenTimeout time.Duration
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultOptions returns the spec's default tuning: I=100ms, N_fail=3 (the
// indexing service's MAX_RETRIES), T_open=30s.
func DefaultOptions() Options {
	return Options{
		MinInterval: DefaultMinInterval,
		MaxFailures: 3,
		OpenTimeout: DefaultOpenTimeout,
	}
}

// New builds a Guard. The limiter allows a single token burst refilled at
// 1/MinInterval per second, enforcing ≤ ceil(1000/I) calls/s (§4.10).
func New(opts Options) *Guard {
	every := opts.MinInterval
	if every <= 0 {
		every = DefaultMinInterval
	}
	limiter := rate.NewLimiter(rate.Every(every), 1)

	g := &Guard{limiter: limiter}

	settings := gobreaker.Settings{
		Name:        "vector-store-upsert",
		MaxRequests: 1, // exactly one probe admitted in half-open (§4.10)
		Interval:    0, // never reset closed-state counts on a timer
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// A terminal (400-class) failure forces the breaker open on its
			// own, independent of the consecutive-failure count (§4.10,
			// §7d: "trip the breaker once").
			if g.terminalSeen {
				return true
			}
			return counts.ConsecutiveFailures >= opts.MaxFailures
		},
		OnStateChange: opts.OnStateChange,
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultOpenTimeout
	}

	g.breaker = gobreaker.NewCircuitBreaker(settings)
	return g
}

// Do waits for the rate limiter, then executes fn through the circuit
// breaker. A TerminalError from fn is never retried by the caller and
// forces the breaker open on this single failure, regardless of the
// consecutive-failure count (§4.10, §7d); any other error counts as an
// ordinary failure toward the MaxFailures threshold. ctx cancellation
// releases the limiter wait without consuming a token (§5 "cancellation ...
// releases rate-limiter tokens").
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.terminalSeen = false

	return g.breaker.Execute(func() (interface{}, error) {
		result, err := fn(ctx)
		if err != nil && IsTerminal(err) {
			g.terminalSeen = true
		}
		return result, err
	})
}

// State reports the breaker's current state, for metrics/inspection.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}
