// Package retry guards session opens against hosts that keep failing.
//
// Nothing here retries on its own: a tripped breaker makes the next open
// to the same host fail fast until the reset timeout elapses.
package retry

import (
	"fmt"
	"sync"
	"time"

	sserr "sshmcp/internal/errors"
)

// ── Circuit breaker state ────────────────────────────────────────────

// State represents the circuit breaker's operational state.
type State int

const (
	// StateClosed is normal operation; dials pass through.
	StateClosed State = iota
	// StateOpen means the host is failing and dials are rejected.
	StateOpen
	// StateHalfOpen allows a limited number of probes to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ── Configuration ────────────────────────────────────────────────────

// CircuitBreakerConfig configures a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening
	// the circuit (default 5).
	MaxFailures int
	// ResetTimeout is how long the circuit stays open before moving to
	// half-open (default 30s).
	ResetTimeout time.Duration
	// HalfOpenMax is the number of consecutive successes in half-open
	// state required to close the circuit (default 2).
	HalfOpenMax int
	// ShouldTrip decides whether an error counts as a failure.  Errors
	// it rejects leave the counters untouched.  nil counts every error.
	ShouldTrip func(err error) bool
	// OnStateChange is called whenever the state transitions.  It runs
	// under the lock, so keep it fast.
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  2,
	}
}

// ── CircuitBreaker ───────────────────────────────────────────────────

// CircuitBreaker prevents repeated calls to a failing service by
// tracking consecutive failures and short-circuiting when a threshold
// is crossed.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	lastFailure   time.Time
	shouldTrip    func(error) bool
	onStateChange func(from, to State)
	now           func() time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given config.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	maxF := cfg.MaxFailures
	if maxF <= 0 {
		maxF = 5
	}
	rt := cfg.ResetTimeout
	if rt <= 0 {
		rt = 30 * time.Second
	}
	hom := cfg.HalfOpenMax
	if hom <= 0 {
		hom = 2
	}
	return &CircuitBreaker{
		state:         StateClosed,
		maxFailures:   maxF,
		resetTimeout:  rt,
		halfOpenMax:   hom,
		shouldTrip:    cfg.ShouldTrip,
		onStateChange: cfg.OnStateChange,
		now:           time.Now,
	}
}

// Execute runs fn through the circuit breaker.  When the circuit is
// open, fn is not called and an error wrapping [sserr.ErrCircuitOpen]
// is returned immediately.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	cb.afterRequest(err)
	return err
}

// CurrentState returns the current circuit breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset forces the circuit breaker back to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.successes = 0
	cb.transition(StateClosed)
}

// ── internal ─────────────────────────────────────────────────────────

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := cb.now().Sub(cb.lastFailure)
		if elapsed > cb.resetTimeout {
			cb.transition(StateHalfOpen)
			return nil
		}
		remaining := cb.resetTimeout - elapsed
		return fmt.Errorf("%w: %d consecutive failures, retry in %v",
			sserr.ErrCircuitOpen, cb.failures, remaining.Truncate(time.Second))
	case StateHalfOpen:
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && cb.shouldTrip != nil && !cb.shouldTrip(err) {
		return
	}

	if err != nil {
		cb.failures++
		cb.successes = 0
		cb.lastFailure = cb.now()

		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.transition(StateOpen)
		}
	} else {
		cb.successes++

		switch cb.state {
		case StateHalfOpen:
			if cb.successes >= cb.halfOpenMax {
				cb.failures = 0
				cb.transition(StateClosed)
			}
		case StateClosed:
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}

// ── Per-host breakers ────────────────────────────────────────────────

// Breakers lazily creates one [CircuitBreaker] per key (typically
// host:port) sharing a single config.
type Breakers struct {
	mu       sync.Mutex
	cfg      CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewBreakers returns an empty set.  A nil cfg uses the defaults.
func NewBreakers(cfg *CircuitBreakerConfig) *Breakers {
	if cfg == nil {
		cfg = DefaultCircuitBreakerConfig()
	}
	return &Breakers{cfg: *cfg, breakers: make(map[string]*CircuitBreaker)}
}

// For returns the breaker for key, creating it on first use.
func (b *Breakers) For(key string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[key]
	if !ok {
		cfg := b.cfg
		cb = NewCircuitBreaker(&cfg)
		b.breakers[key] = cb
	}
	return cb
}

// Execute runs fn through the breaker for key.  A nil *Breakers runs fn
// unguarded.
func (b *Breakers) Execute(key string, fn func() error) error {
	if b == nil {
		return fn()
	}
	return b.For(key).Execute(fn)
}

// Len returns the number of tracked keys.
func (b *Breakers) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.breakers)
}
