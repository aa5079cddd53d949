// Package breaker implements a three-state circuit breaker used to
// short-circuit calls to a failing provider.
package breaker

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
)

// Config tunes a Breaker's transition thresholds.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultConfig returns the spec default thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		ResetTimeout:     DefaultResetTimeout,
	}
}

func (c Config) sanitize() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	return c
}

// Breaker is a single provider's circuit breaker. All operations are safe
// for concurrent use.
type Breaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// New creates a closed breaker with the given config.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:   cfg.sanitize(),
		state: Closed,
	}
}

// CanExecute reports whether a call may proceed. In the open state it
// transitions to half_open once the reset timeout has elapsed.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if time.Since(b.lastFailure) >= b.cfg.ResetTimeout {
			b.state = HalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess clears failures and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = Closed
}

// RecordFailure increments the failure count and opens the breaker if the
// threshold is reached (or immediately, from half_open).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()

	switch b.state {
	case HalfOpen:
		b.state = Open
		return
	default:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = Open
		}
	}
}

// State returns the current state, applying the open->half_open time check.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.lastFailure) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker back to closed, clearing failures. Used by
// operator tooling, not by the hot path.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
}
