// SPDX-License-Identifier: MIT

// Package resilience guards the persistence path: exponential-backoff
// retries for transient store errors and a circuit breaker that sheds
// load once the store is persistently failing.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/vrlearn/adaptd/internal/clock"
	"github.com/vrlearn/adaptd/internal/metrics"
)

// State represents the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned when the breaker rejects a call outright.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker implements a closed → open → half-open state machine.
// Consecutive failures up to the threshold open it; after the reset
// timeout one probe is let through, and its outcome decides between
// closing again and re-opening.
type Breaker struct {
	mu           sync.Mutex
	name         string
	state        State
	failures     int
	threshold    int
	resetTimeout time.Duration
	openedAt     time.Time
	clk          clock.Clock
}

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithBreakerClock overrides the wall clock, for tests.
func WithBreakerClock(c clock.Clock) BreakerOption {
	return func(b *Breaker) { b.clk = c }
}

// NewBreaker creates a circuit breaker named for metrics.
func NewBreaker(name string, threshold int, resetTimeout time.Duration, opts ...BreakerOption) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	b := &Breaker{
		name:         name,
		state:        StateClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clk:          clock.Real{},
	}
	for _, opt := range opts {
		opt(b)
	}
	metrics.SetCircuitBreakerState(b.name, string(b.state))
	return b
}

// Execute runs fn if the breaker admits the call and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.clk.Since(b.openedAt) > b.resetTimeout {
			b.transitionTo(StateHalfOpen)
			return true
		}
		return false
	default: // StateHalfOpen: admit the probe.
		return true
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateHalfOpen {
		metrics.RecordCircuitBreakerTrip(b.name, "half_open_failure")
		b.transitionTo(StateOpen)
		return
	}
	if b.state == StateClosed && b.failures >= b.threshold {
		metrics.RecordCircuitBreakerTrip(b.name, "threshold_exceeded")
		b.transitionTo(StateOpen)
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != StateClosed {
		b.transitionTo(StateClosed)
	}
}

// transitionTo handles state transitions. Caller must hold the lock.
func (b *Breaker) transitionTo(next State) {
	if b.state == next {
		return
	}
	b.state = next
	if next == StateOpen {
		b.openedAt = b.clk.Now()
	}
	metrics.SetCircuitBreakerState(b.name, string(next))
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
