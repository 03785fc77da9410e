// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience guards fallible collaborators so a failing backend is
// skipped quickly instead of stalling every caller.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/mudcore/internal/metrics"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

var ErrCircuitOpen = errors.New("resilience: circuit open")

// Clock supplies the current time; tests substitute a manual one.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitBreaker opens after threshold consecutive failures and lets a
// single trial call through once resetTimeout has passed.
type CircuitBreaker struct {
	mu           sync.Mutex
	name          string
	state         State
	failures      int
	threshold     int
	resetTimeout  time.Duration
	openedAt      time.Time
	trialInFlight bool
	clock         Clock
	ignore        func(error) bool
}

type Option func(*CircuitBreaker)

func WithClock(c Clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithIgnore marks errors that are answers rather than failures,
// e.g. a not-found lookup.
func WithIgnore(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.ignore = fn }
}

func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	cb := &CircuitBreaker{
		name:         name,
		state:        StateClosed,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		clock:        realClock{},
	}
	for _, opt := range opts {
		opt(cb)
	}
	metrics.SetBreakerState(cb.name, string(cb.state))
	return cb
}

// Execute runs fn unless the breaker is open. Errors accepted by the ignore
// predicate are returned but count as success.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, ok := cb.allow()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	if err != nil && (cb.ignore == nil || !cb.ignore(err)) {
		cb.recordFailure(trial)
		return err
	}
	cb.recordSuccess(trial)
	return err
}

func (cb *CircuitBreaker) allow() (trial bool, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, false
		}
		cb.transitionTo(StateHalfOpen)
		cb.trialInFlight = true
		return true, true
	default:
		// One trial call at a time while half-open.
		if cb.trialInFlight {
			return false, false
		}
		cb.trialInFlight = true
		return true, true
	}
}

func (cb *CircuitBreaker) recordFailure(trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if trial {
		cb.trialInFlight = false
	}
	switch {
	case cb.state == StateHalfOpen && trial:
		metrics.RecordBreakerTrip(cb.name, "trial_failed")
		cb.transitionTo(StateOpen)
	case cb.state == StateClosed && cb.failures >= cb.threshold:
		metrics.RecordBreakerTrip(cb.name, "threshold")
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess(trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialInFlight = false
	}
	cb.failures = 0
	cb.transitionTo(StateClosed)
}

// caller holds mu
func (cb *CircuitBreaker) transitionTo(s State) {
	if cb.state == s {
		return
	}
	cb.state = s
	if s == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	metrics.SetBreakerState(cb.name, string(s))
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name is the component label used in metrics and logs.
func (cb *CircuitBreaker) Name() string { return cb.name }
