// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBackend = errors.New("backend down")

func fail() error { return errBackend }
func ok() error   { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clk := &manualClock{now: time.Unix(1000, 0)}
	cb := NewCircuitBreaker("test_open", 3, time.Second, WithClock(clk))

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, cb.Execute(fail), errBackend)
		assert.Equal(t, StateClosed, cb.State())
	}
	require.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test_reset", 2, time.Second)
	_ = cb.Execute(fail)
	require.NoError(t, cb.Execute(ok))
	_ = cb.Execute(fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	clk := &manualClock{now: time.Unix(1000, 0)}
	cb := NewCircuitBreaker("test_trial", 1, time.Second, WithClock(clk))

	_ = cb.Execute(fail)
	require.Equal(t, StateOpen, cb.State())

	clk.Advance(time.Second)
	require.ErrorIs(t, cb.Execute(fail), errBackend)
	assert.Equal(t, StateOpen, cb.State(), "failed trial reopens")

	clk.Advance(time.Second)
	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_SingleTrialWhileHalfOpen(t *testing.T) {
	clk := &manualClock{now: time.Unix(1000, 0)}
	cb := NewCircuitBreaker("test_single_trial", 1, time.Second, WithClock(clk))
	_ = cb.Execute(fail)
	clk.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, cb.Execute(ok), ErrCircuitOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	notFound := errors.New("not found")
	cb := NewCircuitBreaker("test_ignore", 1, time.Second,
		WithIgnore(func(err error) bool { return errors.Is(err, notFound) }))

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return notFound }), notFound)
	}
	assert.Equal(t, StateClosed, cb.State())
}
