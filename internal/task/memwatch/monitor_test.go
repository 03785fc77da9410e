// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package memwatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeCleaner struct {
	cancelled int
	orphans   int
	block     chan struct{}
	panicMsg  string
	calls     atomic.Int32
	reclaim   atomic.Bool
}

func (f *fakeCleaner) CleanupOrphanedTasks(ctx context.Context, forceReclaim bool) int {
	f.calls.Add(1)
	f.reclaim.Store(forceReclaim)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return f.cancelled
}

func (f *fakeCleaner) AuditOrphans(context.Context) int { return f.orphans }

type fixedCount int

func (c fixedCount) Len() int { return int(c) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func reader(bytes uint64) Reader {
	return func() (uint64, string, error) { return bytes, "test", nil }
}

func newMonitor(c Cleaner, tasks int, mem uint64, th Thresholds, clock *fakeClock) *Monitor {
	return New(c, fixedCount(tasks), th,
		WithReader(reader(mem)),
		WithClock(clock.Now),
		WithLogger(zerolog.Nop()))
}

func TestSample_ThresholdsAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	th := Thresholds{MaxMemoryBytes: 1000, MaxTasks: 10}

	cases := []struct {
		name           string
		mem            uint64
		tasks          int
		memEx, tasksEx bool
	}{
		{"below both", 500, 5, false, false},
		{"memory only", 2000, 5, true, false},
		{"tasks only", 500, 11, false, true},
		{"both", 2000, 11, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newMonitor(&fakeCleaner{}, tc.tasks, tc.mem, th, clock).Sample()
			assert.Equal(t, tc.memEx, s.MemoryExceeded)
			assert.Equal(t, tc.tasksEx, s.TasksExceeded)
			assert.Equal(t, tc.memEx || tc.tasksEx, s.Exceeded)
			assert.Equal(t, tc.mem, s.MemoryBytes)
			assert.Equal(t, tc.tasks, s.ActiveTasks)
		})
	}
}

func TestSample_ZeroThresholdDisablesCeiling(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := newMonitor(&fakeCleaner{}, 1<<20, 1<<40, Thresholds{}, clock).Sample()
	assert.False(t, s.Exceeded)
}

func TestRunCleanup_BelowThresholdSkips(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := &fakeCleaner{cancelled: 3}
	m := newMonitor(c, 1, 10, Thresholds{MaxMemoryBytes: 100, MaxTasks: 10}, clock)

	res, err := m.RunCleanup(context.Background(), false, time.Second)
	require.NoError(t, err)
	assert.Equal(t, SkipBelowThreshold, res.Skipped)
	assert.Zero(t, res.Total())
	assert.Zero(t, c.calls.Load())
}

func TestRunCleanup_SumsCleanupAndAudit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := &fakeCleaner{cancelled: 3, orphans: 2}
	m := newMonitor(c, 50, 10, Thresholds{MaxTasks: 10, Cooldown: time.Minute}, clock)

	res, err := m.RunCleanup(context.Background(), false, time.Second)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 5, res.Total())
	assert.False(t, c.reclaim.Load(), "task pressure alone must not reclaim memory")
}

func TestRunCleanup_CooldownGatesUnlessForced(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := &fakeCleaner{cancelled: 1}
	m := newMonitor(c, 0, 5000, Thresholds{MaxMemoryBytes: 100, Cooldown: time.Minute}, clock)

	_, err := m.RunCleanup(context.Background(), false, time.Second)
	require.NoError(t, err)
	assert.True(t, c.reclaim.Load())

	res, err := m.RunCleanup(context.Background(), false, time.Second)
	require.NoError(t, err)
	assert.Equal(t, SkipCooldown, res.Skipped)
	assert.False(t, m.CooldownElapsed())

	res, err = m.RunCleanup(context.Background(), true, time.Second)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.True(t, res.Forced)

	clock.Advance(time.Minute)
	assert.True(t, m.CooldownElapsed())
	res, err = m.RunCleanup(context.Background(), false, time.Second)
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	assert.EqualValues(t, 3, c.calls.Load())
}

func TestRunCleanup_TimeoutIsDistinguished(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := &fakeCleaner{block: make(chan struct{})}
	defer close(c.block)
	m := newMonitor(c, 0, 0, Thresholds{}, clock)

	_, err := m.RunCleanup(context.Background(), true, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrCleanupTimeout)
	assert.NotErrorIs(t, err, ErrCleanupFailed)

	require.Eventually(t, func() bool { return !m.StatusReport().Running }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ErrCleanupTimeout.Error(), m.StatusReport().LastError)
}

func TestRunCleanup_PanicIsReportedAsFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	c := &fakeCleaner{panicMsg: "kaboom"}
	m := newMonitor(c, 0, 0, Thresholds{}, clock)

	_, err := m.RunCleanup(context.Background(), true, time.Second)
	require.ErrorIs(t, err, ErrCleanupFailed)
	assert.Contains(t, err.Error(), "kaboom")

	// The running flag is released so the next pass can proceed.
	c.panicMsg = ""
	_, err = m.RunCleanup(context.Background(), true, time.Second)
	assert.NoError(t, err)
}

func TestStatusReport(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	m := newMonitor(&fakeCleaner{}, 4, 2048, Thresholds{MaxMemoryBytes: 1024}, clock)

	r := m.StatusReport()
	assert.True(t, r.Sample.Exceeded)
	assert.Nil(t, r.LastCleanup)
	assert.Zero(t, r.CleanupRuns)

	m.SetThresholds(Thresholds{MaxMemoryBytes: 4096})
	r = m.StatusReport()
	assert.False(t, r.Sample.Exceeded)
	assert.Equal(t, uint64(4096), r.Thresholds.MaxMemoryBytes)
}

func TestReadResident(t *testing.T) {
	bytes, source, err := ReadResident()
	require.NoError(t, err)
	assert.NotZero(t, bytes)
	assert.Contains(t, []string{"procfs", "runtime"}, source)
}
