// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orphan

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mudcore/internal/task"
	"github.com/ManuGH/mudcore/internal/task/memwatch"
	"github.com/ManuGH/mudcore/internal/task/tracked"
	"github.com/ManuGH/mudcore/internal/testutil"
)

type harness struct {
	reg *task.Registry
	mgr *tracked.Manager
	mon *memwatch.Monitor
	aud *Auditor
}

func newHarness(t *testing.T, cfg Config, th memwatch.Thresholds) *harness {
	t.Helper()
	testutil.VerifyNoLeaks(t)

	reg := task.NewRegistry(task.WithLogger(zerolog.Nop()))
	mgr, err := tracked.New(reg, tracked.Config{CancelWait: time.Second})
	require.NoError(t, err)
	mgr.Reclaim = nil
	mon := memwatch.New(mgr, reg, th,
		memwatch.WithReader(func() (uint64, string, error) { return 1024, "test", nil }),
		memwatch.WithLogger(zerolog.Nop()))
	aud := New(mgr, mon, cfg)
	aud.logger = zerolog.Nop()

	t.Cleanup(func() { reg.ShutdownAll(time.Second) })
	return &harness{reg: reg, mgr: mgr, mon: mon, aud: aud}
}

func parked(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStart_TwiceFails(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Hour}, memwatch.Thresholds{})

	require.NoError(t, h.aud.Start())
	assert.ErrorIs(t, h.aud.Start(), ErrAlreadyRunning)
	assert.True(t, h.aud.Running())

	require.NoError(t, h.aud.Stop())
	assert.False(t, h.aud.Running())
	assert.ErrorIs(t, h.aud.Stop(), ErrNotRunning)

	require.NoError(t, h.aud.Start(), "restart after stop")
	require.NoError(t, h.aud.Stop())
}

func TestStart_RunsAsLifecycleUnit(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Hour}, memwatch.Thresholds{})
	require.NoError(t, h.aud.Start())

	hd, ok := h.reg.Lookup(unitName)
	require.True(t, ok)
	info, ok := h.reg.Describe(hd)
	require.True(t, ok)
	assert.Equal(t, task.CategorySystemLifecycle, info.Category)
	assert.True(t, info.Lifecycle)
	assert.Equal(t, 1, h.reg.LifecycleLen())
}

func TestStart_AfterRegistryShutdownRestarts(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Hour}, memwatch.Thresholds{})
	require.NoError(t, h.aud.Start())
	require.True(t, h.reg.ShutdownAll(time.Second))

	assert.False(t, h.aud.Running())
	require.NoError(t, h.aud.Start())
	require.NoError(t, h.aud.Stop())
}

func TestLoop_AdvancesCountersAndCancelsOrphans(t *testing.T) {
	h := newHarness(t, Config{Interval: 10 * time.Millisecond}, memwatch.Thresholds{})

	rogue, err := h.reg.Register("rogue", task.CategoryBackground, parked)
	require.NoError(t, err)

	require.NoError(t, h.aud.Start())
	require.Eventually(t, func() bool { return h.aud.Stats().Cycles >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, h.aud.Stop())

	assert.False(t, h.reg.Alive(rogue))
	assert.EqualValues(t, 1, h.aud.Stats().Orphans)
}

func TestForceSingleAuditCycle_LeavesCountersUntouched(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Hour}, memwatch.Thresholds{})

	_, err := h.reg.Register("rogue", task.CategoryBackground, parked)
	require.NoError(t, err)

	r := h.aud.ForceSingleAuditCycle(context.Background())
	assert.True(t, r.Manual)
	assert.Equal(t, 1, r.Orphans)
	assert.False(t, r.CleanupRan)
	assert.Equal(t, Stats{}, h.aud.Stats())
}

func TestCycle_ThresholdTriggersCleanupWhenEnabled(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Hour, AutoCleanup: true}, memwatch.Thresholds{MaxTasks: 1})

	for _, name := range []string{"w1", "w2", "w3"} {
		_, err := h.mgr.CreateTracked(name, task.CategoryBackground, parked)
		require.NoError(t, err)
	}

	r := h.aud.ForceSingleAuditCycle(context.Background())
	assert.True(t, r.Exceeded)
	assert.True(t, r.CleanupRan)
	assert.Equal(t, 3, r.Cleanup.Cancelled)
	assert.Zero(t, h.reg.Len())
}

func TestCycle_ThresholdWithoutAutoCleanupOnlyReports(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Hour}, memwatch.Thresholds{MaxTasks: 1})

	for _, name := range []string{"w1", "w2"} {
		_, err := h.mgr.CreateTracked(name, task.CategoryBackground, parked)
		require.NoError(t, err)
	}

	r := h.aud.ForceSingleAuditCycle(context.Background())
	assert.True(t, r.Exceeded)
	assert.False(t, r.CleanupRan)
	assert.Equal(t, 2, h.reg.Len())
}

func TestCycle_OrphansBelowThresholdSpareTrackedWork(t *testing.T) {
	h := newHarness(t, Config{Interval: time.Hour, AutoCleanup: true},
		memwatch.Thresholds{MaxMemoryBytes: 1 << 40, MaxTasks: 1000, Cooldown: time.Hour})

	healthy, err := h.mgr.CreateTracked("healthy-worker", task.CategoryBackground, parked)
	require.NoError(t, err)
	stray, err := h.reg.Register("stray", task.CategoryBackground, parked)
	require.NoError(t, err)

	r := h.aud.ForceSingleAuditCycle(context.Background())
	assert.Equal(t, 1, r.Orphans)
	assert.False(t, r.Exceeded)
	assert.False(t, r.CleanupRan)
	assert.Equal(t, memwatch.SkipBelowThreshold, r.Cleanup.Skipped)

	assert.False(t, h.reg.Alive(stray), "orphan is cancelled by the audit itself")
	assert.True(t, h.reg.Alive(healthy), "tracked work survives an orphan-only audit")
}
