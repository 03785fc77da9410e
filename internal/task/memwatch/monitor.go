// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package memwatch samples process memory and the live task count and decides
// when the tracked task manager should shed work.
package memwatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/metrics"
)

var (
	// ErrCleanupTimeout is returned when a cleanup pass exceeds its bound.
	ErrCleanupTimeout = errors.New("memwatch: cleanup timed out")
	// ErrCleanupFailed wraps unexpected failures inside a cleanup pass.
	ErrCleanupFailed = errors.New("memwatch: cleanup failed")
)

// Skip reasons reported in CleanupResult.Skipped.
const (
	SkipCooldown       = "cooldown"
	SkipBelowThreshold = "below_threshold"
	SkipInProgress     = "in_progress"
)

// Cleaner is the part of the tracked task manager a cleanup pass drives.
type Cleaner interface {
	CleanupOrphanedTasks(ctx context.Context, forceReclaim bool) int
	AuditOrphans(ctx context.Context) int
}

// TaskCounter reports the number of live units.
type TaskCounter interface {
	Len() int
}

// Thresholds are the ceilings a sample is compared against. Zero disables a ceiling.
type Thresholds struct {
	MaxMemoryBytes uint64        `json:"max_memory_bytes"`
	MaxTasks       int           `json:"max_tasks"`
	Cooldown       time.Duration `json:"cooldown"`
}

// Sample is a point-in-time reading.
type Sample struct {
	MemoryBytes    uint64    `json:"memory_bytes"`
	Source         string    `json:"source"`
	ActiveTasks    int       `json:"active_tasks"`
	MemoryExceeded bool      `json:"memory_exceeded"`
	TasksExceeded  bool      `json:"tasks_exceeded"`
	Exceeded       bool      `json:"exceeded"`
	TakenAt        time.Time `json:"taken_at"`
}

// CleanupResult describes one RunCleanup call. Skipped is set when no work was done.
type CleanupResult struct {
	Skipped   string        `json:"skipped,omitempty"`
	Forced    bool          `json:"forced"`
	Cancelled int           `json:"cancelled"`
	Orphans   int           `json:"orphans"`
	Duration  time.Duration `json:"duration"`
}

// Total is the sum reported to callers that only want a count.
func (r CleanupResult) Total() int { return r.Cancelled + r.Orphans }

// Reader returns resident memory and the name of the source it came from.
type Reader func() (uint64, string, error)

// Option configures a Monitor.
type Option func(*Monitor)

// WithReader replaces the memory reader.
func WithReader(read Reader) Option { return func(m *Monitor) { m.read = read } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Monitor) { m.now = now } }

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option { return func(m *Monitor) { m.logger = l } }

// Monitor evaluates thresholds and gates cleanup behind a cooldown.
type Monitor struct {
	cleaner Cleaner
	tasks   TaskCounter
	read    Reader
	now     func() time.Time
	logger  zerolog.Logger

	mu          sync.Mutex
	thresholds  Thresholds
	running     bool
	lastCleanup time.Time
	lastResult  CleanupResult
	lastErr     error
	runs        int
}

// New creates a monitor. cleaner and tasks are required.
func New(cleaner Cleaner, tasks TaskCounter, th Thresholds, opts ...Option) *Monitor {
	m := &Monitor{
		cleaner:    cleaner,
		tasks:      tasks,
		read:       ReadResident,
		now:        time.Now,
		logger:     xglog.WithComponent("task.memwatch"),
		thresholds: th,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetThresholds swaps the ceilings; used by config hot reload.
func (m *Monitor) SetThresholds(th Thresholds) {
	m.mu.Lock()
	m.thresholds = th
	m.mu.Unlock()
	m.logger.Info().
		Uint64("max_memory_bytes", th.MaxMemoryBytes).
		Int("max_tasks", th.MaxTasks).
		Dur("cooldown", th.Cooldown).
		Msg("memory thresholds updated")
}

// Thresholds returns the current ceilings.
func (m *Monitor) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

// Sample reads memory and the task count. Memory and task ceilings are
// independent: crossing either one marks the sample exceeded.
func (m *Monitor) Sample() Sample {
	th := m.Thresholds()

	s := Sample{TakenAt: m.now(), ActiveTasks: m.tasks.Len()}
	bytes, source, err := m.read()
	if err != nil {
		m.logger.Debug().Err(err).Msg("memory read failed")
		source = "unavailable"
	}
	s.MemoryBytes, s.Source = bytes, source

	s.MemoryExceeded = th.MaxMemoryBytes > 0 && s.MemoryBytes > th.MaxMemoryBytes
	s.TasksExceeded = th.MaxTasks > 0 && s.ActiveTasks > th.MaxTasks
	s.Exceeded = s.MemoryExceeded || s.TasksExceeded
	metrics.SetMemoryBytes(s.MemoryBytes)
	return s
}

// CooldownElapsed reports whether a non-forced cleanup would pass the cooldown gate.
func (m *Monitor) CooldownElapsed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldownElapsedLocked()
}

func (m *Monitor) cooldownElapsedLocked() bool {
	return m.lastCleanup.IsZero() || m.now().Sub(m.lastCleanup) >= m.thresholds.Cooldown
}

// RunCleanup sheds tracked work when a threshold is exceeded. Without force it
// is skipped inside the cooldown window and below both thresholds. The pass
// runs the manager's batch cleanup and then an orphan audit, bounded by timeout.
func (m *Monitor) RunCleanup(ctx context.Context, force bool, timeout time.Duration) (CleanupResult, error) {
	res := CleanupResult{Forced: force}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		res.Skipped = SkipInProgress
		return res, nil
	}
	if !force && !m.cooldownElapsedLocked() {
		m.mu.Unlock()
		res.Skipped = SkipCooldown
		metrics.IncCleanup("skipped_cooldown", 0)
		return res, nil
	}
	m.mu.Unlock()

	sample := m.Sample()
	if !force && !sample.Exceeded {
		res.Skipped = SkipBelowThreshold
		return res, nil
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		res.Skipped = SkipInProgress
		return res, nil
	}
	m.running = true
	m.lastCleanup = m.now()
	m.runs++
	m.mu.Unlock()

	started := m.now()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res CleanupResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		out.res = res
		defer func() {
			if p := recover(); p != nil {
				out.err = fmt.Errorf("%w: panic: %v", ErrCleanupFailed, p)
			}
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			done <- out
		}()
		out.res.Cancelled = m.cleaner.CleanupOrphanedTasks(runCtx, force || sample.MemoryExceeded)
		out.res.Orphans = m.cleaner.AuditOrphans(runCtx)
	}()

	var out outcome
	select {
	case out = <-done:
	case <-runCtx.Done():
		out.res = res
		if ctx.Err() != nil {
			out.err = fmt.Errorf("%w: %w", ErrCleanupFailed, ctx.Err())
		} else {
			out.err = ErrCleanupTimeout
		}
	}
	out.res.Duration = m.now().Sub(started)
	m.record(out.res, out.err, sample)
	return out.res, out.err
}

func (m *Monitor) record(res CleanupResult, err error, sample Sample) {
	m.mu.Lock()
	m.lastResult = res
	m.lastErr = err
	m.mu.Unlock()

	switch {
	case errors.Is(err, ErrCleanupTimeout):
		metrics.IncCleanup("timeout", 0)
		m.logger.Warn().Dur("duration", res.Duration).Msg("memory cleanup exceeded its bound")
	case err != nil:
		metrics.IncCleanup("failed", 0)
		m.logger.Error().Err(err).Msg("memory cleanup failed")
	default:
		metrics.IncCleanup("ok", res.Total())
		m.logger.Info().
			Str(xglog.FieldEvent, "memory.cleanup_done").
			Bool("forced", res.Forced).
			Int("cancelled", res.Cancelled).
			Int("orphans", res.Orphans).
			Uint64("memory_bytes", sample.MemoryBytes).
			Int("active_tasks", sample.ActiveTasks).
			Dur("duration", res.Duration).
			Msg("memory cleanup finished")
	}
}

// Report is the operator view of the monitor.
type Report struct {
	Sample      Sample        `json:"sample"`
	Thresholds  Thresholds    `json:"thresholds"`
	CleanupRuns int           `json:"cleanup_runs"`
	LastCleanup *time.Time    `json:"last_cleanup,omitempty"`
	LastResult  CleanupResult `json:"last_result"`
	LastError   string        `json:"last_error,omitempty"`
	Running     bool          `json:"running"`
}

// StatusReport samples and returns the current state.
func (m *Monitor) StatusReport() Report {
	s := m.Sample()
	m.mu.Lock()
	defer m.mu.Unlock()
	r := Report{
		Sample:      s,
		Thresholds:  m.thresholds,
		CleanupRuns: m.runs,
		LastResult:  m.lastResult,
		Running:     m.running,
	}
	if !m.lastCleanup.IsZero() {
		t := m.lastCleanup
		r.LastCleanup = &t
	}
	if m.lastErr != nil {
		r.LastError = m.lastErr.Error()
	}
	return r
}
