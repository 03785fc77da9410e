// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package orphan runs the periodic orphan audit as a lifecycle unit and offers
// a synchronous one-shot audit for operators.
package orphan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/metrics"
	"github.com/ManuGH/mudcore/internal/task"
	"github.com/ManuGH/mudcore/internal/task/memwatch"
	"github.com/ManuGH/mudcore/internal/telemetry"
)

var (
	ErrAlreadyRunning = errors.New("orphan: auditor already running")
	ErrNotRunning     = errors.New("orphan: auditor not running")
)

const unitName = "orphan-auditor"

// Supervisor is the tracked task manager surface the auditor needs.
type Supervisor interface {
	CreateTracked(name, category string, work task.Work) (task.Handle, error)
	Cancel(h task.Handle) bool
	AuditOrphans(ctx context.Context) int
	Registry() *task.Registry
}

// Pressure is the memory monitor surface the auditor needs.
type Pressure interface {
	Sample() memwatch.Sample
	RunCleanup(ctx context.Context, force bool, timeout time.Duration) (memwatch.CleanupResult, error)
}

// Config controls the loop.
type Config struct {
	Interval       time.Duration
	AutoCleanup    bool
	CleanupTimeout time.Duration
}

// Report is the outcome of one audit cycle.
type Report struct {
	At         time.Time              `json:"at"`
	Manual     bool                   `json:"manual"`
	Orphans    int                    `json:"orphans"`
	Exceeded   bool                   `json:"exceeded"`
	CleanupRan bool                   `json:"cleanup_ran"`
	Cleanup    memwatch.CleanupResult `json:"cleanup"`
	CleanupErr string                 `json:"cleanup_error,omitempty"`
	Duration   time.Duration          `json:"duration"`
}

// Stats are the loop's cumulative counters.
type Stats struct {
	Cycles  int64 `json:"cycles"`
	Orphans int64 `json:"orphans"`
}

// Auditor owns the periodic loop.
type Auditor struct {
	sup      Supervisor
	pressure Pressure
	logger   zerolog.Logger

	interval       atomic.Int64
	cleanupTimeout time.Duration
	autoCleanup    atomic.Bool

	mu      sync.Mutex
	handle  task.Handle
	running bool

	cycles  atomic.Int64
	orphans atomic.Int64
}

// New creates an auditor.
func New(sup Supervisor, pressure Pressure, cfg Config) *Auditor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 10 * time.Second
	}
	a := &Auditor{
		sup:            sup,
		pressure:       pressure,
		logger:         xglog.WithComponent("task.orphan"),
		cleanupTimeout: cfg.CleanupTimeout,
	}
	a.interval.Store(int64(cfg.Interval))
	a.autoCleanup.Store(cfg.AutoCleanup)
	return a
}

// SetAutoCleanup toggles cleanup after audits; used by config hot reload.
func (a *Auditor) SetAutoCleanup(v bool) { a.autoCleanup.Store(v) }

// SetInterval changes the sleep between cycles, effective after the current sleep.
func (a *Auditor) SetInterval(d time.Duration) {
	if d > 0 {
		a.interval.Store(int64(d))
	}
}

// Start schedules the loop as a system_lifecycle unit.
func (a *Auditor) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running && a.sup.Registry().Alive(a.handle) {
		return ErrAlreadyRunning
	}
	h, err := a.sup.CreateTracked(unitName, task.CategorySystemLifecycle, a.run)
	if err != nil {
		return err
	}
	a.handle = h
	a.running = true
	a.logger.Info().Dur("interval", time.Duration(a.interval.Load())).Msg("orphan auditor started")
	return nil
}

// Stop cancels the loop and waits for it within the manager's bound.
func (a *Auditor) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return ErrNotRunning
	}
	h := a.handle
	a.running = false
	a.handle = task.Handle{}
	a.mu.Unlock()

	if !a.sup.Cancel(h) {
		a.logger.Warn().Str(xglog.FieldTask, unitName).Msg("orphan auditor did not stop within bound")
	}
	return nil
}

// Running reports whether the loop unit is alive.
func (a *Auditor) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running && a.sup.Registry().Alive(a.handle)
}

// Stats returns the loop's counters.
func (a *Auditor) Stats() Stats {
	return Stats{Cycles: a.cycles.Load(), Orphans: a.orphans.Load()}
}

func (a *Auditor) run(ctx context.Context) error {
	for {
		r := a.cycle(ctx, false)
		a.cycles.Add(1)
		a.orphans.Add(int64(r.Orphans))
		metrics.IncAuditCycle("periodic")

		timer := time.NewTimer(time.Duration(a.interval.Load()))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Debug().Int64("cycles", a.cycles.Load()).Msg("orphan auditor exiting")
			return nil
		case <-timer.C:
		}
	}
}

// ForceSingleAuditCycle runs one audit synchronously. The loop's cumulative
// counters are left untouched.
func (a *Auditor) ForceSingleAuditCycle(ctx context.Context) Report {
	metrics.IncAuditCycle("manual")
	return a.cycle(ctx, true)
}

func (a *Auditor) cycle(ctx context.Context, manual bool) Report {
	ctx, span := telemetry.Tracer("mudcore/task/orphan").Start(ctx, "orphan.audit_cycle")
	defer span.End()

	started := time.Now()
	r := Report{At: started, Manual: manual}
	r.Orphans = a.sup.AuditOrphans(ctx)
	metrics.AddOrphans(r.Orphans)

	sample := a.pressure.Sample()
	r.Exceeded = sample.Exceeded

	if (r.Orphans > 0 || r.Exceeded) && a.autoCleanup.Load() && ctx.Err() == nil {
		// AuditOrphans already cancelled the orphans; the monitor's threshold
		// and cooldown gates decide whether tracked work is swept too.
		res, err := a.pressure.RunCleanup(ctx, false, a.cleanupTimeout)
		r.CleanupRan = res.Skipped == "" && err == nil
		r.Cleanup = res
		if err != nil {
			r.CleanupErr = err.Error()
			a.logger.Warn().Err(err).Msg("cleanup after audit failed")
		}
	}
	r.Duration = time.Since(started)

	span.SetAttributes(telemetry.AuditAttributes(manual, r.Orphans, r.Exceeded, r.CleanupRan)...)
	a.logger.Debug().
		Bool("manual", manual).
		Int("orphans", r.Orphans).
		Bool("exceeded", r.Exceeded).
		Bool("cleanup_ran", r.CleanupRan).
		Dur("duration", r.Duration).
		Msg("audit cycle complete")
	return r
}
