// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tracked supervises units created through the task registry: it keeps
// a non-owning set of handles it created, finds orphans (registered units it
// never created), wraps deadline-bounded supervised work, and cancels units in
// batches under memory pressure.
package tracked

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	xglog "github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/task"
)

// ErrNoRegistry is returned by New when no registry is supplied.
var ErrNoRegistry = errors.New("tracked: task registry is required")

// Config controls bounded waits.
type Config struct {
	// CancelWait bounds every cancellation the manager requests.
	CancelWait time.Duration
	// BatchConcurrency caps concurrent cancellations in CleanupOrphanedTasks (0 = unlimited).
	BatchConcurrency int
}

// Manager is the supervisory layer over a task.Registry. The tracking set
// stores handles only; the registry remains the sole owner of every unit.
type Manager struct {
	reg    *task.Registry
	conf   Config
	logger zerolog.Logger

	mu      sync.Mutex
	tracked map[task.Handle]struct{}

	// Exempt reports categories that CleanupOrphanedTasks must never cancel.
	Exempt func(category string) bool
	// Reclaim runs after a cleanup batch when forceReclaim is set.
	Reclaim func()
}

// New creates a manager attached to reg.
func New(reg *task.Registry, conf Config) (*Manager, error) {
	if reg == nil {
		return nil, ErrNoRegistry
	}
	if conf.CancelWait <= 0 {
		conf.CancelWait = 2 * time.Second
	}
	return &Manager{
		reg:     reg,
		conf:    conf,
		logger:  xglog.WithComponent("task.tracked"),
		tracked: make(map[task.Handle]struct{}),
		Exempt:  DefaultExempt,
		Reclaim: reclaimMemory,
	}, nil
}

// DefaultExempt protects lifecycle units and player grace timers from batch cleanup.
func DefaultExempt(category string) bool {
	return task.IsLifecycle(category) || category == task.CategoryPlayerTimer
}

func reclaimMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Registry returns the registry this manager creates units through.
func (m *Manager) Registry() *task.Registry { return m.reg }

// CancelWait returns the configured cancellation bound.
func (m *Manager) CancelWait() time.Duration { return m.conf.CancelWait }

// CreateTracked registers work and records its handle in the tracking set.
func (m *Manager) CreateTracked(name, category string, work task.Work) (task.Handle, error) {
	if category == "" {
		category = task.CategoryTracked
	}
	// Held across Register so a concurrent audit never sees the new unit untracked.
	m.mu.Lock()
	defer m.mu.Unlock()
	h, err := m.reg.Register(name, category, work)
	if err != nil {
		return task.Handle{}, err
	}
	m.tracked[h] = struct{}{}
	return h, nil
}

// CreateSupervised registers work wrapped by Supervise.
func (m *Manager) CreateSupervised(parentLabel string, deadline time.Duration, work task.Work) (task.Handle, error) {
	if work == nil {
		return task.Handle{}, task.ErrNilWork
	}
	name := parentLabel + ".supervised"
	return m.CreateTracked(name, task.CategorySupervised, Supervise(parentLabel, deadline, work, m.logger))
}

// Adopt places a unit registered directly with the registry into the tracking
// set so audits stop reporting it as an orphan.
func (m *Manager) Adopt(h task.Handle) bool {
	if !m.reg.Alive(h) {
		return false
	}
	m.mu.Lock()
	m.tracked[h] = struct{}{}
	m.mu.Unlock()
	return true
}

// Cancel cancels a tracked unit within the configured bound and forgets it.
func (m *Manager) Cancel(h task.Handle) bool {
	ok := m.reg.Cancel(h, m.conf.CancelWait)
	if ok {
		m.mu.Lock()
		delete(m.tracked, h)
		m.mu.Unlock()
	}
	return ok
}

// Tracked returns the number of tracked units that are still alive.
func (m *Manager) Tracked() int {
	m.prune()
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracked)
}

// IsTracked reports whether h is in the tracking set.
func (m *Manager) IsTracked(h task.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tracked[h]
	return ok
}

// prune drops handles whose units have finished.
func (m *Manager) prune() {
	m.mu.Lock()
	handles := make([]task.Handle, 0, len(m.tracked))
	for h := range m.tracked {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	var dead []task.Handle
	for _, h := range handles {
		if !m.reg.Alive(h) {
			dead = append(dead, h)
		}
	}
	if len(dead) == 0 {
		return
	}
	m.mu.Lock()
	for _, h := range dead {
		delete(m.tracked, h)
	}
	m.mu.Unlock()
}

// AuditOrphans counts registered units missing from the tracking set and
// requests a bounded cancellation for each. It never fails; per-orphan
// problems are logged.
func (m *Manager) AuditOrphans(ctx context.Context) int {
	m.prune()
	live := m.reg.Live()

	m.mu.Lock()
	var orphans []task.Handle
	for _, h := range live {
		if _, ok := m.tracked[h]; !ok {
			orphans = append(orphans, h)
		}
	}
	m.mu.Unlock()

	for _, h := range orphans {
		if ctx.Err() != nil {
			m.logger.Warn().Err(ctx.Err()).Int("remaining", len(orphans)).Msg("orphan audit interrupted")
			break
		}
		m.cancelOrphan(h)
	}

	if len(orphans) > 0 {
		m.logger.Info().
			Str(xglog.FieldEvent, "task.orphans_found").
			Int("count", len(orphans)).
			Int("live", len(live)).
			Msg("orphan audit found untracked units")
	}
	return len(orphans)
}

func (m *Manager) cancelOrphan(h task.Handle) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error().Interface("panic", p).Str("handle", h.String()).Msg("orphan cancellation panicked")
		}
	}()
	info, ok := m.reg.Describe(h)
	if !ok {
		return
	}
	if !m.reg.Cancel(h, m.conf.CancelWait) {
		m.logger.Warn().
			Str(xglog.FieldTask, info.Name).
			Str(xglog.FieldCategory, info.Category).
			Msg("orphan did not terminate within bound")
	}
}

// CleanupOrphanedTasks cancels every unfinished, non-exempt tracked unit
// concurrently and returns how many terminated within the bound. Individual
// failures never abort the batch. With forceReclaim a memory reclamation pass
// runs afterwards.
func (m *Manager) CleanupOrphanedTasks(ctx context.Context, forceReclaim bool) int {
	m.prune()

	m.mu.Lock()
	candidates := make([]task.Handle, 0, len(m.tracked))
	for h := range m.tracked {
		candidates = append(candidates, h)
	}
	m.mu.Unlock()

	var targets []task.Info
	for _, h := range candidates {
		info, ok := m.reg.Describe(h)
		if !ok {
			continue
		}
		if m.Exempt != nil && m.Exempt(info.Category) {
			continue
		}
		targets = append(targets, info)
	}

	var (
		cancelled atomic.Int64
		g         errgroup.Group
	)
	if m.conf.BatchConcurrency > 0 {
		g.SetLimit(m.conf.BatchConcurrency)
	}
	for _, info := range targets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					m.logger.Error().Interface("panic", p).Str(xglog.FieldTask, info.Name).Msg("cleanup cancellation panicked")
				}
			}()
			if m.reg.Cancel(info.Handle, m.conf.CancelWait) {
				cancelled.Add(1)
				return nil
			}
			m.logger.Warn().
				Str(xglog.FieldTask, info.Name).
				Str(xglog.FieldCategory, info.Category).
				Msg("tracked unit did not terminate during cleanup")
			return nil
		})
	}
	_ = g.Wait()
	m.prune()

	if forceReclaim && m.Reclaim != nil {
		m.Reclaim()
	}

	n := int(cancelled.Load())
	m.logger.Info().
		Str(xglog.FieldEvent, "task.cleanup_done").
		Int("targets", len(targets)).
		Int("cancelled", n).
		Bool("reclaim", forceReclaim).
		Msg("tracked unit cleanup finished")
	return n
}
