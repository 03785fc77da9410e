// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import (
	"time"

	xglog "github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/metrics"
)

// ShutdownAll cancels lifecycle units first, then every remaining unit, and
// waits once, up to timeout, for all of them to terminate. Stragglers get one
// forced sweep and are logged by name. Bookkeeping is cleared on every exit
// path so the registry can be reused.
//
// It returns true only when every unit terminated within the bound.
func (r *Registry) ShutdownAll(timeout time.Duration) (clean bool) {
	started := r.now()

	r.mu.Lock()
	r.shuttingDown = true
	var lifecycle, regular []*unit
	for _, s := range r.slots {
		if s.u == nil {
			continue
		}
		if s.u.lifecycle {
			lifecycle = append(lifecycle, s.u)
		} else {
			regular = append(regular, s.u)
		}
	}
	r.mu.Unlock()

	var stragglers []string
	defer func() {
		r.mu.Lock()
		r.resetLocked()
		r.stragglers = stragglers
		r.shuttingDown = false
		r.mu.Unlock()
		metrics.ObserveShutdown(clean, r.now().Sub(started), len(stragglers))
	}()

	r.logger.Info().
		Str(xglog.FieldEvent, "task.shutdown_start").
		Int("lifecycle", len(lifecycle)).
		Int("regular", len(regular)).
		Dur("timeout", timeout).
		Msg("cancelling all units")

	for _, u := range lifecycle {
		r.requestCancel(u)
	}
	for _, u := range regular {
		r.requestCancel(u)
	}

	all := append(lifecycle, regular...)
	if waitAll(all, timeout) {
		r.mu.Lock()
		clean = r.live == 0
		r.mu.Unlock()
		r.logger.Info().
			Str(xglog.FieldEvent, "task.shutdown_done").
			Bool("clean", clean).
			Msg("all units terminated")
		return clean
	}

	if r.afterWait != nil {
		r.afterWait()
	}
	for _, u := range all {
		select {
		case <-u.done:
			continue
		default:
		}
		u.cancel()
		stragglers = append(stragglers, u.name)
	}
	if len(stragglers) == 0 {
		// Everything finished between the deadline and the sweep.
		r.mu.Lock()
		clean = r.live == 0
		r.mu.Unlock()
		return clean
	}
	metrics.IncLeakDetected("shutdown")
	r.logger.Warn().
		Str(xglog.FieldEvent, "task.shutdown_stragglers").
		Strs("units", stragglers).
		Dur("timeout", timeout).
		Msg("units still running after shutdown timeout; clearing bookkeeping")
	return false
}

// waitAll waits for every unit under a single shared deadline.
func waitAll(units []*unit, timeout time.Duration) bool {
	if len(units) == 0 {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for _, u := range units {
		select {
		case <-u.done:
		case <-timer.C:
			return false
		}
	}
	return true
}

// resetLocked forgets every unit. Slot generations survive so handles issued
// before the reset stay stale.
func (r *Registry) resetLocked() {
	r.free = r.free[:0]
	for i := range r.slots {
		if u := r.slots[i].u; u != nil {
			r.detached[u.handle] = u
		}
		r.slots[i].u = nil
		r.free = append(r.free, uint32(i))
	}
	r.byName = make(map[string]Handle)
	r.lifecycle = make(map[Handle]struct{})
	r.live = 0
	r.publishGaugeLocked()
}
