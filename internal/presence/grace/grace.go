// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package grace keeps one timer per unintentionally disconnected player. The
// player stays present in a restricted state until the timer expires or a
// reconnection cancels it.
package grace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/metrics"
	"github.com/ManuGH/mudcore/internal/task"
)

// Scheduler creates and cancels tracked units.
type Scheduler interface {
	CreateTracked(name, category string, work task.Work) (task.Handle, error)
	Cancel(h task.Handle) bool
}

// ExpireFunc runs when a timer fires. Its context is detached from the timer's
// cancellation so a cleanup already underway always finishes.
type ExpireFunc func(ctx context.Context, playerID string)

type entry struct {
	id       uint64
	handle   task.Handle
	started  time.Time
	expiring atomic.Bool
}

func (e *entry) isExpiring() bool { return e.expiring.Load() }

// Periods tracks active grace timers by player id.
type Periods struct {
	sched    Scheduler
	onExpire ExpireFunc
	logger   zerolog.Logger
	duration atomic.Int64

	mu     sync.Mutex
	active map[string]*entry
	nextID uint64
}

// New creates the timer set.
func New(sched Scheduler, duration time.Duration, onExpire ExpireFunc) *Periods {
	p := &Periods{
		sched:    sched,
		onExpire: onExpire,
		logger:   xglog.WithComponent("presence.grace"),
		active:   make(map[string]*entry),
	}
	p.duration.Store(int64(duration))
	return p
}

// SetDuration changes the window for timers started afterwards.
func (p *Periods) SetDuration(d time.Duration) {
	if d > 0 {
		p.duration.Store(int64(d))
	}
}

// Duration returns the current window.
func (p *Periods) Duration() time.Duration { return time.Duration(p.duration.Load()) }

// Start schedules a timer for playerID. Starting while one is active is a
// no-op and reports false.
func (p *Periods) Start(playerID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[playerID]; ok {
		return false, nil
	}
	p.nextID++
	e := &entry{id: p.nextID, started: time.Now()}
	p.active[playerID] = e

	d := p.Duration()
	h, err := p.sched.CreateTracked("grace:"+playerID, task.CategoryPlayerTimer, p.timer(playerID, e.id, d))
	if err != nil {
		delete(p.active, playerID)
		return false, err
	}
	e.handle = h

	metrics.IncGrace("started", len(p.active))
	p.logger.Info().
		Str(xglog.FieldEvent, "grace.started").
		Str(xglog.FieldPlayerID, playerID).
		Dur("duration", d).
		Msg("grace period started")
	return true, nil
}

func (p *Periods) timer(playerID string, id uint64, d time.Duration) task.Work {
	return func(ctx context.Context) error {
		defer p.forget(playerID, id)

		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		p.mu.Lock()
		e, ok := p.active[playerID]
		if !ok || e.id != id || ctx.Err() != nil {
			// Cancelled concurrently.
			p.mu.Unlock()
			return nil
		}
		e.expiring.Store(true)
		p.mu.Unlock()

		metrics.IncGrace("expired", p.Len())
		p.logger.Info().
			Str(xglog.FieldEvent, "grace.expired").
			Str(xglog.FieldPlayerID, playerID).
			Dur("elapsed", time.Since(e.started)).
			Msg("grace period expired")
		if p.onExpire != nil {
			p.onExpire(context.WithoutCancel(ctx), playerID)
		}
		return nil
	}
}

func (p *Periods) forget(playerID string, id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.active[playerID]; ok && e.id == id {
		delete(p.active, playerID)
	}
}

// Cancel stops the player's timer and waits for it, bounded by the scheduler.
// It reports whether a timer was active. The entry is removed before the
// timer is signalled, so a timer firing in between sees it gone and exits.
func (p *Periods) Cancel(playerID string) bool {
	p.mu.Lock()
	e, ok := p.active[playerID]
	if ok {
		delete(p.active, playerID)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}

	if !p.sched.Cancel(e.handle) {
		p.logger.Warn().
			Str(xglog.FieldPlayerID, playerID).
			Bool("expiring", e.isExpiring()).
			Msg("grace timer did not terminate within bound")
	}

	metrics.IncGrace("cancelled", p.Len())
	p.logger.Info().
		Str(xglog.FieldEvent, "grace.cancelled").
		Str(xglog.FieldPlayerID, playerID).
		Msg("grace period cancelled")
	return true
}

// IsActive reports whether playerID has a running timer. A nil or
// uninitialised Periods has none.
func (p *Periods) IsActive(playerID string) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return false
	}
	_, ok := p.active[playerID]
	return ok
}

// Len returns the number of active timers.
func (p *Periods) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Active lists players with a running timer.
func (p *Periods) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.active))
	for id := range p.active {
		out = append(out, id)
	}
	return out
}
