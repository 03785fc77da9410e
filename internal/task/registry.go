// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package task is the ledger of every background unit of work the server spawns.
//
// The registry owns each unit for its whole lifetime. A unit leaves every
// collection through its completion hook the moment its work function returns,
// so callers never do manual bookkeeping after completion.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/metrics"
)

// Work is the body of a tracked unit. It must return once ctx is done.
type Work func(ctx context.Context) error

// Info describes a live unit.
type Info struct {
	Handle    Handle    `json:"handle"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Lifecycle bool      `json:"lifecycle"`
	CreatedAt time.Time `json:"created_at"`
}

type unit struct {
	handle    Handle
	name      string
	category  string
	lifecycle bool
	created   time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func (u *unit) info() Info {
	return Info{
		Handle:    u.handle,
		Name:      u.name,
		Category:  u.category,
		Lifecycle: u.lifecycle,
		CreatedAt: u.created,
	}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithCancelHook installs a hook that is called synchronously, in order, every
// time the registry requests cancellation of a unit.
func WithCancelHook(fn func(Info)) Option {
	return func(r *Registry) { r.onCancel = fn }
}

// WithClock overrides the clock used for creation times and name suffixes.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry tracks units by handle, by name, and (for lifecycle units) in a
// shutdown-priority subset. All three views are guarded by mu.
type Registry struct {
	mu        sync.Mutex
	slots     []slot
	free      []uint32
	byName    map[string]Handle
	lifecycle map[Handle]struct{}
	live      int
	// detached holds units dropped from bookkeeping while still running, so
	// Cancel and Done keep working on their handles.
	detached map[Handle]*unit

	shuttingDown bool
	stragglers   []string
	lastSuffix   int64

	base     context.Context
	logger   zerolog.Logger
	onCancel func(Info)
	now      func() time.Time
	// afterWait runs when the shutdown wait times out, before the sweep.
	afterWait func()
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byName:    make(map[string]Handle),
		lifecycle: make(map[Handle]struct{}),
		detached:  make(map[Handle]*unit),
		base:      context.Background(),
		logger:    xglog.WithComponent("task.registry"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register schedules work as a new unit. Name collisions are resolved by
// suffixing a monotonic timestamp; the new unit is never dropped.
func (r *Registry) Register(name, category string, work Work) (Handle, error) {
	if work == nil {
		return Handle{}, ErrNilWork
	}
	if name == "" {
		name = category
	}
	if name == "" {
		name = "unit"
	}

	r.mu.Lock()
	if r.shuttingDown {
		r.mu.Unlock()
		metrics.RegistrationsDeniedTotal.Inc()
		return Handle{}, fmt.Errorf("register %q: %w", name, ErrRegistrationDenied)
	}

	if _, taken := r.byName[name]; taken {
		base := name
		for {
			name = fmt.Sprintf("%s_%d", base, r.nextSuffixLocked())
			if _, taken := r.byName[name]; !taken {
				break
			}
		}
	}

	h := r.allocLocked()
	ctx, cancel := context.WithCancel(r.base)
	u := &unit{
		handle:    h,
		name:      name,
		category:  category,
		lifecycle: IsLifecycle(category),
		created:   r.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.slots[h.slot].u = u
	r.byName[name] = h
	if u.lifecycle {
		r.lifecycle[h] = struct{}{}
	}
	r.live++
	r.publishGaugeLocked()
	r.mu.Unlock()

	r.logger.Debug().
		Str(xglog.FieldTask, name).
		Str(xglog.FieldCategory, category).
		Str("handle", h.String()).
		Msg("unit registered")

	go r.run(ctx, u, work)
	return h, nil
}

// nextSuffixLocked returns a strictly increasing nanosecond timestamp.
func (r *Registry) nextSuffixLocked() int64 {
	ts := r.now().UnixNano()
	if ts <= r.lastSuffix {
		ts = r.lastSuffix + 1
	}
	r.lastSuffix = ts
	return ts
}

func (r *Registry) allocLocked() Handle {
	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		idx = uint32(len(r.slots) - 1)
	}
	s := &r.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	return Handle{slot: idx, gen: s.gen}
}

func (r *Registry) run(ctx context.Context, u *unit, work Work) {
	var (
		err     error
		outcome Outcome
	)
	defer func() {
		if p := recover(); p != nil {
			outcome = OutcomePanicked
			err = fmt.Errorf("unit %q panicked: %v", u.name, p)
		}
		r.complete(u, outcome, err)
	}()
	err = work(ctx)
	outcome = classify(ctx, err)
}

func classify(ctx context.Context, err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, ctx.Err())):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// complete is the completion hook. It removes the unit from every view before
// signalling done, so a waiter that observes done never finds the unit again.
func (r *Registry) complete(u *unit, outcome Outcome, err error) {
	r.mu.Lock()
	if !r.removeLocked(u) {
		delete(r.detached, u.handle)
	}
	r.mu.Unlock()

	close(u.done)
	u.cancel()

	metrics.IncTaskOutcome(u.category, string(outcome))

	level := zerolog.DebugLevel
	switch outcome {
	case OutcomeFailed:
		level = zerolog.WarnLevel
	case OutcomePanicked:
		level = zerolog.ErrorLevel
	}
	r.logger.WithLevel(level).
		Err(err).
		Str(xglog.FieldTask, u.name).
		Str(xglog.FieldCategory, u.category).
		Str(xglog.FieldOutcome, string(outcome)).
		Dur("age", r.now().Sub(u.created)).
		Msg("unit finished")
}

// removeLocked drops u from all views if it is still the occupant of its slot.
func (r *Registry) removeLocked(u *unit) bool {
	h := u.handle
	if int(h.slot) >= len(r.slots) {
		return false
	}
	s := &r.slots[h.slot]
	if s.gen != h.gen || s.u != u {
		return false
	}
	s.u = nil
	r.free = append(r.free, h.slot)
	if cur, ok := r.byName[u.name]; ok && cur == h {
		delete(r.byName, u.name)
	}
	delete(r.lifecycle, h)
	r.live--
	r.publishGaugeLocked()
	return true
}

// findLocked resolves h to a registered or detached unit that has not finished.
func (r *Registry) findLocked(h Handle) *unit {
	if u := r.lookupLocked(h); u != nil {
		return u
	}
	return r.detached[h]
}

func (r *Registry) detachLocked(u *unit) bool {
	if !r.removeLocked(u) {
		return false
	}
	r.detached[u.handle] = u
	return true
}

func (r *Registry) lookupLocked(h Handle) *unit {
	if h.IsZero() || int(h.slot) >= len(r.slots) {
		return nil
	}
	s := r.slots[h.slot]
	if s.gen != h.gen {
		return nil
	}
	return s.u
}

func (r *Registry) publishGaugeLocked() {
	lc := len(r.lifecycle)
	metrics.SetActiveTasks(lc, r.live-lc)
}

// Unregister removes bookkeeping for h without cancelling the unit.
// It returns false when h is not registered.
func (r *Registry) Unregister(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.lookupLocked(h)
	if u == nil {
		return false
	}
	return r.detachLocked(u)
}

// UnregisterName is Unregister addressed by unit name.
func (r *Registry) UnregisterName(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byName[name]
	if !ok {
		return false
	}
	u := r.lookupLocked(h)
	if u == nil {
		return false
	}
	return r.detachLocked(u)
}

// Cancel requests cancellation of h and waits up to waitBound for it to
// terminate. Unregistered units that are still running are cancelled too. A
// handle whose unit already finished reports true immediately. False means
// the bound elapsed: log it as a possible leak and move on.
func (r *Registry) Cancel(h Handle, waitBound time.Duration) bool {
	if h.IsZero() {
		return false
	}
	r.mu.Lock()
	u := r.findLocked(h)
	r.mu.Unlock()
	if u == nil {
		return true
	}
	return r.cancelAndWait(u, waitBound)
}

// CancelName is Cancel addressed by unit name. Unknown names report false.
func (r *Registry) CancelName(name string, waitBound time.Duration) bool {
	r.mu.Lock()
	var u *unit
	if h, ok := r.byName[name]; ok {
		u = r.lookupLocked(h)
	}
	r.mu.Unlock()
	if u == nil {
		return false
	}
	return r.cancelAndWait(u, waitBound)
}

func (r *Registry) requestCancel(u *unit) {
	if r.onCancel != nil {
		r.onCancel(u.info())
	}
	u.cancel()
}

func (r *Registry) cancelAndWait(u *unit, waitBound time.Duration) bool {
	r.requestCancel(u)
	if waitDone(u.done, waitBound) {
		return true
	}
	metrics.IncLeakDetected("cancel")
	r.logger.Warn().
		Str(xglog.FieldEvent, "task.leak_detected").
		Str(xglog.FieldTask, u.name).
		Str(xglog.FieldCategory, u.category).
		Dur("wait_bound", waitBound).
		Msg("unit did not terminate within cancellation bound")
	return false
}

func waitDone(done <-chan struct{}, bound time.Duration) bool {
	if bound <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(bound)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done returns a channel closed when the unit behind h terminates. Unknown or
// stale handles yield an already-closed channel.
func (r *Registry) Done(h Handle) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.findLocked(h); u != nil {
		return u.done
	}
	return closedDone
}

// Alive reports whether h still refers to a registered unit.
func (r *Registry) Alive(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(h) != nil
}

// Lookup returns the handle registered under name.
func (r *Registry) Lookup(name string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byName[name]
	return h, ok
}

// Describe returns metadata for a live unit.
func (r *Registry) Describe(h Handle) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.lookupLocked(h); u != nil {
		return u.info(), true
	}
	return Info{}, false
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// LifecycleLen returns the number of registered lifecycle units.
func (r *Registry) LifecycleLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lifecycle)
}

// Live returns the handles of every registered unit.
func (r *Registry) Live() []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Handle, 0, r.live)
	for _, s := range r.slots {
		if s.u != nil {
			out = append(out, s.u.handle)
		}
	}
	return out
}

// Snapshot lists live units ordered by creation time.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	out := make([]Info, 0, r.live)
	for _, s := range r.slots {
		if s.u != nil {
			out = append(out, s.u.info())
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ShuttingDown reports whether ShutdownAll is in progress.
func (r *Registry) ShuttingDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shuttingDown
}

// LastStragglers returns the unit names the last forced sweep had to abandon.
func (r *Registry) LastStragglers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stragglers...)
}
