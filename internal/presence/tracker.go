// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package presence decides, for every connect and disconnect signal, whether
// to attach or detach a transport, hold the player in the grace period, or run
// the cleanup cascade.
package presence

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/mudcore/internal/bus"
	xglog "github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/metrics"
	"github.com/ManuGH/mudcore/internal/presence/grace"
	"github.com/ManuGH/mudcore/internal/store"
)

var (
	ErrMissingDependency = errors.New("presence: broadcaster and store are required")
	ErrInvalidSignal     = errors.New("presence: player and transport ids are required")
	ErrUnknownPlayer     = errors.New("presence: player not present")
	ErrNotSafeRoom       = errors.New("presence: room does not allow resting")
)

// Outcome describes what a disconnect signal led to.
type Outcome string

const (
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeDetached   Outcome = "detached"
	OutcomeInProgress Outcome = "in_progress"
	OutcomeGrace      Outcome = "grace"
	OutcomeCleanedUp  Outcome = "cleaned_up"
)

// Cascade triggers.
const (
	TriggerIntentional      = "intentional"
	TriggerGraceExpired     = "grace_expired"
	TriggerGraceUnavailable = "grace_unavailable"
	TriggerKick             = "kick"
)

// Config tunes the tracker.
type Config struct {
	GraceDuration time.Duration
	// StaleDisconnectAge is how old a disconnecting marker must be before a
	// new signal force-clears it.
	StaleDisconnectAge time.Duration
	CascadeTimeout     time.Duration
	PlaceholderName    string
	// AllowedCommands may still run while the player is in the grace period.
	AllowedCommands []string
}

func DefaultConfig() Config {
	return Config{
		GraceDuration:      30 * time.Second,
		StaleDisconnectAge: 2 * time.Minute,
		CascadeTimeout:     10 * time.Second,
		PlaceholderName:    "Someone",
		AllowedCommands:    []string{"attack", "flee", "look"},
	}
}

type disconnectMark struct {
	token uint64
	at    time.Time
}

// Tracker holds presence sessions and coordinates the grace period.
type Tracker struct {
	deps    Deps
	logger  zerolog.Logger
	grace   *grace.Periods
	rooms   *Rooms
	lookups singleflight.Group
	now     func() time.Time

	cascadeTimeout time.Duration
	staleAge       time.Duration
	placeholder    string

	mu            sync.Mutex
	sessions      map[string]*session
	keys          map[string]string
	disconnecting map[string]disconnectMark
	// processed remembers recent departures so late disconnect signals are
	// counted as duplicates. Entries older than staleAge are pruned.
	processed     map[string]time.Time
	intentional   map[string]struct{}
	allowed       map[string]struct{}
	nextToken     uint64
}

// New wires a tracker. Grace timers are created through sched.
func New(deps Deps, sched grace.Scheduler, cfg Config) (*Tracker, error) {
	if deps.Broadcaster == nil || deps.Store == nil || sched == nil {
		return nil, ErrMissingDependency
	}
	def := DefaultConfig()
	if cfg.GraceDuration <= 0 {
		cfg.GraceDuration = def.GraceDuration
	}
	if cfg.StaleDisconnectAge <= 0 {
		cfg.StaleDisconnectAge = def.StaleDisconnectAge
	}
	if cfg.CascadeTimeout <= 0 {
		cfg.CascadeTimeout = def.CascadeTimeout
	}
	if cfg.PlaceholderName == "" {
		cfg.PlaceholderName = def.PlaceholderName
	}

	t := &Tracker{
		deps:           deps,
		logger:         xglog.WithComponent("presence"),
		rooms:          NewRooms(),
		now:            time.Now,
		cascadeTimeout: cfg.CascadeTimeout,
		staleAge:       cfg.StaleDisconnectAge,
		placeholder:    cfg.PlaceholderName,
		sessions:       make(map[string]*session),
		keys:           make(map[string]string),
		disconnecting:  make(map[string]disconnectMark),
		processed:      make(map[string]time.Time),
		intentional:    make(map[string]struct{}),
	}
	t.SetAllowedCommands(cfg.AllowedCommands)
	t.grace = grace.New(sched, cfg.GraceDuration, t.expire)
	return t, nil
}

// Connect attaches transportID to playerID. The first attachment (including a
// reconnection out of the grace period) loads the player, joins the room,
// sends a state snapshot and announces the entrance.
func (t *Tracker) Connect(ctx context.Context, playerID, transportID string) error {
	if playerID == "" || transportID == "" {
		return ErrInvalidSignal
	}
	now := t.now()
	if t.attachExisting(playerID, transportID, now) {
		return nil
	}

	// A running grace timer must be gone before anything else happens.
	if t.grace.Cancel(playerID) {
		t.logger.Info().
			Str(xglog.FieldEvent, "presence.reconnected").
			Str(xglog.FieldPlayerID, playerID).
			Str(xglog.FieldTransportID, transportID).
			Msg("player reconnected during grace period")
	}
	if t.deps.Cache != nil {
		t.deps.Cache.InvalidatePlayer(ctx, playerID)
	}

	rec := t.resolve(ctx, playerID, "")
	if err := t.deps.Store.UpdateLastActive(ctx, playerID, now); err != nil {
		t.collaboratorFailed("store", "update_last_active", playerID, err)
	}

	t.mu.Lock()
	delete(t.processed, playerID)
	delete(t.intentional, playerID)
	s, ok := t.sessions[playerID]
	if ok && len(s.transports) > 0 {
		// A concurrent connect finished first.
		s.transports[transportID] = now
		s.lastActive = now
		t.mu.Unlock()
		return nil
	}
	if !ok {
		s = newSession(rec, now)
		if rec.Name == t.placeholder {
			// Placeholder names are shared; only the id addresses this player.
			s.keys = []string{playerID}
		}
		t.sessions[playerID] = s
	}
	s.lastActive = now
	s.transports[transportID] = now
	for _, k := range s.keys {
		t.keys[k] = playerID
	}
	view := s.view()
	n := len(t.sessions)
	t.mu.Unlock()

	metrics.SetSessions(n)
	t.rooms.Add(view.RoomID, view.Keys...)

	snap := bus.NewEvent(bus.EventStateSnapshot, playerID, view.Name)
	snap.RoomID = view.RoomID
	snap.Data = map[string]any{
		"position": view.Position,
		"state":    view.State,
	}
	if err := t.deps.Broadcaster.SendToPlayer(ctx, playerID, snap); err != nil {
		t.collaboratorFailed("broadcaster", "send_snapshot", playerID, err)
	}
	if view.RoomID != "" {
		ev := bus.NewEvent(bus.EventPlayerEntered, playerID, view.Name)
		if err := t.deps.Broadcaster.BroadcastToRoom(ctx, view.RoomID, ev, playerID); err != nil {
			t.collaboratorFailed("broadcaster", "broadcast_entered", playerID, err)
		}
	}

	t.logger.Info().
		Str(xglog.FieldEvent, "presence.connected").
		Str(xglog.FieldPlayerID, playerID).
		Str(xglog.FieldTransportID, transportID).
		Str(xglog.FieldRoomID, view.RoomID).
		Msg("player connected")
	return nil
}

func (t *Tracker) attachExisting(playerID, transportID string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[playerID]
	if !ok || len(s.transports) == 0 {
		return false
	}
	s.transports[transportID] = now
	s.lastActive = now
	t.logger.Debug().
		Str(xglog.FieldPlayerID, playerID).
		Str(xglog.FieldTransportID, transportID).
		Int("transports", len(s.transports)).
		Msg("additional transport attached")
	return true
}

// Disconnect detaches transportID. When it was the player's last transport the
// player either enters the grace period or, for an intentional disconnect,
// is cleaned up immediately.
func (t *Tracker) Disconnect(ctx context.Context, playerID, transportID string, intentional bool) Outcome {
	t.mu.Lock()
	if intentional {
		t.intentional[playerID] = struct{}{}
	}
	s, ok := t.sessions[playerID]
	if !ok {
		_, seen := t.processed[playerID]
		delete(t.intentional, playerID)
		t.mu.Unlock()
		if seen {
			metrics.DuplicateDisconnectsTotal.Inc()
		}
		t.logger.Debug().
			Str(xglog.FieldPlayerID, playerID).
			Str(xglog.FieldTransportID, transportID).
			Bool("already_processed", seen).
			Msg("disconnect for absent player ignored")
		return OutcomeDuplicate
	}
	delete(s.transports, transportID)
	remaining := len(s.transports)
	t.mu.Unlock()

	if remaining > 0 {
		return OutcomeDetached
	}
	if t.deps.Transports != nil && t.deps.Transports.HasLiveTransport(playerID) {
		return OutcomeDetached
	}

	token, ok := t.acquire(playerID)
	if !ok {
		metrics.DuplicateDisconnectsTotal.Inc()
		return OutcomeInProgress
	}

	t.mu.Lock()
	cur, present := t.sessions[playerID]
	if !present || len(cur.transports) > 0 {
		t.releaseLocked(playerID, token)
		t.mu.Unlock()
		if !present {
			return OutcomeDuplicate
		}
		return OutcomeDetached
	}
	_, wantCascade := t.intentional[playerID]
	delete(t.intentional, playerID)
	if !wantCascade {
		t.releaseLocked(playerID, token)
	}
	t.mu.Unlock()

	if wantCascade {
		// A quit during the grace period ends the zombie state first.
		t.grace.Cancel(playerID)
		t.runCascade(ctx, playerID, token, TriggerIntentional)
		return OutcomeCleanedUp
	}

	if _, err := t.grace.Start(playerID); err != nil {
		t.logger.Warn().Err(err).
			Str(xglog.FieldPlayerID, playerID).
			Msg("grace period unavailable, cleaning up now")
		token, ok := t.acquire(playerID)
		if !ok {
			return OutcomeInProgress
		}
		t.runCascade(ctx, playerID, token, TriggerGraceUnavailable)
		return OutcomeCleanedUp
	}
	return OutcomeGrace
}

// acquire takes the player's disconnecting marker. A marker older than the
// stale age is left over from a run that never finished and is replaced.
func (t *Tracker) acquire(playerID string) (uint64, bool) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, busy := t.disconnecting[playerID]; busy {
		age := now.Sub(m.at)
		if age < t.staleAge {
			return 0, false
		}
		t.logger.Warn().
			Str(xglog.FieldEvent, "presence.stale_marker_cleared").
			Str(xglog.FieldPlayerID, playerID).
			Dur("age", age).
			Msg("force-clearing stale disconnect marker")
	}
	t.nextToken++
	t.disconnecting[playerID] = disconnectMark{token: t.nextToken, at: now}
	return t.nextToken, true
}

func (t *Tracker) releaseLocked(playerID string, token uint64) {
	if m, ok := t.disconnecting[playerID]; ok && m.token == token {
		delete(t.disconnecting, playerID)
	}
}

func (t *Tracker) expire(ctx context.Context, playerID string) {
	token, ok := t.acquire(playerID)
	if !ok {
		t.logger.Debug().
			Str(xglog.FieldPlayerID, playerID).
			Msg("grace expiry skipped, cleanup already running")
		return
	}
	t.runCascade(ctx, playerID, token, TriggerGraceExpired)
}

// MarkIntentional flags the player's next disconnect as intentional.
func (t *Tracker) MarkIntentional(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.intentional[playerID] = struct{}{}
}

// RestAtSafeRoom marks the next disconnect intentional when the player stands
// in a room that allows resting.
func (t *Tracker) RestAtSafeRoom(ctx context.Context, playerID string) error {
	t.mu.Lock()
	s, ok := t.sessions[playerID]
	var roomID string
	if ok {
		roomID = s.roomID
	}
	t.mu.Unlock()
	if !ok {
		return ErrUnknownPlayer
	}
	room, err := t.deps.Store.GetRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.Safe {
		return ErrNotSafeRoom
	}
	t.MarkIntentional(playerID)
	return nil
}

// Kick removes a player. Attached players are asked to close every transport
// and clean up through the intentional path. Players already in the grace
// period are cleaned up directly.
func (t *Tracker) Kick(ctx context.Context, playerID string) error {
	t.mu.Lock()
	s, ok := t.sessions[playerID]
	zombie := ok && len(s.transports) == 0
	if ok {
		t.intentional[playerID] = struct{}{}
	}
	t.mu.Unlock()
	if !ok {
		return ErrUnknownPlayer
	}
	if !zombie {
		return t.deps.Broadcaster.ForceDisconnect(ctx, playerID)
	}

	t.grace.Cancel(playerID)
	token, acquired := t.acquire(playerID)
	if !acquired {
		return nil
	}
	t.runCascade(ctx, playerID, token, TriggerKick)
	return nil
}

// SetAllowedCommands replaces the grace period allow-list.
func (t *Tracker) SetAllowedCommands(cmds []string) {
	set := make(map[string]struct{}, len(cmds))
	for _, c := range cmds {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			set[c] = struct{}{}
		}
	}
	t.mu.Lock()
	t.allowed = set
	t.mu.Unlock()
}

// SetGraceDuration changes the window for grace periods started afterwards.
func (t *Tracker) SetGraceDuration(d time.Duration) { t.grace.SetDuration(d) }

// CommandAllowed reports whether playerID may run command. Everything is
// allowed outside the grace period.
func (t *Tracker) CommandAllowed(playerID, command string) bool {
	if !t.grace.IsActive(playerID) {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.allowed[strings.ToLower(strings.TrimSpace(command))]
	return ok
}

// IsPlayerInGracePeriod reports whether the player is held as a zombie.
func (t *Tracker) IsPlayerInGracePeriod(playerID string) bool {
	return t.grace.IsActive(playerID)
}

// Lookup finds a session by any identity key.
func (t *Tracker) Lookup(key string) (SessionView, bool) {
	t.mu.Lock()
	id, ok := t.keys[key]
	if !ok {
		if _, direct := t.sessions[key]; direct {
			id, ok = key, true
		}
	}
	var v SessionView
	if ok {
		if s, present := t.sessions[id]; present {
			v = s.view()
		} else {
			ok = false
		}
	}
	t.mu.Unlock()
	if ok {
		v.InGrace = t.grace.IsActive(v.PlayerID)
	}
	return v, ok
}

// Sessions lists every session ordered by player id.
func (t *Tracker) Sessions() []SessionView {
	t.mu.Lock()
	out := make([]SessionView, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.view())
	}
	t.mu.Unlock()
	for i := range out {
		out[i].InGrace = t.grace.IsActive(out[i].PlayerID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// Len returns the number of sessions, including players in grace.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Grace exposes the grace timers.
func (t *Tracker) Grace() *grace.Periods { return t.grace }

// Rooms exposes room occupancy.
func (t *Tracker) Rooms() *Rooms { return t.rooms }

// resolve loads the player record, falling back to a lookup by name and then
// to a placeholder. Concurrent lookups for one player share a single call.
func (t *Tracker) resolve(ctx context.Context, playerID, knownName string) store.Player {
	v, err, _ := t.lookups.Do(playerID, func() (any, error) {
		return t.deps.Store.GetPlayerByID(ctx, playerID)
	})
	if err == nil {
		return v.(store.Player)
	}
	if knownName != "" {
		if p, nerr := t.deps.Store.GetPlayerByName(ctx, knownName); nerr == nil && p.ID == playerID {
			return p
		}
	}
	t.collaboratorFailed("store", "get_player", playerID, err)
	name := knownName
	if name == "" {
		name = t.placeholder
	}
	return store.Player{ID: playerID, Name: name}
}

func (t *Tracker) collaboratorFailed(collaborator, op, playerID string, err error) {
	metrics.IncCollaboratorFailure(collaborator, op)
	t.logger.Warn().Err(err).
		Str(xglog.FieldPlayerID, playerID).
		Str("collaborator", collaborator).
		Str("op", op).
		Msg("collaborator call failed, continuing")
}
