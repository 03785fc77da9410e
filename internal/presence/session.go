// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package presence

import (
	"sort"
	"time"

	"github.com/ManuGH/mudcore/internal/ident"
	"github.com/ManuGH/mudcore/internal/store"
)

// session is the tracker's per-player state. Guarded by Tracker.mu.
type session struct {
	playerID    string
	name        string
	roomID      string
	position    store.Position
	state       string
	connectedAt time.Time
	lastActive  time.Time
	transports  map[string]time.Time
	keys        []string
}

func newSession(rec store.Player, now time.Time) *session {
	return &session{
		playerID:    rec.ID,
		name:        rec.Name,
		roomID:      rec.RoomID,
		position:    rec.Position,
		state:       rec.State,
		connectedAt: now,
		lastActive:  now,
		transports:  make(map[string]time.Time),
		keys:        ident.Keys(rec.ID, rec.Name),
	}
}

// SessionView is a read-only copy of a session.
type SessionView struct {
	PlayerID    string         `json:"player_id"`
	Name        string         `json:"name"`
	RoomID      string         `json:"room_id"`
	Position    store.Position `json:"position"`
	State       string         `json:"state"`
	ConnectedAt time.Time      `json:"connected_at"`
	LastActive  time.Time      `json:"last_active"`
	Transports  []string       `json:"transports"`
	Keys        []string       `json:"keys"`
	InGrace     bool           `json:"in_grace"`
}

func (s *session) view() SessionView {
	ts := make([]string, 0, len(s.transports))
	for id := range s.transports {
		ts = append(ts, id)
	}
	sort.Strings(ts)
	return SessionView{
		PlayerID:    s.playerID,
		Name:        s.name,
		RoomID:      s.roomID,
		Position:    s.position,
		State:       s.state,
		ConnectedAt: s.connectedAt,
		LastActive:  s.lastActive,
		Transports:  ts,
		Keys:        append([]string(nil), s.keys...),
	}
}
