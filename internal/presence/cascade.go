// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package presence

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/mudcore/internal/bus"
	"github.com/ManuGH/mudcore/internal/ident"
	xglog "github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/metrics"
	"github.com/ManuGH/mudcore/internal/telemetry"
)

// runCascade removes a departed player everywhere. The caller holds the
// disconnecting marker identified by token; it is released on every path.
func (t *Tracker) runCascade(ctx context.Context, playerID string, token uint64, trigger string) {
	started := t.now()
	ctx, cancel := context.WithTimeout(ctx, t.cascadeTimeout)
	defer cancel()
	ctx, span := telemetry.Tracer("mudcore/presence").Start(ctx, "presence.cleanup_cascade",
		trace.WithAttributes(telemetry.PlayerAttributes(playerID, "", "")...))
	defer span.End()

	gone := false
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("cleanup cascade panic: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			t.logger.Error().Err(err).
				Str(xglog.FieldPlayerID, playerID).
				Str("trigger", trigger).
				Msg("cleanup cascade failed")
		}
		t.mu.Lock()
		t.releaseLocked(playerID, token)
		if gone {
			t.rememberProcessedLocked(playerID)
			delete(t.intentional, playerID)
		}
		n := len(t.sessions)
		t.mu.Unlock()
		metrics.SetSessions(n)
	}()

	t.mu.Lock()
	s, ok := t.sessions[playerID]
	var view SessionView
	if ok {
		view = s.view()
	}
	t.mu.Unlock()
	if !ok {
		gone = true
		return
	}

	rec := t.resolve(ctx, playerID, view.Name)
	name := view.Name
	if name == "" {
		name = rec.Name
	}
	roomID := view.RoomID
	if roomID == "" {
		roomID = rec.RoomID
	}

	if roomID != "" {
		ev := bus.NewEvent(bus.EventPlayerLeft, playerID, name)
		ev.Reason = trigger
		if err := t.deps.Broadcaster.BroadcastToRoom(ctx, roomID, ev, playerID); err != nil {
			t.collaboratorFailed("broadcaster", "broadcast_left", playerID, err)
		}
	}

	recName := rec.Name
	if recName == t.placeholder {
		recName = ""
	}
	keys := mergeKeys(view.Keys, ident.Keys(playerID, recName))
	t.mu.Lock()
	if cur, present := t.sessions[playerID]; present && cur == s && len(cur.transports) == 0 {
		delete(t.sessions, playerID)
		for _, k := range keys {
			if t.keys[k] == playerID {
				delete(t.keys, k)
			}
		}
		gone = true
	}
	t.mu.Unlock()

	if !gone {
		// Reattached while the cascade ran.
		span.SetAttributes(attribute.Bool(telemetry.CascadeReattachKey, true))
		t.logger.Info().
			Str(xglog.FieldPlayerID, playerID).
			Msg("player reattached during cleanup, session kept")
		return
	}

	removed := t.rooms.RemoveEverywhere(keys...)
	if t.deps.Limiter != nil {
		t.deps.Limiter.RemovePlayerData(playerID)
	}
	if t.deps.Queue != nil {
		if err := t.deps.Queue.RemovePlayerMessages(ctx, playerID); err != nil {
			t.collaboratorFailed("queue", "remove_messages", playerID, err)
		}
	}
	ghosts := t.rooms.SweepGhosts(t.liveKeys())

	rec.ID = playerID
	if rec.Name == "" || rec.Name == t.placeholder {
		rec.Name = name
	}
	rec.RoomID = roomID
	rec.Position = view.Position
	rec.State = view.State
	rec.LastActive = t.now()
	if rec.Name != t.placeholder {
		if err := t.deps.Store.SavePlayer(ctx, rec); err != nil {
			t.collaboratorFailed("store", "save_player", playerID, err)
		}
	}

	metrics.IncCascade(trigger, started)
	span.SetAttributes(telemetry.CascadeAttributes(trigger, removed, ghosts)...)
	span.SetAttributes(telemetry.PlayerAttributes("", name, roomID)...)
	t.logger.Info().
		Str(xglog.FieldEvent, "presence.cascade_done").
		Str(xglog.FieldPlayerID, playerID).
		Str(xglog.FieldPlayerName, name).
		Str(xglog.FieldRoomID, roomID).
		Str("trigger", trigger).
		Int("ghosts", ghosts).
		Dur("duration", t.now().Sub(started)).
		Msg("player cleaned up")
}

func (t *Tracker) rememberProcessedLocked(playerID string) {
	now := t.now()
	for id, at := range t.processed {
		if now.Sub(at) >= t.staleAge {
			delete(t.processed, id)
		}
	}
	t.processed[playerID] = now
}

func (t *Tracker) liveKeys() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := make(map[string]struct{}, len(t.keys))
	for k := range t.keys {
		live[k] = struct{}{}
	}
	return live
}

func mergeKeys(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, k := range b {
		dup := false
		for _, x := range out {
			if x == k {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, k)
		}
	}
	return out
}
