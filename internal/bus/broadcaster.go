// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"fmt"
	"time"
)

// RoomBroadcaster publishes presence events onto a Bus. The connection layer
// subscribes to the room, player and control topics it serves.
type RoomBroadcaster struct {
	bus     Bus
	timeout time.Duration
}

// NewRoomBroadcaster bounds every publish by timeout (0 means the caller's context only).
func NewRoomBroadcaster(b Bus, timeout time.Duration) *RoomBroadcaster {
	return &RoomBroadcaster{bus: b, timeout: timeout}
}

func (r *RoomBroadcaster) publish(ctx context.Context, topic string, ev Event) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.bus.Publish(ctx, topic, ev)
}

// BroadcastToRoom publishes ev to everyone in roomID except excludePlayer.
func (r *RoomBroadcaster) BroadcastToRoom(ctx context.Context, roomID string, ev Event, excludePlayer string) error {
	if roomID == "" {
		return fmt.Errorf("broadcast %s: empty room id", ev.Type)
	}
	ev.RoomID = roomID
	ev.Exclude = excludePlayer
	return r.publish(ctx, RoomTopic(roomID), ev)
}

// SendToPlayer publishes ev to one player.
func (r *RoomBroadcaster) SendToPlayer(ctx context.Context, playerID string, ev Event) error {
	return r.publish(ctx, PlayerTopic(playerID), ev)
}

// ForceDisconnect asks the connection layer to close every transport of playerID.
func (r *RoomBroadcaster) ForceDisconnect(ctx context.Context, playerID string) error {
	ev := NewEvent(EventForceDisconnect, playerID, "")
	return r.publish(ctx, ControlTopic(playerID), ev)
}
