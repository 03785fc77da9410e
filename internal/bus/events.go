// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a presence event.
type EventType string

const (
	EventPlayerEntered   EventType = "player.entered"
	EventPlayerLeft      EventType = "player.left_game"
	EventStateSnapshot   EventType = "player.snapshot"
	EventForceDisconnect EventType = "player.force_disconnect"
)

// Event is the structured payload carried on room, player and control topics.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	At         time.Time      `json:"at"`
	RoomID     string         `json:"room_id,omitempty"`
	PlayerID   string         `json:"player_id,omitempty"`
	PlayerName string         `json:"player_name,omitempty"`
	Exclude    string         `json:"exclude,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(typ EventType, playerID, playerName string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		At:         time.Now().UTC(),
		PlayerID:   playerID,
		PlayerName: playerName,
	}
}

// RoomTopic carries broadcasts for everyone in a room.
func RoomTopic(roomID string) string { return "room." + roomID }

// PlayerTopic carries events addressed to one player.
func PlayerTopic(playerID string) string { return "player." + playerID }

// ControlTopic carries transport control requests for one player.
func ControlTopic(playerID string) string { return "control." + playerID }
