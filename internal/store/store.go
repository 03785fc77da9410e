// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists players and rooms for the presence core.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a player or room does not exist.
var ErrNotFound = errors.New("store: not found")

// Position is a player's location inside a room.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Player is the persisted player record.
type Player struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	RoomID     string    `json:"room_id"`
	Position   Position  `json:"position"`
	State      string    `json:"state"`
	LastActive time.Time `json:"last_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Room is the persisted room record. Safe rooms allow resting, which counts
// as an intentional disconnect.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Zone string `json:"zone"`
	Safe bool   `json:"safe"`
}

// Store is the persistence collaborator. Every call is fallible.
type Store interface {
	GetPlayerByID(ctx context.Context, id string) (Player, error)
	GetPlayerByName(ctx context.Context, name string) (Player, error)
	SavePlayer(ctx context.Context, p Player) error
	UpdateLastActive(ctx context.Context, id string, at time.Time) error
	GetRoomByID(ctx context.Context, id string) (Room, error)
	SaveRoom(ctx context.Context, r Room) error
	// Check verifies the backend is usable.
	Check(ctx context.Context) error
	Close() error
}
