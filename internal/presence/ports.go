// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package presence

import (
	"context"
	"time"

	"github.com/ManuGH/mudcore/internal/bus"
	"github.com/ManuGH/mudcore/internal/store"
)

// Broadcaster is the connection layer's outbound surface.
type Broadcaster interface {
	BroadcastToRoom(ctx context.Context, roomID string, ev bus.Event, excludePlayer string) error
	SendToPlayer(ctx context.Context, playerID string, ev bus.Event) error
	ForceDisconnect(ctx context.Context, playerID string) error
}

// TransportCounter lets the connection layer veto a disconnect while it still
// holds a live transport the tracker has not been told about.
type TransportCounter interface {
	HasLiveTransport(playerID string) bool
}

// PlayerStore is the persistence collaborator. Failures are never fatal.
type PlayerStore interface {
	GetPlayerByID(ctx context.Context, id string) (store.Player, error)
	GetPlayerByName(ctx context.Context, name string) (store.Player, error)
	SavePlayer(ctx context.Context, p store.Player) error
	GetRoomByID(ctx context.Context, id string) (store.Room, error)
	UpdateLastActive(ctx context.Context, id string, at time.Time) error
}

// RateLimiter drops per-player throttling state.
type RateLimiter interface {
	RemovePlayerData(playerID string)
}

// MessageQueue drops per-player outbound messages.
type MessageQueue interface {
	RemovePlayerMessages(ctx context.Context, playerID string) error
}

// RequestCache drops per-request caches for a player.
type RequestCache interface {
	InvalidatePlayer(ctx context.Context, playerID string)
}

// Deps are the tracker's collaborators. Broadcaster and Store are required.
type Deps struct {
	Broadcaster Broadcaster
	Store       PlayerStore
	Transports  TransportCounter
	Limiter     RateLimiter
	Queue       MessageQueue
	Cache       RequestCache
}
