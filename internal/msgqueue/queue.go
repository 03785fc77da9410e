// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package msgqueue buffers outbound messages per player until the connection
// layer drains them.
package msgqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("msgqueue: closed")

// Message is one pending outbound line for a player.
type Message struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"player_id"`
	Kind       string    `json:"kind"`
	Body       string    `json:"body"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewMessage stamps a message with an id and enqueue time.
func NewMessage(playerID, kind, body string) Message {
	return Message{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		Kind:       kind,
		Body:       body,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue is the message queue collaborator.
type Queue interface {
	// Enqueue appends msg, dropping the oldest message when the player's queue is full.
	Enqueue(ctx context.Context, msg Message) error
	// Drain removes and returns up to limit messages in FIFO order.
	Drain(ctx context.Context, playerID string, limit int) ([]Message, error)
	Len(ctx context.Context, playerID string) (int, error)
	// RemovePlayerMessages discards everything queued for playerID.
	RemovePlayerMessages(ctx context.Context, playerID string) error
	Close() error
}
