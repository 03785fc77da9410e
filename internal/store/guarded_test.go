// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mudcore/internal/resilience"
)

type flakyStore struct {
	Store
	err   error
	calls int
}

func (f *flakyStore) GetPlayerByID(ctx context.Context, id string) (Player, error) {
	f.calls++
	if f.err != nil {
		return Player{}, f.err
	}
	return f.Store.GetPlayerByID(ctx, id)
}

func TestGuarded_NotFoundDoesNotTrip(t *testing.T) {
	g := NewGuarded(NewMemoryStore(), 2, time.Minute)
	for i := 0; i < 5; i++ {
		_, err := g.GetPlayerByID(context.Background(), "missing")
		require.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, resilience.StateClosed, g.BreakerState())
}

func TestGuarded_FailingBackendFailsFast(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{Store: NewMemoryStore(), err: errors.New("disk gone")}
	g := NewGuarded(inner, 2, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := g.GetPlayerByID(ctx, "42")
		require.Error(t, err)
	}
	require.Equal(t, resilience.StateOpen, g.BreakerState())

	_, err := g.GetPlayerByID(ctx, "42")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the backend")

	assert.NoError(t, g.Check(ctx), "health checks bypass the breaker")
}

func TestGuarded_PassesThrough(t *testing.T) {
	ctx := context.Background()
	g := NewGuarded(NewMemoryStore(), 2, time.Minute)
	require.NoError(t, g.SaveRoom(ctx, Room{ID: "hall", Name: "Hall", Safe: true}))
	require.NoError(t, g.SavePlayer(ctx, Player{ID: "1", Name: "Frodo", RoomID: "hall"}))

	p, err := g.GetPlayerByName(ctx, "Frodo")
	require.NoError(t, err)
	assert.Equal(t, "1", p.ID)

	r, err := g.GetRoomByID(ctx, "hall")
	require.NoError(t, err)
	assert.True(t, r.Safe)
	require.NoError(t, g.UpdateLastActive(ctx, "1", time.Now()))
	require.NoError(t, g.Close())
}
