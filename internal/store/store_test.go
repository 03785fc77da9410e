// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sq, err := NewSqliteStore(ctx, filepath.Join(t.TempDir(), "players.sqlite"))
	require.NoError(t, err)
	bg, err := OpenBadgerStore("")
	require.NoError(t, err)

	all := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
		"badger": bg,
	}
	t.Cleanup(func() {
		for _, s := range all {
			_ = s.Close()
		}
	})
	return all
}

func TestStore_PlayerRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := Player{
				ID:       "42",
				Name:     "Gandalf",
				RoomID:   "hall",
				Position: Position{X: 1, Y: 2, Z: -1},
				State:    "standing",
			}
			require.NoError(t, s.SavePlayer(ctx, want))

			got, err := s.GetPlayerByID(ctx, "42")
			require.NoError(t, err)
			opts := cmpopts.IgnoreFields(Player{}, "CreatedAt", "LastActive")
			if diff := cmp.Diff(want, got, opts); diff != "" {
				t.Fatalf("player mismatch (-want +got):\n%s", diff)
			}
			assert.False(t, got.CreatedAt.IsZero())

			byName, err := s.GetPlayerByName(ctx, "GANDALF")
			require.NoError(t, err)
			assert.Equal(t, "42", byName.ID)
		})
	}
}

func TestStore_RenameMovesNameIndex(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SavePlayer(ctx, Player{ID: "1", Name: "Old"}))
			require.NoError(t, s.SavePlayer(ctx, Player{ID: "1", Name: "New"}))

			_, err := s.GetPlayerByName(ctx, "old")
			assert.ErrorIs(t, err, ErrNotFound)
			p, err := s.GetPlayerByName(ctx, "new")
			require.NoError(t, err)
			assert.Equal(t, "1", p.ID)
		})
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetPlayerByID(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.GetPlayerByName(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.GetRoomByID(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.UpdateLastActive(ctx, "missing", time.Now()), ErrNotFound)
		})
	}
}

func TestStore_UpdateLastActiveAndRooms(t *testing.T) {
	ctx := context.Background()
	at := time.UnixMilli(1700000000123).UTC()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.SavePlayer(ctx, Player{ID: "7", Name: "Ann"}))
			require.NoError(t, s.UpdateLastActive(ctx, "7", at))
			p, err := s.GetPlayerByID(ctx, "7")
			require.NoError(t, err)
			assert.True(t, at.Equal(p.LastActive), "got %v", p.LastActive)

			require.NoError(t, s.SaveRoom(ctx, Room{ID: "inn", Name: "The Prancing Pony", Safe: true}))
			r, err := s.GetRoomByID(ctx, "inn")
			require.NoError(t, err)
			assert.Equal(t, Room{ID: "inn", Name: "The Prancing Pony", Safe: true}, r)

			assert.NoError(t, s.Check(ctx))
		})
	}
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(ctx, "badger", "")
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, "", filepath.Join(t.TempDir(), "default.sqlite"))
	require.NoError(t, err)
	assert.IsType(t, &SqliteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "sqlite", "")
	assert.Error(t, err)
	_, err = Open(ctx, "bolt", "x")
	assert.ErrorContains(t, err, "unknown store backend")
}
