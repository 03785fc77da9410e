// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/mudcore/internal/ident"
)

// MemoryStore keeps everything in process memory. Used for tests and local play.
type MemoryStore struct {
	mu      sync.RWMutex
	players map[string]Player
	names   map[string]string
	rooms   map[string]Room
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players: make(map[string]Player),
		names:   make(map[string]string),
		rooms:   make(map[string]Room),
	}
}

func (s *MemoryStore) GetPlayerByID(_ context.Context, id string) (Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return Player{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) GetPlayerByName(_ context.Context, name string) (Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.names[ident.Canonical(name)]
	if !ok {
		return Player{}, ErrNotFound
	}
	return s.players[id], nil
}

func (s *MemoryStore) SavePlayer(_ context.Context, p Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.players[p.ID]; ok {
		delete(s.names, ident.Canonical(old.Name))
		if p.CreatedAt.IsZero() {
			p.CreatedAt = old.CreatedAt
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.players[p.ID] = p
	s.names[ident.Canonical(p.Name)] = p.ID
	return nil
}

func (s *MemoryStore) UpdateLastActive(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return ErrNotFound
	}
	p.LastActive = at
	s.players[id] = p
	return nil
}

func (s *MemoryStore) GetRoomByID(_ context.Context, id string) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return Room{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) SaveRoom(_ context.Context, r Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
	return nil
}

func (s *MemoryStore) Check(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
