// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package presence

import (
	"sort"
	"sync"
)

// Rooms records occupancy by identity key. A player occupies a room under
// every one of their keys so lookups by id or by name both succeed.
type Rooms struct {
	mu        sync.RWMutex
	occupants map[string]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{occupants: make(map[string]map[string]struct{})}
}

// Add places keys in roomID. An empty room id is ignored.
func (r *Rooms) Add(roomID string, keys ...string) {
	if roomID == "" || len(keys) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.occupants[roomID]
	if !ok {
		set = make(map[string]struct{}, len(keys))
		r.occupants[roomID] = set
	}
	for _, k := range keys {
		set[k] = struct{}{}
	}
}

// RemoveEverywhere removes keys from every room and returns how many entries went.
func (r *Rooms) RemoveEverywhere(keys ...string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for roomID, set := range r.occupants {
		for _, k := range keys {
			if _, ok := set[k]; ok {
				delete(set, k)
				n++
			}
		}
		if len(set) == 0 {
			delete(r.occupants, roomID)
		}
	}
	return n
}

// SweepGhosts removes occupants whose key is not in live.
func (r *Rooms) SweepGhosts(live map[string]struct{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for roomID, set := range r.occupants {
		for k := range set {
			if _, ok := live[k]; !ok {
				delete(set, k)
				n++
			}
		}
		if len(set) == 0 {
			delete(r.occupants, roomID)
		}
	}
	return n
}

// Occupants returns the sorted keys present in roomID.
func (r *Rooms) Occupants(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.occupants[roomID]
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether key occupies roomID.
func (r *Rooms) Contains(roomID, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.occupants[roomID][key]
	return ok
}

// Anywhere reports whether key occupies any room.
func (r *Rooms) Anywhere(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, set := range r.occupants {
		if _, ok := set[key]; ok {
			return true
		}
	}
	return false
}
