// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"time"
)

// PlayerKey namespaces a per-request entry under its owning player.
func PlayerKey(playerID, name string) string {
	return "player:" + playerID + ":" + name
}

// PlayerCache scopes a Cache to player-owned entries.
type PlayerCache struct {
	Cache Cache
	TTL   time.Duration
}

// Remember stores value for the player under name.
func (p PlayerCache) Remember(playerID, name string, value any) {
	p.Cache.Set(PlayerKey(playerID, name), value, p.TTL)
}

// Lookup returns the player's entry under name.
func (p PlayerCache) Lookup(playerID, name string) (any, bool) {
	return p.Cache.Get(PlayerKey(playerID, name))
}

// InvalidatePlayer drops every entry owned by playerID.
func (p PlayerCache) InvalidatePlayer(_ context.Context, playerID string) {
	p.Cache.DeletePrefix(PlayerKey(playerID, ""))
}
