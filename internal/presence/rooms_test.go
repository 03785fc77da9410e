// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRooms_AddRemoveSweep(t *testing.T) {
	r := NewRooms()
	r.Add("hall", "1", "alice")
	r.Add("pit", "2", "bob")
	r.Add("", "ignored")
	r.Add("pit", "ghost")

	assert.Equal(t, []string{"1", "alice"}, r.Occupants("hall"))
	assert.True(t, r.Contains("pit", "ghost"))

	assert.Equal(t, 2, r.RemoveEverywhere("1", "alice"))
	assert.Empty(t, r.Occupants("hall"))

	live := map[string]struct{}{"2": {}, "bob": {}}
	assert.Equal(t, 1, r.SweepGhosts(live))
	assert.Equal(t, []string{"2", "bob"}, r.Occupants("pit"))
	assert.False(t, r.Anywhere("ghost"))
}
