// SPDX-License-Identifier: MIT

package ratelimit

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimiterGlobal(t *testing.T) {
	config := Config{
		GlobalRate:     10,
		GlobalBurst:    20,
		PerPlayerRate:  100,
		PerPlayerBurst: 200,
		IdleTimeout:    time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 25; i++ {
		if limiter.Allow("p1", "look") {
			allowed++
		}
	}

	// Should be around 20 (burst size)
	if allowed < 19 || allowed > 21 {
		t.Errorf("expected ~20 commands to pass with burst=20, got %d", allowed)
	}
}

func TestRateLimiterPerClass(t *testing.T) {
	config := Config{
		GlobalRate:     100,
		GlobalBurst:    200,
		PerPlayerRate:  100,
		PerPlayerBurst: 200,
		ClassRates:     map[string]rate.Limit{"chat": 1},
		ClassBurst:     map[string]int{"chat": 3},
		IdleTimeout:    time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow("p1", "chat") {
			allowed++
		}
	}
	if allowed < 3 || allowed > 4 {
		t.Errorf("expected ~3 chat commands with burst=3, got %d", allowed)
	}

	// Other classes and other players have their own buckets.
	if !limiter.Allow("p1", "movement") {
		t.Error("movement should not share the chat bucket")
	}
	if !limiter.Allow("p2", "chat") {
		t.Error("p2 should not share p1's chat bucket")
	}
}

func TestRateLimiterPerPlayer(t *testing.T) {
	config := Config{
		GlobalRate:     100,
		GlobalBurst:    200,
		PerPlayerRate:  5,
		PerPlayerBurst: 10,
		IdleTimeout:    time.Minute,
	}
	limiter := New(config)

	allowed := 0
	for i := 0; i < 20; i++ {
		if limiter.Allow("p1", "look") {
			allowed++
		}
	}
	if allowed < 9 || allowed > 11 {
		t.Errorf("expected ~10 commands to pass with burst=10, got %d", allowed)
	}
}

func TestRemovePlayerDataResetsBuckets(t *testing.T) {
	limiter := New(Config{
		GlobalRate:     100,
		GlobalBurst:    200,
		PerPlayerRate:  0.001,
		PerPlayerBurst: 1,
	})

	if !limiter.Allow("p1", "look") {
		t.Fatal("first command should pass")
	}
	if limiter.Allow("p1", "look") {
		t.Fatal("second command should be throttled")
	}
	limiter.RemovePlayerData("p1")
	if limiter.Tracked() != 0 {
		t.Fatalf("expected no tracked players, got %d", limiter.Tracked())
	}
	if !limiter.Allow("p1", "look") {
		t.Error("fresh bucket after removal should allow")
	}
	limiter.RemovePlayerData("unknown")
}

func TestIdlePlayersAreDropped(t *testing.T) {
	now := time.Unix(1700000000, 0)
	limiter := New(Config{
		GlobalRate:     100,
		GlobalBurst:    200,
		PerPlayerRate:  10,
		PerPlayerBurst: 10,
		IdleTimeout:    time.Minute,
	})
	limiter.now = func() time.Time { return now }
	limiter.lastCleanup = now

	limiter.Allow("idle", "look")
	now = now.Add(2 * time.Minute)
	limiter.Allow("active", "look")

	if got := limiter.Tracked(); got != 1 {
		t.Errorf("expected idle player to be dropped, tracked=%d", got)
	}
}
