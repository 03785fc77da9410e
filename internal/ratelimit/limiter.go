// SPDX-License-Identifier: MIT

// Package ratelimit throttles player commands with token buckets.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mudcore",
			Name:      "ratelimit_exceeded_total",
			Help:      "Total command rate limit rejections",
		},
		[]string{"limit_type", "class"},
	)
)

// Config holds rate limiting configuration.
type Config struct {
	// Server-wide command budget.
	GlobalRate  rate.Limit
	GlobalBurst int

	// Per-player budget shared by every command class.
	PerPlayerRate  rate.Limit
	PerPlayerBurst int

	// Per-player, per-class budgets (e.g. "chat", "movement", "combat").
	ClassRates map[string]rate.Limit
	ClassBurst map[string]int

	// Buckets untouched for this long are dropped.
	IdleTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		GlobalRate:  500,
		GlobalBurst: 1000,

		PerPlayerRate:  8,
		PerPlayerBurst: 16,

		ClassRates: map[string]rate.Limit{
			"chat":     2,
			"movement": 6,
			"combat":   4,
		},
		ClassBurst: map[string]int{
			"chat":     5,
			"movement": 10,
			"combat":   8,
		},

		IdleTimeout: 10 * time.Minute,
	}
}

type playerBuckets struct {
	all      *rate.Limiter
	classes  map[string]*rate.Limiter
	lastSeen time.Time
}

// Limiter manages command rate limiting for connected players.
type Limiter struct {
	config Config
	global *rate.Limiter

	mu          sync.Mutex
	players     map[string]*playerBuckets
	lastCleanup time.Time
	now         func() time.Time
}

// New creates a new rate limiter with the given config.
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		players:     make(map[string]*playerBuckets),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow reports whether playerID may run a command of the given class now.
func (l *Limiter) Allow(playerID, class string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global", class).Inc()
		return false
	}

	l.mu.Lock()
	b := l.bucketsLocked(playerID)
	classLimiter := b.classes[class]
	if classLimiter == nil {
		if r, ok := l.config.ClassRates[class]; ok {
			classLimiter = rate.NewLimiter(r, l.config.ClassBurst[class])
			b.classes[class] = classLimiter
		}
	}
	l.maybeCleanupLocked()
	l.mu.Unlock()

	if classLimiter != nil && !classLimiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_class", class).Inc()
		return false
	}
	if !b.all.Allow() {
		rateLimitExceeded.WithLabelValues("per_player", class).Inc()
		return false
	}
	return true
}

func (l *Limiter) bucketsLocked(playerID string) *playerBuckets {
	b, ok := l.players[playerID]
	if !ok {
		b = &playerBuckets{
			all:     rate.NewLimiter(l.config.PerPlayerRate, l.config.PerPlayerBurst),
			classes: make(map[string]*rate.Limiter),
		}
		l.players[playerID] = b
	}
	b.lastSeen = l.now()
	return b
}

// RemovePlayerData forgets every bucket held for playerID.
func (l *Limiter) RemovePlayerData(playerID string) {
	l.mu.Lock()
	delete(l.players, playerID)
	l.mu.Unlock()
}

// Tracked returns the number of players with buckets.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.players)
}

// maybeCleanupLocked drops idle players once per idle interval.
func (l *Limiter) maybeCleanupLocked() {
	if l.config.IdleTimeout <= 0 {
		return
	}
	now := l.now()
	if now.Sub(l.lastCleanup) < l.config.IdleTimeout {
		return
	}
	for id, b := range l.players {
		if now.Sub(b.lastSeen) >= l.config.IdleTimeout {
			delete(l.players, id)
		}
	}
	l.lastCleanup = now
}
