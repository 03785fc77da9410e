// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/mudcore/internal/resilience"
)

// Guarded routes data calls through a circuit breaker so a failing backend
// fails fast. Check and Close bypass the breaker.
type Guarded struct {
	inner Store
	cb    *resilience.CircuitBreaker
}

// NewGuarded wraps s. ErrNotFound never counts against the breaker.
func NewGuarded(s Store, threshold int, resetTimeout time.Duration, opts ...resilience.Option) *Guarded {
	opts = append([]resilience.Option{
		resilience.WithIgnore(func(err error) bool { return errors.Is(err, ErrNotFound) }),
	}, opts...)
	return &Guarded{
		inner: s,
		cb:    resilience.NewCircuitBreaker("store", threshold, resetTimeout, opts...),
	}
}

// BreakerState exposes the breaker for status reporting.
func (g *Guarded) BreakerState() resilience.State { return g.cb.State() }

func (g *Guarded) GetPlayerByID(ctx context.Context, id string) (p Player, err error) {
	err = g.cb.Execute(func() error {
		p, err = g.inner.GetPlayerByID(ctx, id)
		return err
	})
	return p, err
}

func (g *Guarded) GetPlayerByName(ctx context.Context, name string) (p Player, err error) {
	err = g.cb.Execute(func() error {
		p, err = g.inner.GetPlayerByName(ctx, name)
		return err
	})
	return p, err
}

func (g *Guarded) SavePlayer(ctx context.Context, p Player) error {
	return g.cb.Execute(func() error { return g.inner.SavePlayer(ctx, p) })
}

func (g *Guarded) UpdateLastActive(ctx context.Context, id string, at time.Time) error {
	return g.cb.Execute(func() error { return g.inner.UpdateLastActive(ctx, id, at) })
}

func (g *Guarded) GetRoomByID(ctx context.Context, id string) (r Room, err error) {
	err = g.cb.Execute(func() error {
		r, err = g.inner.GetRoomByID(ctx, id)
		return err
	})
	return r, err
}

func (g *Guarded) SaveRoom(ctx context.Context, r Room) error {
	return g.cb.Execute(func() error { return g.inner.SaveRoom(ctx, r) })
}

func (g *Guarded) Check(ctx context.Context) error { return g.inner.Check(ctx) }

func (g *Guarded) Close() error { return g.inner.Close() }
