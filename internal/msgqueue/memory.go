// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package msgqueue

import (
	"context"
	"sync"

	"github.com/eapache/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var droppedOldest = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mudcore",
	Name:      "msgqueue_dropped_total",
	Help:      "Messages discarded because a player's queue was full",
}, []string{"backend"})

// MemoryQueue keeps one ring buffer per player.
type MemoryQueue struct {
	mu       sync.Mutex
	perUser  map[string]*queue.Queue
	capacity int
	closed   bool
}

// NewMemoryQueue bounds each player's queue to capacity messages (0 = unbounded).
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{perUser: make(map[string]*queue.Queue), capacity: capacity}
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	rb, ok := q.perUser[msg.PlayerID]
	if !ok {
		rb = queue.New()
		q.perUser[msg.PlayerID] = rb
	}
	if q.capacity > 0 && rb.Length() >= q.capacity {
		rb.Remove()
		droppedOldest.WithLabelValues("memory").Inc()
	}
	rb.Add(msg)
	return nil
}

func (q *MemoryQueue) Drain(_ context.Context, playerID string, limit int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	rb, ok := q.perUser[playerID]
	if !ok {
		return nil, nil
	}
	n := rb.Length()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, rb.Remove().(Message))
	}
	if rb.Length() == 0 {
		delete(q.perUser, playerID)
	}
	return out, nil
}

func (q *MemoryQueue) Len(_ context.Context, playerID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if rb, ok := q.perUser[playerID]; ok {
		return rb.Length(), nil
	}
	return 0, nil
}

func (q *MemoryQueue) RemovePlayerMessages(_ context.Context, playerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.perUser, playerID)
	return nil
}

// Players returns the number of players with pending messages.
func (q *MemoryQueue) Players() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.perUser)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.perUser = make(map[string]*queue.Queue)
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
