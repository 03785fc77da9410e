// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package msgqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queues(t *testing.T) map[string]Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rq := newRedisQueue(client, RedisConfig{Capacity: 3, TTL: time.Hour}, zerolog.Nop())
	t.Cleanup(func() { _ = rq.Close() })
	return map[string]Queue{
		"memory": NewMemoryQueue(3),
		"redis":  rq,
	}
}

func bodies(ms []Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Body
	}
	return out
}

func TestQueue_FIFOAndCapacity(t *testing.T) {
	ctx := context.Background()
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= 5; i++ {
				require.NoError(t, q.Enqueue(ctx, NewMessage("p1", "say", fmt.Sprintf("m%d", i))))
			}
			n, err := q.Len(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, 3, n, "oldest messages are dropped at capacity")

			got, err := q.Drain(ctx, "p1", 2)
			require.NoError(t, err)
			assert.Equal(t, []string{"m3", "m4"}, bodies(got))

			got, err = q.Drain(ctx, "p1", 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"m5"}, bodies(got))

			n, err = q.Len(ctx, "p1")
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestQueue_RemovePlayerMessages(t *testing.T) {
	ctx := context.Background()
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, q.Enqueue(ctx, NewMessage("p1", "say", "hello")))
			require.NoError(t, q.Enqueue(ctx, NewMessage("p2", "say", "hi")))

			require.NoError(t, q.RemovePlayerMessages(ctx, "p1"))
			require.NoError(t, q.RemovePlayerMessages(ctx, "nobody"))

			n, err := q.Len(ctx, "p1")
			require.NoError(t, err)
			assert.Zero(t, n)
			n, err = q.Len(ctx, "p2")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestMemoryQueue_Closed(t *testing.T) {
	q := NewMemoryQueue(0)
	require.NoError(t, q.Enqueue(context.Background(), NewMessage("p", "k", "b")))
	assert.Equal(t, 1, q.Players())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(context.Background(), NewMessage("p", "k", "b")), ErrClosed)
	_, err := q.Drain(context.Background(), "p", 1)
	assert.ErrorIs(t, err, ErrClosed)
}
