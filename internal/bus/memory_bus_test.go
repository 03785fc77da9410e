// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mudcore/internal/metrics"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestMemoryBusPublishContextTimeoutIncrementsDropMetrics(t *testing.T) {
	b := NewMemoryBus(4)
	sub, err := b.Subscribe(context.Background(), "topic")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	// Fill subscriber channel to capacity so next publish blocks.
	for i := 0; i < cap(sub.C()); i++ {
		require.NoError(t, b.Publish(context.Background(), "topic", "msg"))
	}

	initialLegacy := getCounterValue(t, metrics.BusDropsTotal.WithLabelValues("topic"))
	initialReasoned := getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("topic", "timeout"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "topic", "blocked")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Greater(t, getCounterValue(t, metrics.BusDropsTotal.WithLabelValues("topic")), initialLegacy)
	require.Greater(t, getCounterValue(t, metrics.BusDroppedTotal.WithLabelValues("topic", "timeout")), initialReasoned)
}

func TestMemoryBusPublishRejectsNilContext(t *testing.T) {
	b := NewMemoryBus(0)
	//nolint:staticcheck // nil context is the case under test
	err := b.Publish(nil, "topic", "msg")
	require.Error(t, err)
	require.Contains(t, err.Error(), "context is nil")
}

func TestMemoryBusCloseIsIdempotent(t *testing.T) {
	b := NewMemoryBus(0)
	sub, err := b.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("t"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Zero(t, b.Subscribers("t"))
	_, open := <-sub.C()
	assert.False(t, open)
}

func TestRoomBroadcasterRoutesByTopic(t *testing.T) {
	b := NewMemoryBus(8)
	rb := NewRoomBroadcaster(b, time.Second)
	ctx := context.Background()

	room, err := b.Subscribe(ctx, RoomTopic("hall"))
	require.NoError(t, err)
	defer room.Close()
	player, err := b.Subscribe(ctx, PlayerTopic("7"))
	require.NoError(t, err)
	defer player.Close()
	control, err := b.Subscribe(ctx, ControlTopic("7"))
	require.NoError(t, err)
	defer control.Close()

	left := NewEvent(EventPlayerLeft, "7", "Ann")
	require.NoError(t, rb.BroadcastToRoom(ctx, "hall", left, "7"))
	got := (<-room.C()).(Event)
	assert.Equal(t, EventPlayerLeft, got.Type)
	assert.Equal(t, "hall", got.RoomID)
	assert.Equal(t, "7", got.Exclude)
	assert.NotEmpty(t, got.ID)

	require.NoError(t, rb.SendToPlayer(ctx, "7", NewEvent(EventStateSnapshot, "7", "Ann")))
	assert.Equal(t, EventStateSnapshot, (<-player.C()).(Event).Type)

	require.NoError(t, rb.ForceDisconnect(ctx, "7"))
	assert.Equal(t, EventForceDisconnect, (<-control.C()).(Event).Type)

	assert.Error(t, rb.BroadcastToRoom(ctx, "", left, ""))
}
