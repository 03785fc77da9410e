// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestIncTaskOutcomeDefaultsCategory(t *testing.T) {
	before := counterValue(t, TaskOutcomesTotal.WithLabelValues("unknown", "succeeded"))
	IncTaskOutcome("", "succeeded")
	after := counterValue(t, TaskOutcomesTotal.WithLabelValues("unknown", "succeeded"))
	require.Equal(t, before+1, after)
}

func TestObserveShutdownCountsStragglers(t *testing.T) {
	before := counterValue(t, ShutdownStragglersTotal)
	ObserveShutdown(false, 10*time.Millisecond, 3)
	ObserveShutdown(true, time.Millisecond, 0)
	require.Equal(t, before+3, counterValue(t, ShutdownStragglersTotal))
}

func TestIncCleanupIgnoresZeroReclaim(t *testing.T) {
	beforeRuns := counterValue(t, CleanupRunsTotal.WithLabelValues("skipped_cooldown"))
	beforeReclaimed := counterValue(t, CleanupReclaimedTotal)

	IncCleanup("skipped_cooldown", 0)

	require.Equal(t, beforeRuns+1, counterValue(t, CleanupRunsTotal.WithLabelValues("skipped_cooldown")))
	require.Equal(t, beforeReclaimed, counterValue(t, CleanupReclaimedTotal))
}

func TestIncBusDropReasonDefaults(t *testing.T) {
	before := counterValue(t, BusDroppedTotal.WithLabelValues("unknown", "unknown"))
	IncBusDropReason("", "")
	require.Equal(t, before+1, counterValue(t, BusDroppedTotal.WithLabelValues("unknown", "unknown")))
}
