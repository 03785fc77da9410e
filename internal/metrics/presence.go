// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	memoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mudcore_process_memory_bytes",
		Help: "Last sampled process memory used for cleanup decisions",
	})

	GraceTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudcore_grace_transitions_total",
		Help: "Disconnect grace period transitions",
	}, []string{"transition"}) // transition=started|cancelled|expired|duplicate

	activeGrace = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mudcore_grace_active",
		Help: "Players currently held in the disconnect grace period",
	})

	CascadesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudcore_presence_cascades_total",
		Help: "Cleanup cascades run, by trigger",
	}, []string{"trigger"}) // trigger=intentional|grace_expired

	cascadeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mudcore_presence_cascade_seconds",
		Help:    "Duration of the cleanup cascade",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})

	CollaboratorFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudcore_presence_collaborator_failures_total",
		Help: "Best-effort collaborator calls that failed during presence handling",
	}, []string{"collaborator", "op"})

	sessionsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mudcore_presence_sessions",
		Help: "Presence sessions currently held (including players in grace)",
	})

	DuplicateDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudcore_presence_duplicate_disconnects_total",
		Help: "Disconnect signals ignored because the player was already being processed",
	})
)

// SetMemoryBytes records the last memory sample.
func SetMemoryBytes(b uint64) {
	memoryBytes.Set(float64(b))
}

// IncGrace records a grace period transition and keeps the active gauge in step.
func IncGrace(transition string, active int) {
	GraceTransitionsTotal.WithLabelValues(transition).Inc()
	activeGrace.Set(float64(active))
}

// IncCascade records a completed cleanup cascade.
func IncCascade(trigger string, started time.Time) {
	CascadesTotal.WithLabelValues(trigger).Inc()
	cascadeDuration.Observe(time.Since(started).Seconds())
}

// IncCollaboratorFailure records a failed best-effort collaborator call.
func IncCollaboratorFailure(collaborator, op string) {
	CollaboratorFailuresTotal.WithLabelValues(collaborator, op).Inc()
}

// SetSessions records the number of presence sessions.
func SetSessions(n int) {
	sessionsOnline.Set(float64(n))
}
