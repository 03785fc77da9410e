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
	activeTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mudcore_tasks_active",
		Help: "Tracked units currently registered, by lifecycle class",
	}, []string{"class"}) // class=lifecycle|regular

	TaskOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudcore_task_outcomes_total",
		Help: "Tracked units that reached a terminal state, by category and outcome",
	}, []string{"category", "outcome"}) // outcome=succeeded|failed|cancelled|panicked

	TaskLeaksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudcore_task_leaks_detected_total",
		Help: "Bounded cancellation waits that elapsed before the unit terminated",
	}, []string{"site"})

	RegistrationsDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudcore_task_registrations_denied_total",
		Help: "Registrations rejected because shutdown was in progress",
	})

	shutdownDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mudcore_task_shutdown_seconds",
		Help:    "Duration of registry shutdown by result",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"result"}) // result=clean|stragglers

	ShutdownStragglersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudcore_task_shutdown_stragglers_total",
		Help: "Units still running when the shutdown wait elapsed",
	})

	SupervisedTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudcore_task_supervised_timeouts_total",
		Help: "Supervised units that exceeded their own deadline",
	}, []string{"parent"})

	AuditCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudcore_orphan_audit_cycles_total",
		Help: "Orphan audit cycles by trigger",
	}, []string{"trigger"}) // trigger=periodic|manual

	OrphansFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudcore_orphans_found_total",
		Help: "Units found live but absent from the tracking set",
	})

	CleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudcore_task_cleanup_runs_total",
		Help: "Memory-driven cleanup attempts by result",
	}, []string{"result"}) // result=completed|skipped_cooldown|skipped_below_threshold|timeout|failed

	CleanupReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mudcore_task_cleanup_reclaimed_total",
		Help: "Units cancelled by memory-driven cleanup",
	})
)

// SetActiveTasks records the registry population split by lifecycle class.
func SetActiveTasks(lifecycle, regular int) {
	activeTasks.WithLabelValues("lifecycle").Set(float64(lifecycle))
	activeTasks.WithLabelValues("regular").Set(float64(regular))
}

// IncTaskOutcome records a terminal unit.
func IncTaskOutcome(category, outcome string) {
	if category == "" {
		category = "unknown"
	}
	TaskOutcomesTotal.WithLabelValues(category, outcome).Inc()
}

// IncLeakDetected records a bounded wait that did not observe termination.
func IncLeakDetected(site string) {
	TaskLeaksTotal.WithLabelValues(site).Inc()
}

// ObserveShutdown records how long a registry shutdown took.
func ObserveShutdown(clean bool, d time.Duration, stragglers int) {
	result := "clean"
	if !clean {
		result = "stragglers"
	}
	shutdownDuration.WithLabelValues(result).Observe(d.Seconds())
	if stragglers > 0 {
		ShutdownStragglersTotal.Add(float64(stragglers))
	}
}

// IncAuditCycle records one completed audit pass.
func IncAuditCycle(trigger string) {
	AuditCyclesTotal.WithLabelValues(trigger).Inc()
}

// AddOrphans records orphans identified by an audit.
func AddOrphans(n int) {
	if n > 0 {
		OrphansFoundTotal.Add(float64(n))
	}
}

// IncCleanup records a cleanup attempt and the units it reclaimed.
func IncCleanup(result string, reclaimed int) {
	CleanupRunsTotal.WithLabelValues(result).Inc()
	if reclaimed > 0 {
		CleanupReclaimedTotal.Add(float64(reclaimed))
	}
}
