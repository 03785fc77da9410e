// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var breakerStates = []string{"closed", "open", "half-open"}

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mudcore_breaker_state",
		Help: "Circuit breaker state per component (1 for the active state)",
	}, []string{"component", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mudcore_breaker_trips_total",
		Help: "Times a circuit breaker opened, by reason",
	}, []string{"component", "reason"})
)

// SetBreakerState marks state as the active breaker state for component.
func SetBreakerState(component, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		breakerState.WithLabelValues(component, s).Set(v)
	}
}

// RecordBreakerTrip counts one transition into the open state.
func RecordBreakerTrip(component, reason string) {
	breakerTrips.WithLabelValues(component, reason).Inc()
}
