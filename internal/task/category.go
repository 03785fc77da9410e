// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

// Unit categories. The first three are reserved for critical infrastructure
// and are cancelled first during shutdown.
const (
	CategoryLifecycle       = "lifecycle"
	CategorySystem          = "system"
	CategorySystemLifecycle = "system_lifecycle"

	CategoryBackground  = "background"
	CategorySupervised  = "supervised"
	CategoryTracked     = "tracked"
	CategoryPlayerTimer = "player_timer"
)

// IsLifecycle reports whether units of the category are lifecycle units.
func IsLifecycle(category string) bool {
	switch category {
	case CategoryLifecycle, CategorySystem, CategorySystemLifecycle:
		return true
	default:
		return false
	}
}

// Outcome is the terminal state a unit reached.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomePanicked  Outcome = "panicked"
)
