// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import "fmt"

// Handle identifies a registered unit. It is a plain value: holding one never
// keeps the unit (or its context) alive. A handle whose unit has terminated
// stays stale forever because its slot generation is bumped on reuse.
type Handle struct {
	slot uint32
	gen  uint32
}

// IsZero reports whether h was never issued by a registry.
func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string {
	if h.IsZero() {
		return "task#none"
	}
	return fmt.Sprintf("task#%d.%d", h.slot, h.gen)
}

// slot is one arena cell. gen is never reset so stale handles cannot alias.
type slot struct {
	gen uint32
	u   *unit
}

// MarshalText renders the handle for operator endpoints.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}
