// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package memwatch

import (
	"runtime"

	"github.com/prometheus/procfs"
)

// ReadResident returns the resident set size from /proc when available and
// falls back to the Go runtime's view of memory obtained from the OS.
func ReadResident() (uint64, string, error) {
	if p, err := procfs.Self(); err == nil {
		if st, err := p.Stat(); err == nil {
			if rss := st.ResidentMemory(); rss > 0 {
				return uint64(rss), "procfs", nil
			}
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys, "runtime", nil
}
