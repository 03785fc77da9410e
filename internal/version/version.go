// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package version carries build identity, set with -ldflags -X.
package version

import "fmt"

var (
	Version = "v0.1.0"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the identity for -version output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
