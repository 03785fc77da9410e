// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
)

// Open creates a Store for the configured backend.
func Open(ctx context.Context, backend, path string) (Store, error) {
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		return NewSqliteStore(ctx, path)
	case "badger":
		return OpenBadgerStore(path)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
