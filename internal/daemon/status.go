// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/mudcore/internal/store"
	"github.com/ManuGH/mudcore/internal/task/memwatch"
	"github.com/ManuGH/mudcore/internal/task/orphan"
)

// StatusDump is the final report written on shutdown.
type StatusDump struct {
	Version     string          `json:"version"`
	WrittenAt   time.Time       `json:"written_at"`
	Memory      memwatch.Report `json:"memory"`
	Audit       orphan.Stats    `json:"audit"`
	LiveUnits   int             `json:"live_units"`
	Stragglers  []string        `json:"stragglers,omitempty"`
	Sessions    int             `json:"sessions"`
	GracePeriod int             `json:"grace_periods"`
	StoreState  string          `json:"store_breaker,omitempty"`
}

// Status collects the current report.
func (rt *Runtime) Status() StatusDump {
	d := StatusDump{
		Version:     rt.Config.Version,
		WrittenAt:   time.Now().UTC(),
		Memory:      rt.Memory.StatusReport(),
		Audit:       rt.Auditor.Stats(),
		LiveUnits:   rt.Registry.Len(),
		Stragglers:  rt.Registry.LastStragglers(),
		Sessions:    rt.Presence.Len(),
		GracePeriod: rt.Presence.Grace().Len(),
	}
	if g, ok := rt.Store.(*store.Guarded); ok {
		d.StoreState = string(g.BreakerState())
	}
	return d
}

// DumpStatus writes Status to path with an atomic, fsynced replace.
func (rt *Runtime) DumpStatus(path string) error {
	data, err := json.MarshalIndent(rt.Status(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o640))
	if err != nil {
		return fmt.Errorf("create pending status file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			rt.logger.Debug().Err(err).Msg("cleanup pending status file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace status file: %w", err)
	}
	rt.logger.Info().Str("path", path).Msg("status report written")
	return nil
}
