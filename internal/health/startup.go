// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mudcore/internal/log"
)

// Preflight lists what must be usable before the daemon starts.
type Preflight struct {
	ListenAddr     string
	StoreBackend   string
	StorePath      string
	StatusDumpPath string
	RedisAddr      string
}

// PerformStartupChecks validates the environment before starting the server.
func PerformStartupChecks(_ context.Context, p Preflight) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if p.ListenAddr != "" {
		if err := checkListenAddr(p.ListenAddr); err != nil {
			return err
		}
	}
	if p.RedisAddr != "" {
		if _, _, err := net.SplitHostPort(p.RedisAddr); err != nil {
			return fmt.Errorf("invalid redis address %q: %w", p.RedisAddr, err)
		}
	}

	switch strings.ToLower(p.StoreBackend) {
	case "memory":
		logger.Warn().Msg("memory store selected; players are not persisted across restarts")
	case "badger":
		if p.StorePath != "" {
			if err := checkWritableDir(logger, p.StorePath); err != nil {
				return fmt.Errorf("store directory check failed: %w", err)
			}
		}
	default:
		if p.StorePath != "" && p.StorePath != ":memory:" {
			if err := checkWritableDir(logger, filepath.Dir(p.StorePath)); err != nil {
				return fmt.Errorf("store directory check failed: %w", err)
			}
		}
	}

	if p.StatusDumpPath != "" {
		if err := checkWritableDir(logger, filepath.Dir(p.StatusDumpPath)); err != nil {
			return fmt.Errorf("status dump directory check failed: %w", err)
		}
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("directory is writable")
	return nil
}
