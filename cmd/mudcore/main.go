// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command mudcore runs the session and task lifecycle core.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/mudcore/internal/config"
	"github.com/ManuGH/mudcore/internal/daemon"
	"github.com/ManuGH/mudcore/internal/health"
	xglog "github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The root command runs the daemon.
func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "mudcore",
		Short:        "Session and task lifecycle core",
		Version:      version.String(),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), configPath)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.Flags().StringVar(&configPath, "config", "", "path to config file (YAML), defaults to $"+config.EnvPrefix+"CONFIG")

	root.AddCommand(newConfigCmd(), newHealthcheckCmd(), newStatusCmd())
	return root
}

func runDaemon(ctx context.Context, configPath string) error {
	// Safe defaults until the configuration is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "mudcore",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	path := strings.TrimSpace(configPath)
	if path == "" {
		path = strings.TrimSpace(config.ParseString(config.EnvPrefix+"CONFIG", ""))
	}

	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.Log.Level,
		Service: cfg.Log.Service,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")
	if path != "" {
		logger.Info().Str("event", "config.loaded").Str("source", "file").Str("path", path).Msg("loaded configuration from file")
	} else {
		logger.Info().Str("event", "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
	}

	preflight := health.Preflight{
		ListenAddr:     cfg.Server.ListenAddr,
		StoreBackend:   cfg.Store.Backend,
		StorePath:      cfg.Store.Path,
		StatusDumpPath: cfg.StatusDumpPath,
	}
	if cfg.NeedsRedis() {
		preflight.RedisAddr = cfg.Redis.Addr
	}
	if err := health.PerformStartupChecks(ctx, preflight); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}

	rt, err := daemon.Build(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "runtime.build_failed").Msg("failed to build runtime")
	}

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:     logger,
		APIHandler: rt.API.Handler(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create daemon manager")
	}
	rt.RegisterHooks(mgr)

	if err := rt.Start(); err != nil {
		logger.Fatal().Err(err).Str("event", "runtime.start_failed").Msg("failed to start background units")
	}

	logger.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("listen", cfg.Server.ListenAddr).
		Str("store", cfg.Store.Backend).
		Msg("mudcore starting")

	app := daemon.NewApp(logger, mgr, config.NewConfigHolder(cfg, loader), rt)
	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.exit_error").Msg("daemon exited with error")
		return err
	}
	logger.Info().Msg("mudcore stopped")
	return nil
}
