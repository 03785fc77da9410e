// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
	// ConsumedEnvKeys records every environment key the last Load read.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty configPath means environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the watched config file, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.ConsumedEnvKeys[k] = struct{}{}
	return k
}

func (l *Loader) envString(name, def string) string {
	return ParseString(l.key(name), def)
}

func (l *Loader) envInt(name string, def int) int {
	return ParseInt(l.key(name), def)
}

func (l *Loader) envBool(name string, def bool) bool {
	return ParseBool(l.key(name), def)
}

func (l *Loader) envFloat(name string, def float64) float64 {
	return ParseFloat(l.key(name), def)
}

func (l *Loader) envDuration(name string, def time.Duration) time.Duration {
	return ParseDuration(l.key(name), def)
}

// Load returns the effective configuration: defaults, strict file, env, validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes YAML over cfg. Unknown fields and multiple documents are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	cfg.Server.ListenAddr = l.envString("LISTEN", cfg.Server.ListenAddr)
	cfg.Server.ReadTimeout = l.envDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = l.envDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = l.envDuration("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = l.envDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.AuditRequestsPerMinute = l.envInt("AUDIT_REQUESTS_PER_MINUTE", cfg.Server.AuditRequestsPerMinute)

	cfg.Tasks.CancelWait = l.envDuration("TASK_CANCEL_WAIT", cfg.Tasks.CancelWait)
	cfg.Tasks.ShutdownTimeout = l.envDuration("TASK_SHUTDOWN_TIMEOUT", cfg.Tasks.ShutdownTimeout)
	cfg.Tasks.BatchConcurrency = l.envInt("TASK_BATCH_CONCURRENCY", cfg.Tasks.BatchConcurrency)

	cfg.Memory.MaxMB = l.envInt("MEMORY_MAX_MB", cfg.Memory.MaxMB)
	cfg.Memory.MaxTasks = l.envInt("MEMORY_MAX_TASKS", cfg.Memory.MaxTasks)
	cfg.Memory.Cooldown = l.envDuration("MEMORY_COOLDOWN", cfg.Memory.Cooldown)
	cfg.Memory.CleanupTimeout = l.envDuration("MEMORY_CLEANUP_TIMEOUT", cfg.Memory.CleanupTimeout)

	cfg.Auditor.Interval = l.envDuration("AUDIT_INTERVAL", cfg.Auditor.Interval)
	cfg.Auditor.AutoCleanup = l.envBool("AUDIT_AUTO_CLEANUP", cfg.Auditor.AutoCleanup)

	cfg.Grace.Duration = l.envDuration("GRACE_DURATION", cfg.Grace.Duration)
	cfg.Grace.AllowedCommands = ParseList(l.key("GRACE_ALLOWED_COMMANDS"), cfg.Grace.AllowedCommands)

	cfg.Presence.StaleDisconnectAge = l.envDuration("PRESENCE_STALE_DISCONNECT_AGE", cfg.Presence.StaleDisconnectAge)
	cfg.Presence.CascadeTimeout = l.envDuration("PRESENCE_CASCADE_TIMEOUT", cfg.Presence.CascadeTimeout)
	cfg.Presence.BroadcastTimeout = l.envDuration("PRESENCE_BROADCAST_TIMEOUT", cfg.Presence.BroadcastTimeout)
	cfg.Presence.PlaceholderName = l.envString("PRESENCE_PLACEHOLDER_NAME", cfg.Presence.PlaceholderName)

	cfg.RateLimit.GlobalRate = l.envFloat("RATELIMIT_GLOBAL_RATE", cfg.RateLimit.GlobalRate)
	cfg.RateLimit.GlobalBurst = l.envInt("RATELIMIT_GLOBAL_BURST", cfg.RateLimit.GlobalBurst)
	cfg.RateLimit.PerPlayerRate = l.envFloat("RATELIMIT_PLAYER_RATE", cfg.RateLimit.PerPlayerRate)
	cfg.RateLimit.PerPlayerBurst = l.envInt("RATELIMIT_PLAYER_BURST", cfg.RateLimit.PerPlayerBurst)
	cfg.RateLimit.IdleTimeout = l.envDuration("RATELIMIT_IDLE_TIMEOUT", cfg.RateLimit.IdleTimeout)

	cfg.Bus.Buffer = l.envInt("BUS_BUFFER", cfg.Bus.Buffer)

	cfg.Queue.Backend = strings.ToLower(l.envString("QUEUE_BACKEND", cfg.Queue.Backend))
	cfg.Queue.Capacity = l.envInt("QUEUE_CAPACITY", cfg.Queue.Capacity)
	cfg.Queue.TTL = l.envDuration("QUEUE_TTL", cfg.Queue.TTL)

	cfg.Cache.Backend = strings.ToLower(l.envString("CACHE_BACKEND", cfg.Cache.Backend))
	cfg.Cache.TTL = l.envDuration("CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.CleanupInterval = l.envDuration("CACHE_CLEANUP_INTERVAL", cfg.Cache.CleanupInterval)

	cfg.Redis.Addr = l.envString("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = l.envString("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = l.envInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.KeyPrefix = l.envString("REDIS_KEY_PREFIX", cfg.Redis.KeyPrefix)

	cfg.Store.Backend = strings.ToLower(l.envString("STORE_BACKEND", cfg.Store.Backend))
	cfg.Store.Path = l.envString("STORE_PATH", cfg.Store.Path)
	cfg.Store.BreakerThreshold = l.envInt("STORE_BREAKER_THRESHOLD", cfg.Store.BreakerThreshold)
	cfg.Store.BreakerReset = l.envDuration("STORE_BREAKER_RESET", cfg.Store.BreakerReset)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.ExporterType = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	cfg.StatusDumpPath = l.envString("STATUS_DUMP_PATH", cfg.StatusDumpPath)
}
