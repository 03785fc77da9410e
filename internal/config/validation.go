// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/mudcore/internal/validate"
)

// Validate checks a complete configuration and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("log.level", err.Error(), cfg.Log.Level)
	}

	v.ListenAddr("server.listen", cfg.Server.ListenAddr)
	v.PositiveDuration("server.shutdownTimeout", cfg.Server.ShutdownTimeout)
	v.NonNegative("server.auditRequestsPerMinute", cfg.Server.AuditRequestsPerMinute)

	v.PositiveDuration("tasks.cancelWait", cfg.Tasks.CancelWait)
	v.PositiveDuration("tasks.shutdownTimeout", cfg.Tasks.ShutdownTimeout)
	v.Range("tasks.batchConcurrency", cfg.Tasks.BatchConcurrency, 1, 1024)

	v.NonNegative("memory.maxMB", cfg.Memory.MaxMB)
	v.NonNegative("memory.maxTasks", cfg.Memory.MaxTasks)
	if cfg.Memory.Cooldown < 0 {
		v.AddError("memory.cooldown", "duration cannot be negative", cfg.Memory.Cooldown)
	}
	v.PositiveDuration("memory.cleanupTimeout", cfg.Memory.CleanupTimeout)

	v.PositiveDuration("auditor.interval", cfg.Auditor.Interval)

	v.PositiveDuration("grace.duration", cfg.Grace.Duration)
	v.DurationAtMost("grace.duration", cfg.Grace.Duration, 24*time.Hour)

	v.PositiveDuration("presence.staleDisconnectAge", cfg.Presence.StaleDisconnectAge)
	v.PositiveDuration("presence.cascadeTimeout", cfg.Presence.CascadeTimeout)
	v.NotEmpty("presence.placeholderName", cfg.Presence.PlaceholderName)
	if cfg.Presence.StaleDisconnectAge > 0 && cfg.Presence.StaleDisconnectAge < cfg.Presence.CascadeTimeout {
		v.AddError("presence.staleDisconnectAge", "must not be shorter than presence.cascadeTimeout",
			cfg.Presence.StaleDisconnectAge)
	}

	if cfg.RateLimit.GlobalRate <= 0 || cfg.RateLimit.PerPlayerRate <= 0 {
		v.AddError("rateLimit", "rates must be positive", cfg.RateLimit)
	}
	v.Positive("rateLimit.globalBurst", cfg.RateLimit.GlobalBurst)
	v.Positive("rateLimit.perPlayerBurst", cfg.RateLimit.PerPlayerBurst)

	v.NonNegative("bus.buffer", cfg.Bus.Buffer)

	v.OneOf("queue.backend", cfg.Queue.Backend, []string{"memory", "redis"})
	v.NonNegative("queue.capacity", cfg.Queue.Capacity)
	v.OneOf("cache.backend", cfg.Cache.Backend, []string{"memory", "redis", "none"})
	if cfg.NeedsRedis() {
		v.ListenAddr("redis.addr", cfg.Redis.Addr)
		v.Range("redis.db", cfg.Redis.DB, 0, 15)
	}

	v.OneOf("store.backend", cfg.Store.Backend, []string{"memory", "sqlite", "badger"})
	v.NonNegative("store.breakerThreshold", cfg.Store.BreakerThreshold)
	if cfg.Store.BreakerReset < 0 {
		v.AddError("store.breakerReset", "must not be negative", cfg.Store.BreakerReset)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.ExporterType, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Ratio("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}
