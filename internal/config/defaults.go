// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Default returns the configuration used when neither file nor environment
// override a value.
func Default() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info", Service: "mudcore"},
		Server: ServerConfig{
			ListenAddr:             "127.0.0.1:8088",
			ReadTimeout:            10 * time.Second,
			WriteTimeout:           30 * time.Second,
			IdleTimeout:            2 * time.Minute,
			ShutdownTimeout:        15 * time.Second,
			AuditRequestsPerMinute: 6,
		},
		Tasks: TasksConfig{
			CancelWait:       2 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			BatchConcurrency: 16,
		},
		Memory: MemoryConfig{
			MaxMB:          1024,
			MaxTasks:       5000,
			Cooldown:       time.Minute,
			CleanupTimeout: 30 * time.Second,
		},
		Auditor: AuditorConfig{Interval: time.Minute},
		Grace: GraceConfig{
			Duration:        30 * time.Second,
			AllowedCommands: []string{"attack", "flee", "look"},
		},
		Presence: PresenceConfig{
			StaleDisconnectAge: 2 * time.Minute,
			CascadeTimeout:     10 * time.Second,
			BroadcastTimeout:   2 * time.Second,
			PlaceholderName:    "Someone",
		},
		RateLimit: RateLimitConfig{
			GlobalRate:     500,
			GlobalBurst:    1000,
			PerPlayerRate:  8,
			PerPlayerBurst: 16,
			IdleTimeout:    10 * time.Minute,
		},
		Bus:   BusConfig{Buffer: 64},
		Queue: QueueConfig{Backend: "memory", Capacity: 256, TTL: time.Hour},
		Cache: CacheConfig{Backend: "memory", TTL: 5 * time.Minute, CleanupInterval: time.Minute},
		Redis: RedisConfig{Addr: "localhost:6379", KeyPrefix: "mudcore:"},
		Store: StoreConfig{
			Backend:          "sqlite",
			Path:             "data/mudcore.db",
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Environment:  "development",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 0.1,
		},
	}
}
