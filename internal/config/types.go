// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads mudcore configuration: defaults, then a strict YAML
// file, then MUDCORE_* environment variables, then validation.
package config

import "time"

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Memory    MemoryConfig    `yaml:"memory"`
	Auditor   AuditorConfig   `yaml:"auditor"`
	Grace     GraceConfig     `yaml:"grace"`
	Presence  PresenceConfig  `yaml:"presence"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Bus       BusConfig       `yaml:"bus"`
	Queue     QueueConfig     `yaml:"queue"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// StatusDumpPath receives the memory status report as JSON on shutdown.
	StatusDumpPath string `yaml:"statusDumpPath"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// AuditRequestsPerMinute limits POST /debug/audit.
	AuditRequestsPerMinute int `yaml:"auditRequestsPerMinute"`
}

type TasksConfig struct {
	CancelWait       time.Duration `yaml:"cancelWait"`
	ShutdownTimeout  time.Duration `yaml:"shutdownTimeout"`
	BatchConcurrency int           `yaml:"batchConcurrency"`
}

type MemoryConfig struct {
	// MaxMB and MaxTasks are independent ceilings; 0 disables one.
	MaxMB          int           `yaml:"maxMB"`
	MaxTasks       int           `yaml:"maxTasks"`
	Cooldown       time.Duration `yaml:"cooldown"`
	CleanupTimeout time.Duration `yaml:"cleanupTimeout"`
}

type AuditorConfig struct {
	Interval    time.Duration `yaml:"interval"`
	AutoCleanup bool          `yaml:"autoCleanup"`
}

type GraceConfig struct {
	Duration        time.Duration `yaml:"duration"`
	AllowedCommands []string      `yaml:"allowedCommands"`
}

type PresenceConfig struct {
	StaleDisconnectAge time.Duration `yaml:"staleDisconnectAge"`
	CascadeTimeout     time.Duration `yaml:"cascadeTimeout"`
	BroadcastTimeout   time.Duration `yaml:"broadcastTimeout"`
	PlaceholderName    string        `yaml:"placeholderName"`
}

type RateLimitConfig struct {
	GlobalRate     float64       `yaml:"globalRate"`
	GlobalBurst    int           `yaml:"globalBurst"`
	PerPlayerRate  float64       `yaml:"perPlayerRate"`
	PerPlayerBurst int           `yaml:"perPlayerBurst"`
	IdleTimeout    time.Duration `yaml:"idleTimeout"`
}

type BusConfig struct {
	Buffer int `yaml:"buffer"`
}

type QueueConfig struct {
	Backend  string        `yaml:"backend"` // memory | redis
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

type CacheConfig struct {
	Backend         string        `yaml:"backend"` // memory | redis | none
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

type StoreConfig struct {
	Backend string `yaml:"backend"` // memory | sqlite | badger
	Path    string `yaml:"path"`
	// BreakerThreshold consecutive failures open the store breaker for BreakerReset.
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Environment  string  `yaml:"environment"`
	ExporterType string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// MaxMemoryBytes converts the configured ceiling to bytes.
func (m MemoryConfig) MaxMemoryBytes() uint64 {
	if m.MaxMB <= 0 {
		return 0
	}
	return uint64(m.MaxMB) << 20
}

// NeedsRedis reports whether any backend is redis.
func (c AppConfig) NeedsRedis() bool {
	return c.Queue.Backend == "redis" || c.Cache.Backend == "redis"
}
