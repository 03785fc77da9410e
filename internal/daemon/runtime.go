// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/mudcore/internal/api"
	"github.com/ManuGH/mudcore/internal/bus"
	"github.com/ManuGH/mudcore/internal/cache"
	"github.com/ManuGH/mudcore/internal/config"
	"github.com/ManuGH/mudcore/internal/health"
	xglog "github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/msgqueue"
	"github.com/ManuGH/mudcore/internal/presence"
	"github.com/ManuGH/mudcore/internal/ratelimit"
	"github.com/ManuGH/mudcore/internal/store"
	"github.com/ManuGH/mudcore/internal/task"
	"github.com/ManuGH/mudcore/internal/task/memwatch"
	"github.com/ManuGH/mudcore/internal/task/orphan"
	"github.com/ManuGH/mudcore/internal/task/tracked"
	"github.com/ManuGH/mudcore/internal/telemetry"
)

// Queue is a per-player message queue the runtime owns.
type Queue interface {
	presence.MessageQueue
	Close() error
}

// Runtime is the wired object graph of one daemon process.
type Runtime struct {
	Config config.AppConfig

	Registry  *task.Registry
	Tasks     *tracked.Manager
	Memory    *memwatch.Monitor
	Auditor   *orphan.Auditor
	Presence  *presence.Tracker
	Bus       *bus.MemoryBus
	Store     store.Store
	Queue     Queue
	Cache     cache.Cache
	Limiter   *ratelimit.Limiter
	Health    *health.Manager
	API       *api.Server
	Telemetry *telemetry.Provider

	logger  zerolog.Logger
	closers []namedHook
}

// BuildOption adjusts Build for tests.
type BuildOption func(*buildOptions)

type buildOptions struct {
	store     store.Store
	memReader memwatch.Reader
}

// WithStore injects a store instead of opening the configured backend.
func WithStore(s store.Store) BuildOption {
	return func(o *buildOptions) { o.store = s }
}

// WithMemoryReader replaces the resident memory reader.
func WithMemoryReader(r memwatch.Reader) BuildOption {
	return func(o *buildOptions) { o.memReader = r }
}

// Build opens backends and wires every component. On error everything opened
// so far is closed again.
func Build(ctx context.Context, cfg config.AppConfig, opts ...BuildOption) (rt *Runtime, err error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	rt = &Runtime{Config: cfg, logger: xglog.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	rt.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Log.Service,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.ExporterType,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	rt.addCloser("telemetry", rt.Telemetry.Shutdown)

	raw := o.store
	if raw == nil {
		if raw, err = store.Open(ctx, cfg.Store.Backend, cfg.Store.Path); err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
	}
	rt.Store = store.NewGuarded(raw, cfg.Store.BreakerThreshold, cfg.Store.BreakerReset)
	rt.addCloser("store", func(context.Context) error { return rt.Store.Close() })

	if err = rt.openQueue(ctx, cfg); err != nil {
		return nil, err
	}
	if err = rt.openCache(cfg); err != nil {
		return nil, err
	}

	rt.Bus = bus.NewMemoryBus(cfg.Bus.Buffer)
	rt.Limiter = ratelimit.New(limiterConfig(cfg.RateLimit))

	rt.Registry = task.NewRegistry()
	rt.Tasks, err = tracked.New(rt.Registry, tracked.Config{
		CancelWait:       cfg.Tasks.CancelWait,
		BatchConcurrency: cfg.Tasks.BatchConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("task manager: %w", err)
	}

	memOpts := []memwatch.Option{}
	if o.memReader != nil {
		memOpts = append(memOpts, memwatch.WithReader(o.memReader))
	}
	rt.Memory = memwatch.New(rt.Tasks, rt.Registry, thresholds(cfg.Memory), memOpts...)
	rt.Auditor = orphan.New(rt.Tasks, rt.Memory, orphan.Config{
		Interval:       cfg.Auditor.Interval,
		AutoCleanup:    cfg.Auditor.AutoCleanup,
		CleanupTimeout: cfg.Memory.CleanupTimeout,
	})

	rt.Presence, err = presence.New(presence.Deps{
		Broadcaster: bus.NewRoomBroadcaster(rt.Bus, cfg.Presence.BroadcastTimeout),
		Store:       rt.Store,
		Transports:  busTransports{bus: rt.Bus},
		Limiter:     rt.Limiter,
		Queue:       rt.Queue,
		Cache:       cache.PlayerCache{Cache: rt.Cache, TTL: cfg.Cache.TTL},
	}, rt.Tasks, presence.Config{
		GraceDuration:      cfg.Grace.Duration,
		StaleDisconnectAge: cfg.Presence.StaleDisconnectAge,
		CascadeTimeout:     cfg.Presence.CascadeTimeout,
		PlaceholderName:    cfg.Presence.PlaceholderName,
		AllowedCommands:    cfg.Grace.AllowedCommands,
	})
	if err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}

	rt.Health = rt.buildHealth(cfg)
	rt.API, err = api.New(api.Config{
		AuditRequestsPerMinute: cfg.Server.AuditRequestsPerMinute,
		TracingService:         tracingService(cfg),
	}, api.Deps{
		Health:   rt.Health,
		Tasks:    rt.Registry,
		Memory:   rt.Memory,
		Auditor:  rt.Auditor,
		Presence: rt.Presence,
	})
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	return rt, nil
}

func (rt *Runtime) openQueue(ctx context.Context, cfg config.AppConfig) error {
	switch cfg.Queue.Backend {
	case "redis":
		q, err := msgqueue.NewRedisQueue(ctx, msgqueue.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix + "mq:",
			Capacity:  cfg.Queue.Capacity,
			TTL:       cfg.Queue.TTL,
		}, xglog.WithComponent("msgqueue"))
		if err != nil {
			return fmt.Errorf("message queue: %w", err)
		}
		rt.Queue = q
	default:
		rt.Queue = msgqueue.NewMemoryQueue(cfg.Queue.Capacity)
	}
	rt.addCloser("msgqueue", func(context.Context) error { return rt.Queue.Close() })
	return nil
}

func (rt *Runtime) openCache(cfg config.AppConfig) error {
	switch cfg.Cache.Backend {
	case "redis":
		c, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, xglog.WithComponent("cache"))
		if err != nil {
			return fmt.Errorf("cache: %w", err)
		}
		rt.Cache = c
	case "none":
		rt.Cache = cache.NewNoOpCache()
	default:
		rt.Cache = cache.NewMemoryCache(cfg.Cache.CleanupInterval)
	}
	if c, ok := rt.Cache.(io.Closer); ok {
		rt.addCloser("cache", func(context.Context) error { return c.Close() })
	}
	return nil
}

func (rt *Runtime) buildHealth(cfg config.AppConfig) *health.Manager {
	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewRegistryChecker(rt.Registry))
	hm.RegisterChecker(health.NewMemoryChecker(rt.Memory))
	hm.RegisterChecker(health.NewLoopChecker("orphan_auditor", rt.Auditor.Running))
	hm.RegisterChecker(health.NewFuncChecker("store", health.StatusUnhealthy, rt.Store.Check))

	type pinger interface {
		HealthCheck(ctx context.Context) error
	}
	var redisCheck func(ctx context.Context) error
	if p, ok := rt.Queue.(pinger); ok {
		redisCheck = p.HealthCheck
	} else if p, ok := rt.Cache.(pinger); ok {
		redisCheck = p.HealthCheck
	}
	if redisCheck != nil {
		hm.RegisterChecker(health.NewFuncChecker("redis", health.StatusDegraded, redisCheck))
	}
	return hm
}

// Start launches the background units.
func (rt *Runtime) Start() error {
	if err := rt.Auditor.Start(); err != nil {
		return fmt.Errorf("start orphan auditor: %w", err)
	}
	return nil
}

// RegisterHooks installs the shutdown sequence on m. Hooks run LIFO, so the
// auditor stops first and telemetry flushes last.
func (rt *Runtime) RegisterHooks(m Manager) {
	for _, c := range rt.closers {
		m.RegisterShutdownHook(c.name, c.hook)
	}
	rt.closers = nil
	m.RegisterShutdownHook("status-dump", rt.dumpStatusHook)
	m.RegisterShutdownHook("task-registry", rt.shutdownTasks)
	m.RegisterShutdownHook("orphan-auditor", func(context.Context) error {
		if err := rt.Auditor.Stop(); err != nil && !errors.Is(err, orphan.ErrNotRunning) {
			return err
		}
		return nil
	})
}

func (rt *Runtime) shutdownTasks(context.Context) error {
	if !rt.Registry.ShutdownAll(rt.Config.Tasks.ShutdownTimeout) {
		return fmt.Errorf("units still running after %s: %s",
			rt.Config.Tasks.ShutdownTimeout, strings.Join(rt.Registry.LastStragglers(), ", "))
	}
	return nil
}

func (rt *Runtime) dumpStatusHook(context.Context) error {
	if rt.Config.StatusDumpPath == "" {
		return nil
	}
	return rt.DumpStatus(rt.Config.StatusDumpPath)
}

// Close releases backends without running the task shutdown. Build uses it
// to unwind a partial construction.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.closers[i].name, err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *Runtime) addCloser(name string, fn ShutdownHook) {
	rt.closers = append(rt.closers, namedHook{name: name, hook: fn})
}

// Apply pushes the hot-reloadable settings of cfg into the running components.
func (rt *Runtime) Apply(cfg config.AppConfig) {
	if !xglog.SetLevel(cfg.Log.Level) {
		rt.logger.Warn().Str("level", cfg.Log.Level).Msg("ignoring invalid log level from reload")
	}
	rt.Memory.SetThresholds(thresholds(cfg.Memory))
	rt.Auditor.SetAutoCleanup(cfg.Auditor.AutoCleanup)
	rt.Auditor.SetInterval(cfg.Auditor.Interval)
	rt.Presence.SetGraceDuration(cfg.Grace.Duration)
	rt.Presence.SetAllowedCommands(cfg.Grace.AllowedCommands)
	rt.Config = cfg
	rt.logger.Info().Str("event", "config.applied").Msg("runtime settings updated")
}

func thresholds(m config.MemoryConfig) memwatch.Thresholds {
	return memwatch.Thresholds{
		MaxMemoryBytes: m.MaxMemoryBytes(),
		MaxTasks:       m.MaxTasks,
		Cooldown:       m.Cooldown,
	}
}

func limiterConfig(c config.RateLimitConfig) ratelimit.Config {
	lc := ratelimit.DefaultConfig()
	lc.GlobalRate = rate.Limit(c.GlobalRate)
	lc.GlobalBurst = c.GlobalBurst
	lc.PerPlayerRate = rate.Limit(c.PerPlayerRate)
	lc.PerPlayerBurst = c.PerPlayerBurst
	lc.IdleTimeout = c.IdleTimeout
	return lc
}

func tracingService(cfg config.AppConfig) string {
	if !cfg.Telemetry.Enabled {
		return ""
	}
	return cfg.Log.Service + "-api"
}

// busTransports treats a subscription on the player's topic as a live transport.
type busTransports struct {
	bus *bus.MemoryBus
}

func (b busTransports) HasLiveTransport(playerID string) bool {
	return b.bus.Subscribers(bus.PlayerTopic(playerID)) > 0
}
