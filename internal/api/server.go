// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the operator HTTP surface: health checks, metrics and
// debug views over tasks, memory, audits and presence.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/mudcore/internal/api/middleware"
	"github.com/ManuGH/mudcore/internal/health"
	"github.com/ManuGH/mudcore/internal/presence"
	"github.com/ManuGH/mudcore/internal/task"
	"github.com/ManuGH/mudcore/internal/task/memwatch"
	"github.com/ManuGH/mudcore/internal/task/orphan"
)

var (
	ErrMissingHealth   = errors.New("api: health manager is required")
	ErrMissingTasks    = errors.New("api: task registry is required")
	ErrMissingMemory   = errors.New("api: memory monitor is required")
	ErrMissingAuditor  = errors.New("api: orphan auditor is required")
	ErrMissingPresence = errors.New("api: presence tracker is required")
)

// TaskLister is the read side of the task registry.
type TaskLister interface {
	Snapshot() []task.Info
	Len() int
	LifecycleLen() int
	ShuttingDown() bool
}

// MemoryReporter exposes the memory monitor's status report.
type MemoryReporter interface {
	StatusReport() memwatch.Report
}

// Auditor runs audits on demand.
type Auditor interface {
	ForceSingleAuditCycle(ctx context.Context) orphan.Report
	Stats() orphan.Stats
	Running() bool
}

// Presence is the session tracker surface the debug routes use.
type Presence interface {
	Lookup(key string) (presence.SessionView, bool)
	Sessions() []presence.SessionView
	Kick(ctx context.Context, playerID string) error
}

// Config tunes the router.
type Config struct {
	AuditRequestsPerMinute int
	// TracingService names the server span; empty disables HTTP tracing.
	TracingService string
}

// Deps are the components the routes read from.
type Deps struct {
	Health   *health.Manager
	Tasks    TaskLister
	Memory   MemoryReporter
	Auditor  Auditor
	Presence Presence
	// Metrics overrides the default Prometheus handler.
	Metrics http.Handler
}

func (d Deps) validate() error {
	switch {
	case d.Health == nil:
		return ErrMissingHealth
	case d.Tasks == nil:
		return ErrMissingTasks
	case d.Memory == nil:
		return ErrMissingMemory
	case d.Auditor == nil:
		return ErrMissingAuditor
	case d.Presence == nil:
		return ErrMissingPresence
	}
	return nil
}

// Server owns the router.
type Server struct {
	cfg    Config
	deps   Deps
	router chi.Router
}

// New builds the router.
func New(cfg Config, deps Deps) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}
	s := &Server{cfg: cfg, deps: deps}
	s.router = s.newRouter()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) newRouter() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", s.deps.Metrics)

	r.Route("/debug", func(r chi.Router) {
		r.Get("/memory", s.handleMemory)
		r.Get("/tasks", s.handleTasks)
		r.With(middleware.AuditRateLimit(s.cfg.AuditRequestsPerMinute)).Post("/audit", s.handleAudit)
		r.Get("/audit", s.handleAuditStats)
		r.Get("/presence", s.handleSessions)
		r.Get("/presence/{player}", s.handleSession)
		r.Post("/presence/{player}/kick", s.handleKick)
	})
	return r
}
