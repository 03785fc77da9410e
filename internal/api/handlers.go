// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/mudcore/internal/log"
	"github.com/ManuGH/mudcore/internal/presence"
	"github.com/ManuGH/mudcore/internal/task"
	"github.com/ManuGH/mudcore/internal/task/orphan"
)

type tasksResponse struct {
	Total        int         `json:"total"`
	Lifecycle    int         `json:"lifecycle"`
	ShuttingDown bool        `json:"shutting_down"`
	Units        []task.Info `json:"units"`
}

type auditStatsResponse struct {
	Running bool         `json:"running"`
	Stats   orphan.Stats `json:"stats"`
}

type sessionsResponse struct {
	Count    int                    `json:"count"`
	Sessions []presence.SessionView `json:"sessions"`
}

func (s *Server) handleMemory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Memory.StatusReport())
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	units := s.deps.Tasks.Snapshot()
	if units == nil {
		units = []task.Info{}
	}
	writeJSON(w, http.StatusOK, tasksResponse{
		Total:        s.deps.Tasks.Len(),
		Lifecycle:    s.deps.Tasks.LifecycleLen(),
		ShuttingDown: s.deps.Tasks.ShuttingDown(),
		Units:        units,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Auditor.ForceSingleAuditCycle(r.Context())
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "audit.manual").
		Int("orphans", report.Orphans).
		Bool("cleanup_ran", report.CleanupRan).
		Msg("manual audit cycle")
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAuditStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, auditStatsResponse{
		Running: s.deps.Auditor.Running(),
		Stats:   s.deps.Auditor.Stats(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.deps.Presence.Sessions()
	if sessions == nil {
		sessions = []presence.SessionView{}
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Count: len(sessions), Sessions: sessions})
}

// handleSession accepts a player id or any identity key of the session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	view, ok := s.deps.Presence.Lookup(chi.URLParam(r, "player"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")
	err := s.deps.Presence.Kick(r.Context(), player)
	switch {
	case errors.Is(err, presence.ErrUnknownPlayer):
		writeNotFound(w)
	case err != nil:
		writeServiceUnavailable(w, err)
	default:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Info().
			Str(log.FieldPlayerID, player).
			Str("event", "presence.kick").
			Msg("player kicked by operator")
		w.WriteHeader(http.StatusAccepted)
	}
}
