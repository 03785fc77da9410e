// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mudcore/internal/api/middleware"
	"github.com/ManuGH/mudcore/internal/health"
	"github.com/ManuGH/mudcore/internal/presence"
	"github.com/ManuGH/mudcore/internal/task"
	"github.com/ManuGH/mudcore/internal/task/memwatch"
	"github.com/ManuGH/mudcore/internal/task/orphan"
)

type fakeTasks struct{ units []task.Info }

func (f fakeTasks) Snapshot() []task.Info { return f.units }
func (f fakeTasks) Len() int              { return len(f.units) }
func (f fakeTasks) LifecycleLen() int     { return 1 }
func (f fakeTasks) ShuttingDown() bool    { return false }

type fakeMemory struct{}

func (fakeMemory) StatusReport() memwatch.Report {
	return memwatch.Report{
		Sample:     memwatch.Sample{MemoryBytes: 42 << 20, Source: "test", ActiveTasks: 3},
		Thresholds: memwatch.Thresholds{MaxTasks: 10},
	}
}

type fakeAuditor struct{ calls atomic.Int32 }

func (f *fakeAuditor) ForceSingleAuditCycle(context.Context) orphan.Report {
	f.calls.Add(1)
	return orphan.Report{Manual: true, Orphans: 2}
}

func (f *fakeAuditor) Stats() orphan.Stats { return orphan.Stats{Cycles: 7, Orphans: 3} }

func (f *fakeAuditor) Running() bool { return true }

type fakePresence struct {
	sessions map[string]presence.SessionView
	kicked   []string
	kickErr  error
}

func (f *fakePresence) Lookup(key string) (presence.SessionView, bool) {
	v, ok := f.sessions[key]
	return v, ok
}

func (f *fakePresence) Sessions() []presence.SessionView {
	var out []presence.SessionView
	for _, v := range f.sessions {
		out = append(out, v)
	}
	return out
}

func (f *fakePresence) Kick(_ context.Context, playerID string) error {
	if _, ok := f.sessions[playerID]; !ok {
		return presence.ErrUnknownPlayer
	}
	f.kicked = append(f.kicked, playerID)
	return f.kickErr
}

func newTestServer(t *testing.T, cfg Config) (*Server, *fakeAuditor, *fakePresence) {
	t.Helper()
	aud := &fakeAuditor{}
	pres := &fakePresence{sessions: map[string]presence.SessionView{
		"1": {PlayerID: "1", Name: "Alice", RoomID: "hall", Transports: []string{"t1"}},
	}}
	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewLoopChecker("orphan_auditor", func() bool { return true }))

	srv, err := New(cfg, Deps{
		Health:   hm,
		Tasks:    fakeTasks{units: []task.Info{{Name: "orphan-auditor", Category: task.CategorySystemLifecycle, Lifecycle: true}}},
		Memory:   fakeMemory{},
		Auditor:  aud,
		Presence: pres,
	})
	require.NoError(t, err)
	return srv, aud, pres
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.ErrorIs(t, err, ErrMissingHealth)

	_, err = New(Config{}, Deps{Health: health.NewManager("x")})
	assert.ErrorIs(t, err, ErrMissingTasks)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))

	rec = do(t, h, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mudcore_")
}

func TestDebugTasksAndMemory(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/debug/tasks")
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks tasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	assert.Equal(t, 1, tasks.Total)
	require.Len(t, tasks.Units, 1)
	assert.Equal(t, "orphan-auditor", tasks.Units[0].Name)

	rec = do(t, h, http.MethodGet, "/debug/memory")
	require.Equal(t, http.StatusOK, rec.Code)
	var report memwatch.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, uint64(42<<20), report.Sample.MemoryBytes)
	assert.Equal(t, 10, report.Thresholds.MaxTasks)
}

func TestDebugAudit_RateLimited(t *testing.T) {
	srv, aud, _ := newTestServer(t, Config{AuditRequestsPerMinute: 1})
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/debug/audit")
	require.Equal(t, http.StatusOK, rec.Code)
	var report orphan.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Manual)
	assert.Equal(t, 2, report.Orphans)

	rec = do(t, h, http.MethodPost, "/debug/audit")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, int32(1), aud.calls.Load())

	rec = do(t, h, http.MethodGet, "/debug/audit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cycles":7`)
}

func TestDebugPresence(t *testing.T) {
	srv, _, pres := newTestServer(t, Config{})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/debug/presence")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = do(t, h, http.MethodGet, "/debug/presence/1")
	require.Equal(t, http.StatusOK, rec.Code)
	var view presence.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Alice", view.Name)

	rec = do(t, h, http.MethodGet, "/debug/presence/nobody")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/debug/presence/1/kick")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"1"}, pres.kicked)

	rec = do(t, h, http.MethodPost, "/debug/presence/nobody/kick")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	pres.kickErr = errors.New("bus closed")
	rec = do(t, h, http.MethodPost, "/debug/presence/1/kick")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecovererReturnsJSON(t *testing.T) {
	r := middleware.NewRouter(middleware.StackConfig{EnableLogging: true})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := do(t, r, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestTracingMiddlewareDoesNotAlterResponse(t *testing.T) {
	srv, _, _ := newTestServer(t, Config{TracingService: "mudcore-test"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/debug/tasks", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
