// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/mudcore/internal/config"
	"github.com/ManuGH/mudcore/internal/presence"
	"github.com/ManuGH/mudcore/internal/store"
	"github.com/ManuGH/mudcore/internal/testutil"
)

type recordingManager struct {
	hooks []namedHook
}

func (m *recordingManager) Start(context.Context) error    { return nil }
func (m *recordingManager) Shutdown(context.Context) error { return nil }

func (m *recordingManager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

func (m *recordingManager) names() []string {
	out := make([]string, len(m.hooks))
	for i, h := range m.hooks {
		out[i] = h.name
	}
	return out
}

func (m *recordingManager) runHooks(ctx context.Context) error {
	for i := len(m.hooks) - 1; i >= 0; i-- {
		if err := m.hooks[i].hook(ctx); err != nil {
			return err
		}
	}
	return nil
}

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Version = "test"
	cfg.Store.Backend = "memory"
	cfg.Auditor.Interval = 20 * time.Millisecond
	cfg.Tasks.ShutdownTimeout = 2 * time.Second
	cfg.Cache.CleanupInterval = 10 * time.Millisecond
	cfg.StatusDumpPath = filepath.Join(t.TempDir(), "status", "final.json")
	return cfg
}

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveRoom(ctx, store.Room{ID: "hall", Name: "Great Hall", Safe: true}))
	require.NoError(t, st.SavePlayer(ctx, store.Player{ID: "1", Name: "Alice", RoomID: "hall"}))
	return st
}

func fixedMemory() (uint64, string, error) {
	return 64 << 20, "test", nil
}

// buildRuntime wires a runtime and tears it down through the registered
// shutdown hooks at cleanup.
func buildRuntime(t *testing.T, cfg config.AppConfig) (*Runtime, *recordingManager) {
	t.Helper()
	testutil.VerifyNoLeaks(t)

	rt, err := Build(context.Background(), cfg, WithStore(seededStore(t)), WithMemoryReader(fixedMemory))
	require.NoError(t, err)

	mgr := &recordingManager{}
	rt.RegisterHooks(mgr)
	t.Cleanup(func() { _ = mgr.runHooks(context.Background()) })
	return rt, mgr
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestBuild_WiresOperatorSurface(t *testing.T) {
	rt, mgr := buildRuntime(t, testConfig(t))
	require.NoError(t, rt.Start())

	assert.Equal(t, []string{"telemetry", "store", "msgqueue", "cache", "status-dump", "task-registry", "orphan-auditor"}, mgr.names())

	h := rt.API.Handler()
	require.Eventually(t, func() bool {
		return get(t, h, http.MethodGet, "/readyz").Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	rec := get(t, h, http.MethodGet, "/debug/tasks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "orphan-auditor")

	rec = get(t, h, http.MethodGet, "/debug/memory")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"source":"test"`)

	require.Eventually(t, func() bool { return rt.Auditor.Stats().Cycles >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestBuild_PresenceThroughAPI(t *testing.T) {
	rt, _ := buildRuntime(t, testConfig(t))
	ctx := context.Background()
	h := rt.API.Handler()

	require.NoError(t, rt.Presence.Connect(ctx, "1", "t1"))
	assert.Equal(t, presence.OutcomeGrace, rt.Presence.Disconnect(ctx, "1", "t1", false))

	rec := get(t, h, http.MethodGet, "/debug/presence/alice")
	require.Equal(t, http.StatusOK, rec.Code)
	var view presence.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.InGrace)
	assert.Empty(t, view.Transports)

	rec = get(t, h, http.MethodPost, "/debug/presence/1/kick")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 0, rt.Presence.Len())
	assert.False(t, rt.Presence.IsPlayerInGracePeriod("1"))

	rec = get(t, h, http.MethodGet, "/debug/presence/1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRuntime_ApplyPushesReloadableSettings(t *testing.T) {
	rt, _ := buildRuntime(t, testConfig(t))

	next := rt.Config
	next.Memory.MaxTasks = 1
	next.Memory.MaxMB = 0
	next.Grace.Duration = 5 * time.Second
	next.Grace.AllowedCommands = []string{"say"}
	next.Auditor.AutoCleanup = true
	rt.Apply(next)

	th := rt.Memory.Thresholds()
	assert.Equal(t, 1, th.MaxTasks)
	assert.Zero(t, th.MaxMemoryBytes)
	assert.Equal(t, 5*time.Second, rt.Presence.Grace().Duration())

	require.NoError(t, rt.Presence.Connect(context.Background(), "1", "t1"))
	rt.Presence.Disconnect(context.Background(), "1", "t1", false)
	assert.True(t, rt.Presence.CommandAllowed("1", "say"))
	assert.False(t, rt.Presence.CommandAllowed("1", "attack"))
}

func TestRuntime_ShutdownWritesStatusDump(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t)
	rt, err := Build(context.Background(), cfg, WithStore(seededStore(t)), WithMemoryReader(fixedMemory))
	require.NoError(t, err)
	require.NoError(t, rt.Start())

	mgr := &recordingManager{}
	rt.RegisterHooks(mgr)
	require.NoError(t, mgr.runHooks(context.Background()))

	data, err := os.ReadFile(cfg.StatusDumpPath)
	require.NoError(t, err)
	var dump StatusDump
	require.NoError(t, json.Unmarshal(data, &dump))
	assert.Equal(t, "test", dump.Version)
	assert.Zero(t, dump.LiveUnits)
	assert.Empty(t, dump.Stragglers)
	assert.Equal(t, uint64(64<<20), dump.Memory.Sample.MemoryBytes)
	assert.Equal(t, "closed", dump.StoreState)
	assert.False(t, rt.Auditor.Running())
}

func TestBuild_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.Queue.Backend = "redis"
	cfg.Cache.Backend = "redis"

	rt, _ := buildRuntime(t, cfg)
	resp := rt.Health.Ready(context.Background())
	require.Contains(t, resp.Checks, "redis")
	assert.Equal(t, "healthy", string(resp.Checks["redis"].Status))

	mr.Close()
	resp = rt.Health.Ready(context.Background())
	assert.Equal(t, "degraded", string(resp.Checks["redis"].Status))
}

func TestBuild_UnknownStoreBackendFails(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t)
	cfg.Store.Backend = "postgres"
	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store backend")
}
