// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/mudcore/internal/task/memwatch"
	"github.com/ManuGH/mudcore/internal/version"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mudcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionFlag(t *testing.T) {
	out, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version.Version)
}

func TestConfigValidate(t *testing.T) {
	out, _, err := execute(t, "config", "validate", "-f", writeFile(t, "grace:\n  duration: 10s\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	_, _, err = execute(t, "config", "validate", "--file", writeFile(t, "grace:\n  duration: 0s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grace.duration")

	_, _, err = execute(t, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file")

	_, _, err = execute(t, "config", "bogus")
	assert.Error(t, err)
}

func TestConfigDump_MasksSecrets(t *testing.T) {
	path := writeFile(t, "redis:\n  password: hunter2\n")

	out, errOut, err := execute(t, "config", "dump", "-f", path, "--format=json")
	require.NoError(t, err, errOut)
	assert.NotContains(t, out, "hunter2")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Contains(t, decoded, "Grace")

	out, _, err = execute(t, "config", "dump", "-f", path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "grace:"), out)
	assert.NotContains(t, out, "hunter2")

	_, _, err = execute(t, "config", "dump", "-f", path, "--format=toml")
	assert.Error(t, err)
}

func TestHealthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/readyz" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	out, _, err := execute(t, "healthcheck", "--addr", addr, "--mode", "live", "--timeout", "1s")
	require.NoError(t, err)
	assert.Contains(t, out, "successful (live)")

	_, _, err = execute(t, "healthcheck", "--addr", addr, "--timeout", "1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestStatus_RendersMemoryReport(t *testing.T) {
	last := time.Now().Add(-2 * time.Minute)
	report := memwatch.Report{
		Sample: memwatch.Sample{
			MemoryBytes:   3 << 20,
			Source:        "cgroup",
			ActiveTasks:   12,
			TasksExceeded: true,
			Exceeded:      true,
		},
		Thresholds:  memwatch.Thresholds{MaxMemoryBytes: 1 << 30, MaxTasks: 10, Cooldown: time.Minute},
		CleanupRuns: 2,
		LastCleanup: &last,
		LastResult:  memwatch.CleanupResult{Cancelled: 3, Orphans: 1},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/debug/memory" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	out, _, err := execute(t, "status", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "3.0 MiB of 1.0 GiB (cgroup)")
	assert.Contains(t, out, "Tasks:    12 of 10 EXCEEDED")
	assert.Contains(t, out, "Cleanups: 2")
	assert.Contains(t, out, "cancelled 4")

	out, _, err = execute(t, "status", "--addr", addr, "--json")
	require.NoError(t, err)
	var decoded memwatch.Report
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 12, decoded.Sample.ActiveTasks)
}

func TestStatus_DaemonErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, _, err := execute(t, "status", "--addr", strings.TrimPrefix(srv.URL, "http://"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
