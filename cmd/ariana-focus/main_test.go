package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammusetouch/ariana/focus"
	"github.com/iammusetouch/ariana/stream/streamtest"
	"github.com/iammusetouch/ariana/vault"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ARIANA_CONFIG", "ARIANA_ENDPOINT", "ARIANA_ROOTS", "ARIANA_NATS_URL",
		"ARIANA_METRICS_PORT", "ARIANA_LOG_LEVEL", "ARIANA_LOG_FORMAT", "ARIANA_DEBUG",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_Version(t *testing.T) {
	clearEnv(t)
	var stdout, stderr lockedBuffer

	err := run(context.Background(), []string{"--version"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "ariana-focus version "+Version)
}

func TestRun_Help(t *testing.T) {
	clearEnv(t)
	var stdout, stderr lockedBuffer

	err := run(context.Background(), []string{"-h"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stderr.String(), "Usage: ariana-focus")
	assert.Contains(t, stderr.String(), "-endpoint")
}

func TestRun_InvalidFlags(t *testing.T) {
	clearEnv(t)

	tests := [][]string{
		{"--log-level=loud"},
		{"--log-format=xml"},
		{"--config=/does/not/exist.json"},
		{"--shutdown-timeout=0s"},
		{"--no-such-flag"},
	}
	for _, args := range tests {
		t.Run(fmt.Sprint(args), func(t *testing.T) {
			var stdout, stderr lockedBuffer
			assert.Error(t, run(context.Background(), args, &stdout, &stderr))
		})
	}
}

func TestRun_ValidateConfig(t *testing.T) {
	clearEnv(t)
	var stdout, stderr lockedBuffer

	good := writeConfig(t, "focus.yaml", "endpoint: http://localhost:8080\nroots: [/tmp]\n")
	err := run(context.Background(), []string{"--config", good, "--validate", "--log-format=text"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Configuration is valid")

	bad := writeConfig(t, "focus.json", `{"endpoint": "ftp://localhost"}`)
	err = run(context.Background(), []string{"--config", bad, "--validate"}, &stdout, &stderr)
	assert.Error(t, err)

	// The flag overrides the file.
	err = run(context.Background(), []string{"--config", bad, "--endpoint", "http://localhost:1", "--validate"}, &stdout, &stderr)
	assert.NoError(t, err)
}

func TestRun_FollowsNewestVault(t *testing.T) {
	clearEnv(t)

	srv := streamtest.NewServer(t)
	srv.SetBacklog("fresh", `[{"event":"start"}]`)

	parent := t.TempDir()
	for name, marker := range map[string]string{
		"old": `{"key": "stale", "created_at": 100}`,
		"new": `{"key": "fresh", "created_at": 200}`,
	} {
		dir := filepath.Join(parent, name, vault.MarkerDir)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "vault.json"), []byte(marker), 0o644))
	}

	cfgPath := writeConfig(t, "focus.json", fmt.Sprintf(`{
		"endpoint": %q,
		"roots": [%q],
		"throttle_interval": "20ms",
		"metrics": {"port": 0}
	}`, srv.URL, filepath.Join(parent, "*")))

	ctx, cancel := context.WithCancel(context.Background())
	var stdout, stderr lockedBuffer
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--config", cfgPath, "--log-level=debug"}, &stdout, &stderr)
	}()

	srv.WaitConnections(t, "fresh", 1, 5*time.Second)
	assert.Equal(t, 0, srv.Connections("stale"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	srv.WaitActive(t, "fresh", 0, 5*time.Second)
	assert.Contains(t, stdout.String(), "Focus daemon stopped")
}

func TestHealthReport(t *testing.T) {
	clearEnv(t)
	srv := streamtest.NewServer(t)

	cfg := focus.DefaultConfig(srv.URL)
	m, err := focus.NewManager(cfg, vault.DirRoots{t.TempDir()}, vault.NewResolver(nil))
	require.NoError(t, err)

	report := healthReport(m, nil)
	assert.False(t, report.Serving(), "stopped manager")
	require.Len(t, report.SubStatuses, 1)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	report = healthReport(m, nil)
	assert.True(t, report.IsHealthy())
	assert.Equal(t, "waiting for a vault", report.SubStatuses[0].Message)
}
