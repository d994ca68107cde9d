//go:build !windows

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/reconsole"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDaemon serves a console running body as its scan script and returns
// command flags pointing at it.
func startDaemon(t *testing.T, body string) (*GlobalFlags, *reconsole.Console) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	script := filepath.Join(dir, "sleuth.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	cfg := reconsole.DefaultConfig()
	cfg.Scan.ScriptPath = script
	cfg.Scan.OutputRoot = filepath.Join(dir, "Recon")
	cfg.Scan.WorkDir = dir
	cfg.Watch.QuietWindow = 200 * time.Millisecond

	console, err := reconsole.New(cfg)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = console.Run(ctx)
	}()
	srv := httptest.NewServer(console.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return &GlobalFlags{APIUrl: srv.URL, APITimeout: 5 * time.Second}, console
}

func waitIdle(t *testing.T, console *reconsole.Console) {
	t.Helper()
	require.Eventually(t, func() bool {
		return console.Status().State == "absent"
	}, 10*time.Second, 20*time.Millisecond)
}

func TestStartFollowPrintsOutputAndRefresh(t *testing.T) {
	global, console := startDaemon(t, `mkdir -p "Recon/$2"; sleep 0.3; echo found > "Recon/$2/hosts.txt"; echo "scanning $2"; sleep 0.5`)
	var out bytes.Buffer
	c := command{out: &out, global: global}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Start(ctx, StartFlags{Target: "example.com", Flag: "--quick", Follow: true}))

	got := out.String()
	assert.Contains(t, got, "Scan started for example.com")
	assert.Contains(t, got, "scanning example.com")
	assert.Contains(t, got, "--- CONSOLE STREAM FINISHED ---")
	assert.Contains(t, got, "[refresh tree]")
	assert.NotContains(t, got, "<br>")
	waitIdle(t, console)
}

func TestStartRejectedWhileRunning(t *testing.T) {
	global, console := startDaemon(t, "sleep 30")
	var out bytes.Buffer
	c := command{out: &out, global: global}
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, StartFlags{Target: "example.com", Flag: "--quick"}))
	err := c.Start(ctx, StartFlags{Target: "example.org", Flag: "--quick"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), reconsole.ErrAlreadyRunning.Error())

	out.Reset()
	require.NoError(t, c.Status(ctx))
	assert.Contains(t, out.String(), `"state": "running"`)
	assert.Contains(t, out.String(), `"target": "example.com"`)

	out.Reset()
	require.NoError(t, c.Stop(ctx))
	assert.Equal(t, "Stop signal sent.\n", out.String())

	out.Reset()
	require.NoError(t, c.Console(ctx))
	assert.Contains(t, out.String(), "--- CONSOLE STREAM FINISHED ---")
	waitIdle(t, console)
}

func TestStopWithoutScan(t *testing.T) {
	global, _ := startDaemon(t, "true")
	c := command{out: &bytes.Buffer{}, global: global}
	err := c.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), reconsole.ErrNoActiveScan.Error())
}

func TestConsoleIdle(t *testing.T) {
	global, _ := startDaemon(t, "true")
	var out bytes.Buffer
	c := command{out: &out, global: global}
	require.NoError(t, c.Console(context.Background()))
	assert.Equal(t, "No scan is currently running.\n", out.String())
}

func TestWatchUntilCanceled(t *testing.T) {
	global, console := startDaemon(t, `mkdir -p "Recon/$2"; sleep 0.3; touch "Recon/$2/a.txt"; sleep 0.5`)
	var out lockedWriter
	var buf bytes.Buffer
	out.w = &buf
	c := command{out: &out, global: global}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()

	_, err := console.Start(reconsole.Request{ScanType: "simple", Target: "example.com", Flag: "--quick"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		out.mu.Lock()
		defer out.mu.Unlock()
		return strings.Contains(buf.String(), "[refresh tree]")
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	var drain bytes.Buffer
	_ = console.StreamConsole(context.Background(), &drain)
	waitIdle(t, console)
}

func TestDaemonNotReachable(t *testing.T) {
	c := command{out: &bytes.Buffer{}, global: &GlobalFlags{APIUrl: "http://127.0.0.1:1", APITimeout: time.Second}}
	err := c.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon not reachable")
}

func TestStartFlagConflict(t *testing.T) {
	c := command{out: &bytes.Buffer{}, global: &GlobalFlags{}}
	err := c.Start(context.Background(), StartFlags{Command: "./sleuth.sh", Target: "x"})
	assert.Error(t, err)
}
