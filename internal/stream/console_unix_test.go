//go:build !windows

package stream

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/reconsole/internal/format"
	"github.com/loykin/reconsole/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsole_ReconnectDuringQuietPeriod(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "sleuth.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho a; sleep 1; echo b\n"), 0o755))
	sup := process.NewSupervisor(process.Config{ScriptPath: script, OutputRoot: filepath.Join(dir, "Recon")})
	_, err := sup.Start(process.CommandSpec{Args: []string{script, "-d", "quiet.example"}, Target: "quiet.example"})
	require.NoError(t, err)

	p, err := NewPublisher(sup, nil, format.KindPlain)
	require.NoError(t, err)

	first := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Console(ctx, first) }()
	require.Eventually(t, func() bool { return first.String() != "" }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, "data: a\n\n", first.String())

	var second bytes.Buffer
	require.NoError(t, p.Console(context.Background(), &second))
	assert.Equal(t, "data: b\n\ndata: "+process.FinishedMarker+"\n\n", second.String())
}
