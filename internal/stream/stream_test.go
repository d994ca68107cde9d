package stream

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/reconsole/internal/format"
	"github.com/loykin/reconsole/internal/notify"
	"github.com/loykin/reconsole/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConsole []process.Line

func (f fakeConsole) OutputContext(ctx context.Context) iter.Seq[process.Line] {
	return func(yield func(process.Line) bool) {
		for _, l := range f {
			if ctx.Err() != nil || !yield(l) {
				return
			}
		}
	}
}

func output(raw ...string) fakeConsole {
	var lines fakeConsole
	for _, r := range raw {
		lines = append(lines, process.Line{Kind: process.LineOutput, Raw: r})
	}
	return append(lines, process.Line{Kind: process.LineFinished, Raw: process.FinishedMarker})
}

func records(s string) []string {
	parts := strings.Split(s, "\n\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func TestConsole_HTMLRecords(t *testing.T) {
	p, err := NewPublisher(output("\x1b[31mred\x1b[0m\n", "a < b\n"), nil, format.KindHTML)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Console(context.Background(), &buf))
	assert.Equal(t,
		"data: <span style=\"color: #aa0000\">red</span><br>\n\n"+
			"data: a &lt; b<br>\n\n"+
			"data: <b>--- CONSOLE STREAM FINISHED ---</b><br>\n\n",
		buf.String())
}

func TestConsole_PlainRecords(t *testing.T) {
	p, err := NewPublisher(output("\x1b[1mbold\x1b[0m\n"), nil, format.KindPlain)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Console(context.Background(), &buf))
	assert.Equal(t, "data: bold\n\ndata: --- CONSOLE STREAM FINISHED ---\n\n", buf.String())
}

func TestConsole_Idle(t *testing.T) {
	p, err := NewPublisher(fakeConsole{{Kind: process.LineIdle, Raw: process.IdleMessage}}, nil, format.KindHTML)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Console(context.Background(), &buf))
	assert.Equal(t, "data: No scan is currently running.\n\n", buf.String())
}

func TestConsole_OneRecordPerLine(t *testing.T) {
	raw := []string{"plain\n", "cr\rin the middle\n", "crlf\r\n", "no newline", "\n", "tab\there\n", "bell\a\n"}
	p, err := NewPublisher(output(raw...), nil, format.KindHTML)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Console(context.Background(), &buf))
	recs := records(buf.String())
	require.Len(t, recs, len(raw)+1)
	for _, r := range recs {
		assert.True(t, strings.HasPrefix(r, "data: "), "%q", r)
		assert.NotContains(t, r, "\n")
		assert.NotContains(t, r, "\r")
	}
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, errors.New("broken pipe")
	}
	w.n--
	return len(p), nil
}

func TestConsole_StopsOnWriteError(t *testing.T) {
	p, err := NewPublisher(output("one\n", "two\n", "three\n"), nil, format.KindPlain)
	require.NoError(t, err)
	assert.Error(t, p.Console(context.Background(), &failingWriter{n: 1}))
}

func TestConsole_StopsOnCancelledContext(t *testing.T) {
	p, err := NewPublisher(output("one\n"), nil, format.KindPlain)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	assert.ErrorIs(t, p.Console(ctx, &buf), context.Canceled)
	assert.Empty(t, buf.String())
}

func TestConsole_CustomFormatter(t *testing.T) {
	p, err := NewPublisher(output("x\n"), nil, format.KindHTML)
	require.NoError(t, err)
	p = p.WithFormatter(format.FormatterFunc(func(string) string { return "X" }))
	var buf bytes.Buffer
	require.NoError(t, p.Console(context.Background(), &buf))
	assert.True(t, strings.HasPrefix(buf.String(), "data: X<br>\n\n"))
}

func TestNewPublisher_UnknownKind(t *testing.T) {
	_, err := NewPublisher(nil, nil, "markdown")
	assert.Error(t, err)
}

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNotifications_BroadcastToEveryClient(t *testing.T) {
	src := notify.NewChannel()
	hub := notify.NewHub(src)
	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = hub.Run(ctx)
	}()

	p, err := NewPublisher(nil, hub, format.KindHTML)
	require.NoError(t, err)

	var a, b syncBuffer
	var wg sync.WaitGroup
	for _, w := range []*syncBuffer{&a, &b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Notifications(ctx, w))
		}()
	}
	require.Eventually(t, func() bool { return hub.Subscribers() == 2 }, 2*time.Second, 5*time.Millisecond)

	src.Put(notify.RefreshTree(""))
	src.Put(notify.RefreshTree(""))

	want := "data: {\"action\":\"refresh_tree\"}\n\n"
	require.Eventually(t, func() bool {
		return a.String() == want+want && b.String() == want+want
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	<-hubDone
	assert.Equal(t, 0, hub.Subscribers())
}
