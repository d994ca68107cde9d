// Package stream writes scan output and change notifications as server-sent
// event records.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"github.com/loykin/reconsole/internal/format"
	"github.com/loykin/reconsole/internal/metrics"
	"github.com/loykin/reconsole/internal/notify"
	"github.com/loykin/reconsole/internal/process"
)

// ConsoleSource yields the lines of the running scan until ctx is done.
type ConsoleSource interface {
	OutputContext(ctx context.Context) iter.Seq[process.Line]
}

// EventSource hands out notification subscriptions.
type EventSource interface {
	Subscribe() *notify.Subscription
}

// Publisher renders console lines and notification events onto response
// writers. Each call serves one client.
type Publisher struct {
	console ConsoleSource
	events  EventSource
	fmt     format.Formatter
	markup  bool
}

// NewPublisher returns a publisher that formats console lines with the built-in
// formatter named by kind. With KindPlain no HTML framing is added.
func NewPublisher(console ConsoleSource, events EventSource, kind format.Kind) (*Publisher, error) {
	f, err := format.New(kind)
	if err != nil {
		return nil, err
	}
	return &Publisher{console: console, events: events, fmt: f, markup: kind != format.KindPlain}, nil
}

// WithFormatter replaces the line formatter. Its output must not contain CR or LF.
func (p *Publisher) WithFormatter(f format.Formatter) *Publisher {
	cp := *p
	cp.fmt = f
	return &cp
}

// Console streams the running scan's output to w until the scan finishes, ctx
// is done or a write fails. With no scan running a single idle record is sent.
// Returning early leaves the scan running.
func (p *Publisher) Console(ctx context.Context, w io.Writer) error {
	for line := range p.console.OutputContext(ctx) {
		if err := writeRecord(w, p.render(line)); err != nil {
			slog.Debug("Console client went away", "error", err)
			return err
		}
		if line.Kind == process.LineOutput {
			metrics.IncConsoleLine()
		}
	}
	return ctx.Err()
}

func (p *Publisher) render(line process.Line) string {
	switch line.Kind {
	case process.LineOutput:
		s := p.fmt.Format(line.Raw)
		if p.markup {
			s += "<br>"
		}
		return s
	case process.LineFinished:
		if p.markup {
			return "<b>" + line.Raw + "</b><br>"
		}
		return line.Raw
	default:
		return line.Raw
	}
}

// Notifications streams change notifications to w until ctx is done or a
// write fails. A client that goes away is not an error.
func (p *Publisher) Notifications(ctx context.Context, w io.Writer) error {
	sub := p.events.Subscribe()
	defer sub.Close()
	slog.Debug("Notification client attached", "subscription", sub.ID())
	for {
		e, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, notify.ErrClosed) {
				return nil
			}
			return err
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := writeRecord(w, string(data)); err != nil {
			slog.Debug("Notification client went away", "subscription", sub.ID(), "error", err)
			return nil
		}
	}
}

// writeRecord writes one "data:" record and flushes it when w supports it.
func writeRecord(w io.Writer, data string) error {
	if _, err := io.WriteString(w, "data: "+data+"\n\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
