package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/loykin/reconsole/pkg/client"
	"golang.org/x/sync/errgroup"
)

type command struct {
	out    io.Writer
	global *GlobalFlags
}

func (c command) client(ctx context.Context) (*client.Client, error) {
	base := apiURL(c.global.APIUrl)
	cl := client.New(client.Config{BaseURL: base, Timeout: c.global.APITimeout})
	if !cl.IsReachable(ctx) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'reconsole serve'", base)
	}
	return cl, nil
}

func startRequest(f StartFlags) (client.StartRequest, error) {
	switch {
	case f.Command != "" && (f.Target != "" || f.Flag != ""):
		return client.StartRequest{}, errors.New("use either --command or --target/--flag, not both")
	case f.Command != "":
		return client.StartRequest{ScanType: client.ScanManual, Command: f.Command}, nil
	default:
		return client.StartRequest{ScanType: client.ScanSimple, Target: f.Target, Flag: f.Flag}, nil
	}
}

// Start asks the daemon to launch a scan and optionally follows it.
func (c command) Start(ctx context.Context, f StartFlags) error {
	req, err := startRequest(f)
	if err != nil {
		return err
	}
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	resp, err := cl.StartScan(ctx, req)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "%s (output: %s)\n", resp.Message, resp.BasePath)
	if f.Follow {
		return c.follow(ctx, cl)
	}
	return nil
}

func (c command) Stop(ctx context.Context) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	msg, err := cl.StopScan(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, msg)
	return nil
}

func (c command) Status(ctx context.Context) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	st, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, st)
	return nil
}

// Console prints the running scan's output until it finishes.
func (c command) Console(ctx context.Context) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	return c.console(ctx, cl)
}

func (c command) console(ctx context.Context, cl *client.Client) error {
	return cl.StreamConsole(ctx, func(data string) error {
		_, err := fmt.Fprintln(c.out, consoleText(data))
		return err
	})
}

// Watch prints change notifications until interrupted.
func (c command) Watch(ctx context.Context) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	return ignoreCanceled(c.watch(ctx, cl))
}

func (c command) watch(ctx context.Context, cl *client.Client) error {
	return cl.StreamNotifications(ctx, func(ev client.Event) error {
		line := "[" + strings.ReplaceAll(ev.Action, "_", " ") + "]"
		if ev.Path != "" {
			line += " " + ev.Path
		}
		_, err := fmt.Fprintln(c.out, line)
		return err
	})
}

// Follow prints console output and change notifications together until the
// scan finishes.
func (c command) Follow(ctx context.Context) error {
	cl, err := c.client(ctx)
	if err != nil {
		return err
	}
	return c.follow(ctx, cl)
}

func (c command) follow(ctx context.Context, cl *client.Client) error {
	out := &lockedWriter{w: c.out}
	cc := command{out: out, global: c.global}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// the console ending means the scan finished
		defer cancel()
		return cc.console(gctx, cl)
	})
	g.Go(func() error {
		return ignoreCanceled(cc.watch(gctx, cl))
	})
	return ignoreCanceled(g.Wait())
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
