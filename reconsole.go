// Package reconsole is an operator console for a single long-running scan:
// it launches the scan script, streams its console output and pushes a
// notification whenever the scan's output directory changes.
package reconsole

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	cfg "github.com/loykin/reconsole/internal/config"
	"github.com/loykin/reconsole/internal/metrics"
	"github.com/loykin/reconsole/internal/notify"
	"github.com/loykin/reconsole/internal/process"
	iapi "github.com/loykin/reconsole/internal/server"
	"github.com/loykin/reconsole/internal/stream"
	"github.com/loykin/reconsole/internal/watch"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Request = process.Request

type CommandSpec = process.CommandSpec

type Started = process.Started

type Status = process.Status

type Line = process.Line

type Event = notify.Event

// Errors returned by Start and Stop.
var (
	ErrAlreadyRunning = process.ErrAlreadyRunning
	ErrInvalidCommand = process.ErrInvalidCommand
	ErrNoActiveScan   = process.ErrNoActiveScan
)

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

func DefaultConfig() *Config { return cfg.Default() }

// Console wires the scan supervisor, output watches, notification hub and
// stream publisher together. Run must be running for notifications to reach
// subscribers.
type Console struct {
	cfg     *Config
	sup     *process.Supervisor
	hub     *notify.Hub
	watches *watch.Manager
	pub     *stream.Publisher
}

// New builds a console from c. Nothing is started until Run.
func New(c *Config) (*Console, error) {
	if c == nil {
		c = DefaultConfig()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	env, err := c.ScanEnv()
	if err != nil {
		return nil, err
	}
	src := notify.NewChannel()
	hub := notify.NewHub(src)
	watches := watch.NewManager(src, watch.Options{
		QuietWindow:   c.Watch.QuietWindow,
		TrailingFlush: c.Watch.TrailingFlush,
		RelativeTo:    c.Scan.OutputRoot,
	})
	sup := process.NewSupervisor(process.Config{
		ScriptPath: c.Scan.ScriptPath,
		OutputRoot: c.Scan.OutputRoot,
		WorkDir:    c.Scan.WorkDir,
		Env:        env,
		OnAdmit:    watches.Watch,
		OnAbort:    watches.Release,
	})
	pub, err := stream.NewPublisher(sup, hub, c.Console.Format)
	if err != nil {
		return nil, err
	}
	return &Console{cfg: c, sup: sup, hub: hub, watches: watches, pub: pub}, nil
}

// Run dispatches notifications until ctx is done, then closes the active watch.
func (c *Console) Run(ctx context.Context) error {
	err := c.hub.Run(ctx)
	if cerr := c.watches.Close(); cerr != nil {
		return cerr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handler returns the HTTP control surface mounted at the configured base path.
func (c *Console) Handler() http.Handler {
	return iapi.NewRouter(c.sup, c.pub, c.cfg.Server.BasePath).Handler()
}

// Start validates req and launches a scan.
func (c *Console) Start(req Request) (Started, error) {
	spec, err := req.CommandSpec(c.cfg.Scan.ScriptPath)
	if err != nil {
		return Started{}, err
	}
	return c.sup.Start(spec)
}

// Stop signals the running scan's process group.
func (c *Console) Stop() error { return c.sup.Stop() }

func (c *Console) Status() Status { return c.sup.Status() }

// StreamConsole writes the running scan's output to w as event-stream records.
func (c *Console) StreamConsole(ctx context.Context, w io.Writer) error {
	return c.pub.Console(ctx, w)
}

// StreamNotifications writes change notifications to w until ctx is done.
func (c *Console) StreamNotifications(ctx context.Context, w io.Writer) error {
	return c.pub.Notifications(ctx, w)
}

// Subscribe attaches a notification subscriber. Close it when done.
func (c *Console) Subscribe() *notify.Subscription { return c.hub.Subscribe() }

// WatchedRoot returns the output directory currently being watched, if any.
func (c *Console) WatchedRoot() string { return c.watches.Current() }

// NewHTTPServer starts an HTTP server on the configured listen address.
func NewHTTPServer(c *Console) *http.Server {
	return iapi.NewServer(c.cfg.Server.Listen, c.Handler())
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
