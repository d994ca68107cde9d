package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/loykin/reconsole"
)

// runServe runs the daemon until ctx is done.
func runServe(ctx context.Context, configPath string, flags ServeFlags) error {
	cfg, err := reconsole.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.Listen != "" {
		cfg.Server.Listen = flags.Listen
	}
	if flags.BasePath != "" {
		cfg.Server.BasePath = flags.BasePath
	}
	if flags.MetricsListen != "" {
		cfg.Metrics.Listen = flags.MetricsListen
	}

	if flags.Daemonize {
		return daemonize(flags.PidFile, flags.LogFile)
	}
	if flags.PidFile != "" {
		if err := writePidFile(flags.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
	}
	defer func() { _ = removePidFile(flags.PidFile) }()

	slog.SetDefault(cfg.Log.NewSlogger())

	if cfg.Metrics.Listen != "" {
		if err := reconsole.RegisterMetricsDefault(); err != nil {
			slog.Warn("Failed to register metrics", "error", err)
		}
		go func() {
			if err := reconsole.ServeMetrics(cfg.Metrics.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server error", "error", err)
			}
		}()
	}

	console, err := reconsole.New(cfg)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- console.Run(runCtx) }()

	server := reconsole.NewHTTPServer(console)
	slog.Info("Starting reconsole HTTP server",
		"listen", cfg.Server.Listen,
		"base_path", cfg.Server.BasePath,
		"script", cfg.Scan.ScriptPath,
		"output_root", cfg.Scan.OutputRoot)

	<-ctx.Done()
	slog.Info("Shutting down...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		// open event streams never become idle
		_ = server.Close()
	}
	cancel()
	return <-runDone
}
