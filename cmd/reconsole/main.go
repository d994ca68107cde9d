package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands writing to out.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	serveFlags := &ServeFlags{}
	startFlags := &StartFlags{}

	c := command{out: out, global: globalFlags}

	root := createRootCommand(globalFlags)
	root.SetOut(out)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createStartCommand(c, startFlags),
		createStopCommand(c),
		createStatusCommand(c),
		createConsoleCommand(c),
		createWatchCommand(c),
		createFollowCommand(c),
	)
	return root
}

// createRootCommand creates the root command with persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "reconsole",
		Short: "Operator console for reconnaissance scans",
		Long: `Reconsole runs one scan at a time through the configured scan script,
streams its console output and reports changes to the scan's output files.

Examples:
  reconsole serve --config=reconsole.toml   # Start daemon
  reconsole start --target=example.com --flag=--quick --follow
  reconsole start --command="./sleuth.sh -d example.com --full"
  reconsole status --api-url=http://remote:5000`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL including base path (default http://127.0.0.1:5000)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")

	return root
}

func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the console daemon",
		Long: `Start the console daemon serving the HTTP control surface and event streams.
Configuration is read from the TOML file given by --config or as argument;
RECONSOLE_* environment variables override file values.

Examples:
  reconsole serve
  reconsole serve reconsole.toml --listen=:8080
  reconsole serve --daemonize --pidfile=/run/reconsole.pid --logfile=/var/log/reconsole.out`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(cmd.Context(), configPath, *serveFlags)
		},
	}

	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "HTTP listen address (overrides [server].listen)")
	cmd.Flags().StringVar(&serveFlags.BasePath, "base-path", "", "HTTP base path (overrides [server].base_path)")
	cmd.Flags().StringVar(&serveFlags.MetricsListen, "metrics-listen", "", "Prometheus listen address (overrides [metrics].listen)")
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon stdout/stderr to file")

	return cmd
}

func createStartCommand(c command, startFlags *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a scan",
		Long: `Start a scan on the daemon. Either give a target and a scan flag, or a
complete command line beginning with the configured scan script.

Examples:
  reconsole start --target=example.com --flag=--quick
  reconsole start --command="./sleuth.sh -d example.com --full" --follow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(cmd.Context(), *startFlags)
		},
	}

	cmd.Flags().StringVar(&startFlags.Target, "target", "", "target domain")
	cmd.Flags().StringVar(&startFlags.Flag, "flag", "", "scan flag passed to the script")
	cmd.Flags().StringVar(&startFlags.Command, "command", "", "manual command line")
	cmd.Flags().BoolVar(&startFlags.Follow, "follow", false, "stream console output and file changes until the scan ends")

	return cmd
}

func createStopCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Send the stop signal to the running scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(cmd.Context())
		},
	}
}

func createStatusCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the scan slot state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context())
		},
	}
}

func createConsoleCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Print the running scan's console output until it finishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Console(cmd.Context())
		},
	}
}

func createWatchCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print output change notifications until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Watch(cmd.Context())
		},
	}
}

func createFollowCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "follow",
		Short: "Print console output and change notifications until the scan finishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Follow(cmd.Context())
		},
	}
}
