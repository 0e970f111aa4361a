package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/config"
	"mercator-hq/arbiter/pkg/policy/manager"
	"mercator-hq/arbiter/pkg/security/auth"
	"mercator-hq/arbiter/pkg/server"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Arbiter API server",
	Long: `Start the Arbiter API server with the specified configuration.

The server evaluates intents over HTTP, serves the audit trail and reports,
keeps the policy directory synchronized with the evaluator and runs the
scheduled retention purge.

Examples:
  # Start with custom config
  arbiter serve --config /etc/arbiter/config.yaml

  # Override listen address
  arbiter serve --listen 0.0.0.0:8080

  # Validate config and open every backend without serving
  arbiter serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "open every backend, then exit without serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, os.Stdout, true, func(cfg *config.Config) {
		if serveFlags.listenAddress != "" {
			cfg.Server.ListenAddress = serveFlags.listenAddress
		}
		if serveFlags.logLevel != "" {
			cfg.Telemetry.Logging.Level = serveFlags.logLevel
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()
	cfg := a.cfg
	out := cmd.OutOrStdout()

	if serveFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}
	printBanner(cmd, cfg)

	if cfg.Policy.Directory != "" {
		policies, err := manager.New(&manager.Config{
			Directory: cfg.Policy.Directory,
			Watch:     cfg.Policy.Watch,
			Debounce:  cfg.Policy.Debounce,
		}, a.engine)
		if err != nil {
			return cli.NewConfigError("policy.directory", err.Error())
		}
		if err := policies.Start(ctx); err != nil {
			slog.Warn("initial policy sync incomplete", "error", err)
		}
		defer policies.Close()
		fmt.Fprintf(out, "✓ Policies synchronized from %s (%d loaded)\n", cfg.Policy.Directory, len(policies.Entries()))
	}

	if err := a.engine.Start(ctx); err != nil {
		return cli.NewCommandError("serve", err)
	}
	if next := a.engine.NextPurge(); next != nil {
		slog.Info("retention purge scheduled", "next_purge", next)
	}

	opts := server.Options{
		Engine:        a.engine,
		Health:        a.engine.Health(),
		Metrics:       a.metrics,
		MetricsPath:   cfg.Telemetry.Metrics.Path,
		LivenessPath:  cfg.Telemetry.Health.LivenessPath,
		ReadinessPath: cfg.Telemetry.Health.ReadinessPath,
		Version:       Version,
		Commit:        GitCommit,
		BuildTime:     BuildDate,
	}
	if cfg.Security.Authentication.Enabled {
		validator, sources := auth.NewFromConfig(cfg.Security.Authentication)
		opts.Auth = auth.NewAPIKeyMiddleware(validator, sources)
	}
	srv, err := server.New(cfg.Server, opts)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return cli.NewCommandError("serve", err)
	}
	fmt.Fprintf(out, "✓ Server listening on %s\n", ln.Addr())
	fmt.Fprintf(out, "✓ Health endpoint: http://%s%s\n", ln.Addr(), opts.ReadinessPath)
	if a.metrics != nil {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", ln.Addr(), cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Serve(ctx, ln); err != nil {
		return cli.NewCommandError("serve", err)
	}

	// Serve returns once the signal context is done. The engine flushes
	// buffered decision logs on Close.
	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.engine.Flush(flushCtx); err != nil {
		return cli.NewCommandError("serve", fmt.Errorf("flush decision logs: %w", err))
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Arbiter v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(out, "Configuration loaded from: %s\n", cfgFile)
	}
	fmt.Fprintf(out, "✓ Evaluator: %s\n", cfg.Evaluator.URL)
	fmt.Fprintf(out, "✓ Audit storage: %s\n", cfg.Storage.Backend)

	slog.Debug("decision pipeline",
		"cache_enabled", cfg.Cache.Enabled,
		"logger_mode", cfg.Logger.Mode,
		"encryption", cfg.Encryption.Enabled,
		"query_cache", cfg.Query.Cache.Backend,
	)
}
