package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "arbiter",
	Short: "Arbiter - policy decisions and compliance audit logging",
	Long: `Arbiter evaluates financial intents against an external policy
evaluator and records every decision in a tamper-evident audit trail.

Configuration is read from --config when given. Every setting can be
overridden with ARBITER_* environment variables, and secrets (such as the
audit master key) resolve through the configured secret providers.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code. SIGINT
// and SIGTERM cancel the command context.
func Execute() int {
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus ARBITER_* overrides when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
