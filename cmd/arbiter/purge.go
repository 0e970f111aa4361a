package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
)

var purgeFlags struct {
	format string
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete decision logs past their retention tier",
	Long: `Delete every decision log whose retention tier has elapsed.

Each tier is purged separately; a failing tier is reported and the others
still run. The purge is recorded in the operations audit.`,
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().StringVar(&purgeFlags.format, "format", "text", "output format: text, json, csv")
}

func runPurge(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(purgeFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	result, purgeErr := a.engine.PurgeOldLogs(ctx)
	if result != nil {
		formatter, _ := cli.NewFormatter(format)
		var data any = purgeTable{result}
		if format == cli.FormatJSON {
			data = result
		}
		if err := formatter.FormatTo(cmd.OutOrStdout(), data); err != nil {
			return err
		}
	}
	if purgeErr != nil {
		return cli.NewCommandError("purge", fmt.Errorf("purge incomplete: %w", purgeErr))
	}
	return nil
}
