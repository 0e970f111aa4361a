package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
)

var verifyFlags struct {
	format string
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify decision log integrity",
	Long: `Verify the integrity hash of every decision log in a range.

Each stored log carries an HMAC-SHA256 over its canonical fields, and
sensitive fields are sealed with AES-256-GCM. verify recomputes the hash and
opens sealed fields for every matching log, reporting each failure instead
of stopping at the first. The run is recorded in the operations audit.

Takes the same filters as "logs query".

Examples:
  arbiter verify --start 2025-01-01 --end 2025-03-31
  arbiter verify --start 2025-03-01 --end 2025-03-31 --user u-42 --format json`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	f := verifyCmd.Flags()
	f.StringVar(&logsFlags.start, "start", "", "range start (required)")
	f.StringVar(&logsFlags.end, "end", "", "range end (required)")
	f.StringVar(&logsFlags.user, "user", "", "filter by user id")
	f.StringVar(&logsFlags.decision, "decision", "", "filter by decision")
	f.StringSliceVar(&logsFlags.flags, "flag", nil, "filter by compliance flag (all of)")
	f.StringVar(&verifyFlags.format, "format", "text", "output format: text, json")
}

func runVerify(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(verifyFlags.format)
	if err != nil || format == cli.FormatCSV {
		return cli.NewConfigError("format", "verify supports text and json output")
	}
	q, err := auditQuery()
	if err != nil {
		return cli.NewCommandError("verify", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.VerifyLogs(ctx, q)
	if err != nil {
		return cli.NewCommandError("verify", err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		formatter, _ := cli.NewFormatter(format)
		if err := formatter.FormatTo(out, res); err != nil {
			return err
		}
	} else {
		for _, v := range res.Violations {
			fmt.Fprintf(out, "✗ %s: %s\n", v.LogID, v.Reason)
		}
		fmt.Fprintf(out, "%d logs checked, %d violations\n", res.Checked, len(res.Violations))
	}
	if !res.Valid() {
		return cli.NewCommandError("verify", fmt.Errorf("%d log(s) failed verification", len(res.Violations)))
	}
	return nil
}
