package main

import (
	"net/url"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/report"
	"mercator-hq/arbiter/pkg/server/handlers"
)

var reportFlags struct {
	start string
	end   string
	list  bool
	limit int
}

var reportCmd = &cobra.Command{
	Use:   "report <type>",
	Short: "Generate a compliance report",
	Long: `Generate a compliance report over a period and print it as JSON.

Report types:
  compliance_summary    - Decisions per regulatory regime
  user_activity         - Per-user decision activity and anomalies
  policy_effectiveness  - Per-policy decision mix and effectiveness

Generated reports are saved as snapshots when reports.save_snapshots is
set; --list prints the saved snapshots of a type instead.

Examples:
  arbiter report compliance_summary --start 2025-01-01 --end 2025-03-31
  arbiter report user_activity --list`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(report.TypeComplianceSummary), string(report.TypeUserActivity), string(report.TypePolicyEffectiveness)},
	RunE:      runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportFlags.start, "start", "", "period start")
	reportCmd.Flags().StringVar(&reportFlags.end, "end", "", "period end")
	reportCmd.Flags().BoolVar(&reportFlags.list, "list", false, "list saved snapshots instead of generating")
	reportCmd.Flags().IntVar(&reportFlags.limit, "limit", 20, "max snapshots with --list")
}

func runReport(cmd *cobra.Command, args []string) error {
	t, err := report.ParseType(args[0])
	if err != nil {
		return cli.NewConfigError("type", err.Error())
	}

	var period report.Period
	if !reportFlags.list {
		if reportFlags.start == "" || reportFlags.end == "" {
			return cli.NewConfigError("period", "--start and --end are required")
		}
		q, err := handlers.ParseQuery(url.Values{"start": {reportFlags.start}, "end": {reportFlags.end}})
		if err != nil {
			return cli.NewConfigError("period", err.Error())
		}
		period = report.Period{Start: q.Start, End: q.End}
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	formatter, _ := cli.NewFormatter(cli.FormatJSON)
	if reportFlags.list {
		snaps, err := a.engine.ListReports(ctx, string(t), reportFlags.limit)
		if err != nil {
			return cli.NewCommandError("report", err)
		}
		return formatter.FormatTo(cmd.OutOrStdout(), snaps)
	}

	rep, err := a.engine.GetComplianceReport(ctx, t, period)
	if err != nil {
		return cli.NewCommandError("report", err)
	}
	return formatter.FormatTo(cmd.OutOrStdout(), rep)
}
