package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/export"
	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/server/handlers"
)

var logsFlags struct {
	start          string
	end            string
	user           string
	operation      string
	decision       string
	policies       []string
	flags          []string
	classification []string
	retention      int
	sortBy         string
	sortOrder      string
	limit          int
	offset         int
	queryFormat    string
	exportFormat   string
	output         string
	progress       bool

	result   string
	errorMsg string
	since    string
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query and export the decision audit trail",
	Long: `Query, inspect and export decision logs.

Times accept RFC 3339 timestamps or YYYY-MM-DD dates. Ranges are
inclusive, and a date given as --end covers that whole day.

Subcommands:
  query       - Query logs with filters
  show        - Print one log
  export      - Stream matching logs as JSON or CSV
  outcome     - Record the execution outcome of a decision
  operations  - List the operations audit`,
}

var logsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query decision logs",
	Long: `Query decision logs with filters.

Examples:
  # Denials in March
  arbiter logs query --start 2025-03-01 --end 2025-03-31 --decision deny

  # Privacy flagged decisions for one user, as JSON
  arbiter logs query --start 2025-03-01 --end 2025-03-31 --user u-42 --flag privacy_act --format json`,
	RunE: runLogsQuery,
}

var logsShowCmd = &cobra.Command{
	Use:   "show <log-id>",
	Short: "Print one decision log",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsShow,
}

var logsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export decision logs",
	Long: `Stream every matching log as a JSON array or CSV.

Examples:
  arbiter logs export --start 2025-01-01 --end 2025-03-31 --format csv --output q1.csv`,
	RunE: runLogsExport,
}

var logsOutcomeCmd = &cobra.Command{
	Use:   "outcome <log-id>",
	Short: "Record the execution outcome of a decision",
	Long: `Record whether the decided operation was executed. An outcome can be
recorded once per log.

Examples:
  arbiter logs outcome 01J... --result success
  arbiter logs outcome 01J... --result failure --error "bank rejected payment"`,
	Args: cobra.ExactArgs(1),
	RunE: runLogsOutcome,
}

var logsOperationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "List the operations audit",
	RunE:  runLogsOperations,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsQueryCmd, logsShowCmd, logsExportCmd, logsOutcomeCmd, logsOperationsCmd)

	for _, c := range []*cobra.Command{logsQueryCmd, logsExportCmd} {
		f := c.Flags()
		f.StringVar(&logsFlags.start, "start", "", "range start (required)")
		f.StringVar(&logsFlags.end, "end", "", "range end (required)")
		f.StringVar(&logsFlags.user, "user", "", "filter by user id")
		f.StringVar(&logsFlags.operation, "operation", "", "filter by operation")
		f.StringVar(&logsFlags.decision, "decision", "", "filter by decision (allow, deny, conditional)")
		f.StringSliceVar(&logsFlags.policies, "policy", nil, "filter by evaluated policy (any of)")
		f.StringSliceVar(&logsFlags.flags, "flag", nil, "filter by compliance flag (all of)")
		f.StringSliceVar(&logsFlags.classification, "classification", nil, "filter by data classification (any of)")
		f.IntVar(&logsFlags.retention, "retention-years", 0, "filter by retention tier")
		f.StringVarP(&logsFlags.output, "output", "o", "", "output file (default: stdout)")
	}
	logsQueryCmd.Flags().StringVar(&logsFlags.sortBy, "sort-by", "", "sort field (timestamp, user_id, decision, evaluation_time)")
	logsQueryCmd.Flags().StringVar(&logsFlags.sortOrder, "sort-order", "", "sort order (asc, desc)")
	logsQueryCmd.Flags().IntVar(&logsFlags.limit, "limit", 100, "max results")
	logsQueryCmd.Flags().IntVar(&logsFlags.offset, "offset", 0, "pagination offset")
	logsQueryCmd.Flags().StringVar(&logsFlags.queryFormat, "format", "text", "output format: text, json, csv")

	logsExportCmd.Flags().StringVar(&logsFlags.exportFormat, "format", "json", "export format: json, csv")
	logsExportCmd.Flags().BoolVar(&logsFlags.progress, "progress", false, "report progress on stderr")

	logsOutcomeCmd.Flags().StringVar(&logsFlags.result, "result", "success", "outcome result (success, failure, partial)")
	logsOutcomeCmd.Flags().StringVar(&logsFlags.errorMsg, "error", "", "error detail for a failed execution")

	logsOperationsCmd.Flags().StringVar(&logsFlags.since, "since", "", "only operations at or after this time")
	logsOperationsCmd.Flags().IntVar(&logsFlags.limit, "limit", 100, "max results")
}

// auditQuery builds a query from the flags through the same parser the
// HTTP API uses.
func auditQuery() (*audit.Query, error) {
	values := url.Values{}
	set := func(key, value string) {
		if value != "" {
			values.Set(key, value)
		}
	}
	set("start", logsFlags.start)
	set("end", logsFlags.end)
	set("user_id", logsFlags.user)
	set("operation", logsFlags.operation)
	set("decision", logsFlags.decision)
	set("sort_by", logsFlags.sortBy)
	set("sort_order", logsFlags.sortOrder)
	values["policy"] = logsFlags.policies
	values["flag"] = logsFlags.flags
	values["classification"] = logsFlags.classification
	if logsFlags.retention > 0 {
		values.Set("retention_years", strconv.Itoa(logsFlags.retention))
	}
	return handlers.ParseQuery(values)
}

// outputWriter opens --output, or returns stdout.
func outputWriter(cmd *cobra.Command) (io.Writer, func() error, error) {
	if logsFlags.output == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(logsFlags.output)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}

func runLogsQuery(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(logsFlags.queryFormat)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	q, err := auditQuery()
	if err != nil {
		return cli.NewCommandError("logs query", err)
	}
	q.Limit = logsFlags.limit
	q.Offset = logsFlags.offset

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("logs query", err)
	}

	w, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	switch format {
	case cli.FormatJSON:
		formatter, _ := cli.NewFormatter(format)
		err = formatter.FormatTo(w, res)
	case cli.FormatCSV:
		err = export.NewCSVExporter(true).Export(ctx, res.Logs, w)
	default:
		formatter, _ := cli.NewFormatter(format)
		if err = formatter.FormatTo(w, logTable(res.Logs)); err == nil {
			_, err = fmt.Fprintf(w, "\n%d of %d logs (offset %d)\n", res.Pagination.Returned, res.TotalCount, res.Pagination.Offset)
		}
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}

func runLogsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	log, err := a.engine.GetLog(ctx, args[0])
	if err != nil {
		return cli.NewCommandError("logs show", err)
	}
	formatter, _ := cli.NewFormatter(cli.FormatJSON)
	return formatter.FormatTo(cmd.OutOrStdout(), log)
}

func runLogsExport(cmd *cobra.Command, args []string) error {
	exporter, ok := export.ForFormat(logsFlags.exportFormat, false)
	if !ok {
		return cli.NewConfigError("format", "export supports json and csv")
	}
	q, err := auditQuery()
	if err != nil {
		return cli.NewCommandError("logs export", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	logs, errCh, err := a.engine.StreamLogs(ctx, q)
	if err != nil {
		return cli.NewCommandError("logs export", err)
	}

	if logsFlags.progress {
		logs = withProgress(ctx, logs, cli.NewProgressReporter(cmd.ErrOrStderr()))
	}

	w, closeOut, err := outputWriter(cmd)
	if err != nil {
		return err
	}
	err = exporter.ExportStream(ctx, logs, w)
	if err == nil {
		err = <-errCh
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	if err != nil {
		return cli.NewCommandError("logs export", err)
	}
	return nil
}

// withProgress relays logs while reporting a running count.
func withProgress(ctx context.Context, in <-chan *audit.DecisionLog, progress cli.ProgressReporter) <-chan *audit.DecisionLog {
	out := make(chan *audit.DecisionLog)
	go func() {
		defer close(out)
		progress.Start(0)
		var n int64
		for log := range in {
			select {
			case out <- log:
			case <-ctx.Done():
				progress.Error(ctx.Err())
				return
			}
			n++
			progress.Update(n)
		}
		progress.Finish()
	}()
	return out
}

func runLogsOutcome(cmd *cobra.Command, args []string) error {
	result := audit.OutcomeResult(logsFlags.result)
	switch result {
	case audit.OutcomeSuccess, audit.OutcomeFailure, audit.OutcomePartial:
	default:
		return cli.NewConfigError("result", fmt.Sprintf("unknown outcome result %q", logsFlags.result))
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now().UTC()
	outcome := &audit.Outcome{
		Executed:   result != audit.OutcomeFailure,
		ExecutedAt: &now,
		Result:     result,
		Error:      logsFlags.errorMsg,
	}
	if err := a.engine.RecordOutcome(ctx, args[0], outcome); err != nil {
		return cli.NewCommandError("logs outcome", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Outcome %s recorded for %s\n", result, args[0])
	return nil
}

func runLogsOperations(cmd *cobra.Command, args []string) error {
	var since time.Time
	if logsFlags.since != "" {
		values := url.Values{"start": {logsFlags.since}}
		q, err := handlers.ParseQuery(values)
		if err != nil {
			return cli.NewConfigError("since", err.Error())
		}
		since = q.Start
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ops, err := a.engine.ListOperations(ctx, since, logsFlags.limit)
	if err != nil {
		return cli.NewCommandError("logs operations", err)
	}
	formatter, _ := cli.NewFormatter(cli.FormatJSON)
	return formatter.FormatTo(cmd.OutOrStdout(), ops)
}
