package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/decision"
	"mercator-hq/arbiter/pkg/engine"
)

var evaluateFlags struct {
	file     string
	policies []string
	explain  bool
	noCache  bool
	timeout  time.Duration
	format   string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate financial intents",
	Long: `Evaluate one intent, or a JSON array of intents, and record each
decision in the audit trail.

The command exits with status 3 when any intent is denied, so scripts can
gate on the decision.

Examples:
  # Evaluate an intent file against the configured policy set
  arbiter evaluate --file intent.json

  # Read a batch from stdin and print JSON
  cat intents.json | arbiter evaluate --format json

  # Evaluate against specific policies with explanations
  arbiter evaluate --file intent.json --policy payments --policy privacy --explain`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evaluateFlags.file, "file", "f", "-", "intent JSON file (- for stdin)")
	evaluateCmd.Flags().StringSliceVar(&evaluateFlags.policies, "policy", nil, "policy ids to evaluate (default: configured set)")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.explain, "explain", false, "request evaluator explanations")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.noCache, "no-cache", false, "bypass the decision cache")
	evaluateCmd.Flags().DurationVar(&evaluateFlags.timeout, "timeout", 0, "per-intent evaluation timeout")
	evaluateCmd.Flags().StringVar(&evaluateFlags.format, "format", "text", "output format: text, json")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(evaluateFlags.format)
	if err != nil || format == cli.FormatCSV {
		return cli.NewConfigError("format", "evaluate supports text and json output")
	}

	intents, err := readIntents(cmd.InOrStdin(), evaluateFlags.file)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	policies := evaluateFlags.policies
	if len(policies) == 0 {
		policies = a.engine.DefaultPolicies()
	}
	opts := a.engine.DefaultOptions()
	if evaluateFlags.explain {
		opts.Explain = true
	}
	if evaluateFlags.noCache {
		opts.UseCache = false
	}
	if evaluateFlags.timeout > 0 {
		opts.Timeout = evaluateFlags.timeout
	}

	results := a.engine.EvaluateIntents(ctx, intents, policies, opts)
	if err := a.engine.Flush(ctx); err != nil {
		return cli.NewCommandError("evaluate", fmt.Errorf("flush decision logs: %w", err))
	}

	formatter, _ := cli.NewFormatter(format)
	table := evaluationTable{intents: intents, results: results}
	var data any = table
	if format == cli.FormatJSON {
		data = table.JSON()
	}
	if err := formatter.FormatTo(cmd.OutOrStdout(), data); err != nil {
		return err
	}

	for _, r := range results {
		if r.Err != nil {
			return cli.NewCommandError("evaluate", r.Err)
		}
	}
	for _, r := range results {
		if r.Result.Decision.Decision == decision.Deny {
			return cli.ErrDenied
		}
	}
	return nil
}

// readIntents decodes a single intent object or an array of intents.
func readIntents(stdin io.Reader, path string) ([]*decision.FinancialIntent, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read intents: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no intent supplied")
	}
	if data[0] == '[' {
		var intents []*decision.FinancialIntent
		if err := json.Unmarshal(data, &intents); err != nil {
			return nil, fmt.Errorf("decode intents: %w", err)
		}
		if len(intents) == 0 {
			return nil, fmt.Errorf("no intent supplied")
		}
		return intents, nil
	}

	var intent decision.FinancialIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	return []*decision.FinancialIntent{&intent}, nil
}

// evaluationJSON is one evaluate result in JSON output.
type evaluationJSON struct {
	IntentID string         `json:"intent_id"`
	Result   *engine.Result `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}
