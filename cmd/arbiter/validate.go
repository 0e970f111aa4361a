package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration (file, defaults and ARBITER_* overrides) and
report every invalid field. Nothing is opened or contacted; use
"serve --dry-run" to also open the storage backend and load the audit key.

Examples:
  arbiter validate --config /etc/arbiter/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	_, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err == nil {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	var verr config.ValidationError
	if errors.As(err, &verr) {
		for _, fe := range verr.Errors {
			fmt.Fprintf(out, "✗ %s: %s\n", fe.Field, fe.Message)
		}
		return cli.NewConfigError("", fmt.Sprintf("%d invalid field(s)", len(verr.Errors)))
	}
	return cli.NewConfigError("", err.Error())
}
