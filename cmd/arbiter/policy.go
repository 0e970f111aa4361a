package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/policy/manager"
)

var policyFlags struct {
	id        string
	version   string
	directory string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage policy documents on the evaluator",
	Long: `Load, remove and synchronize policy documents.

Policy documents are opaque to Arbiter: they are pushed to the evaluator
verbatim. Loading or removing a policy clears the decision cache and is
recorded in the operations audit.

Subcommands:
  load    - Push one document
  remove  - Remove a document by id
  sync    - Reconcile a directory with the evaluator
  check   - Check a directory without contacting the evaluator`,
}

var policyLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Push a policy document to the evaluator",
	Long: `Push a policy document. The id defaults to the file name without its
extension and the version to a digest of the content.

Examples:
  arbiter policy load policies/payments.rego
  arbiter policy load payments.rego --id payments --version 2025.03`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicyLoad,
}

var policyRemoveCmd = &cobra.Command{
	Use:   "remove <policy-id>",
	Short: "Remove a policy document from the evaluator",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyRemove,
}

var policySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile a policy directory with the evaluator",
	Long: `Load every new or changed document in the directory (policy.directory
by default) once. A manifest.yaml in the directory may pin ids and
versions.`,
	RunE: runPolicySync,
}

var policyCheckCmd = &cobra.Command{
	Use:   "check [directory]",
	Short: "Check a policy directory",
	Long: `Read a policy directory the way sync does and report the documents it
would load, without contacting the evaluator.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicyCheck,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyLoadCmd, policyRemoveCmd, policySyncCmd, policyCheckCmd)

	policyLoadCmd.Flags().StringVar(&policyFlags.id, "id", "", "policy id (default: file name)")
	policyLoadCmd.Flags().StringVar(&policyFlags.version, "version", "", "policy version (default: content digest)")
	policySyncCmd.Flags().StringVarP(&policyFlags.directory, "dir", "d", "", "policy directory (default: policy.directory)")
}

func runPolicyLoad(cmd *cobra.Command, args []string) error {
	doc, err := manager.NewLoader(&manager.Config{}).LoadFile(args[0])
	if err != nil {
		return cli.NewCommandError("policy load", err)
	}
	if policyFlags.id != "" {
		doc.ID = policyFlags.id
	}
	if policyFlags.version != "" {
		doc.Version = policyFlags.version
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.LoadPolicy(ctx, doc.PolicyDocument); err != nil {
		return cli.NewCommandError("policy load", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Policy %s loaded (version %s)\n", doc.ID, doc.Version)
	return nil
}

func runPolicyRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.RemovePolicy(ctx, args[0]); err != nil {
		return cli.NewCommandError("policy remove", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Policy %s removed\n", args[0])
	return nil
}

func runPolicySync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd.ErrOrStderr(), false, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := policyFlags.directory
	if dir == "" {
		dir = a.cfg.Policy.Directory
	}
	if dir == "" {
		return cli.NewConfigError("policy.directory", "no policy directory configured; pass --dir")
	}

	m, err := manager.New(&manager.Config{Directory: dir}, a.engine)
	if err != nil {
		return cli.NewConfigError("policy.directory", err.Error())
	}
	result, err := m.Sync(ctx)
	if err != nil {
		return cli.NewCommandError("policy sync", err)
	}

	out := cmd.OutOrStdout()
	for _, id := range result.Loaded {
		fmt.Fprintf(out, "✓ loaded %s\n", id)
	}
	for _, id := range result.Removed {
		fmt.Fprintf(out, "✓ removed %s\n", id)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(out, "✗ %v\n", e)
	}
	fmt.Fprintf(out, "%d loaded, %d removed, %d unchanged, %d failed\n",
		len(result.Loaded), len(result.Removed), result.Unchanged, len(result.Errors))
	if err := result.Err(); err != nil {
		return cli.NewCommandError("policy sync", err)
	}
	return nil
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	dir := policyFlags.directory
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Policy.Directory
	}
	if dir == "" {
		return cli.NewConfigError("policy.directory", "no policy directory configured")
	}

	docs, problems, err := manager.NewLoader(&manager.Config{}).LoadDirectory(dir)
	if err != nil {
		return cli.NewCommandError("policy check", err)
	}

	formatter, _ := cli.NewFormatter(cli.FormatText)
	if err := formatter.FormatTo(cmd.OutOrStdout(), documentTable(docs)); err != nil {
		return err
	}
	for _, p := range problems {
		fmt.Fprintf(cmd.OutOrStdout(), "✗ %v\n", p)
	}
	if len(problems) > 0 {
		return cli.NewCommandError("policy check", fmt.Errorf("%d document(s) rejected", len(problems)))
	}
	return nil
}
