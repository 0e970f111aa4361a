/*
Package cli provides command-line helpers shared by the arbiter command.

Output Formatting:

Results print as text, JSON or CSV. Values implementing Table render as an
aligned table in text mode and as rows in CSV mode:

	formatter, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	return formatter.FormatTo(os.Stdout, result)

Progress Reporting:

Long exports report progress on stderr:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	progress.Update(n)
	progress.Finish()

Exit Codes:

ExitCode maps a command error to the process exit status. Configuration
problems exit with 2 and denied intents with 3, so scripts can gate on a
decision without parsing output.

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
