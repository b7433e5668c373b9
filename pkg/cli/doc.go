/*
Package cli provides helpers shared by the pulse commands.

Output Formatting:

Results print as text, aligned tables or JSON. Types implementing Tabular
print as tables in text mode too:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	if err := cli.NewFormatter(format).FormatTo(os.Stdout, rows); err != nil {
		return err
	}

Errors:

ConfigError and CommandError distinguish bad input from failed work;
ExitCode maps them to process exit codes.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
