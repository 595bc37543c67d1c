/*
Package cli holds the helpers shared by the eventgate subcommands: output
formatting, progress on stderr, signal handling and exit codes.

Results that print as rows implement Tabular and can be written as aligned
text, JSON or CSV:

	format, err := cli.ParseFormat(flagFormat)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, report)

Errors returned from a command map to exit codes with ExitCode: 2 for
configuration problems, 1 for everything else.
*/
package cli
