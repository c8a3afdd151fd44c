package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"cli-auth/internal/app"
	"cli-auth/internal/logger"
)

// debug flag indicates whether debug logging should be enabled.
// It can be toggled via the `--debug` command-line flag.
var debug bool

// exit terminates the process. It is the only place the CLI ends the process,
// and tests replace it to observe the exit code.
var exit = os.Exit

// newRootCmd builds the base command for the `cli-auth` CLI and registers its subcommands.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cli-auth",
		Short:        "Log in with your email and install the CLI package",
		SilenceUsage: true,

		// Initialize the logger before any subcommand runs.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(debug)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newLoginCmd())
	root.AddCommand(newStatusCmd())
	return root
}

// Execute parses the command line and runs the selected subcommand.
// Usage errors exit with a failure code; subcommands exit on their own.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		exit(app.ExitFailure)
	}
}
