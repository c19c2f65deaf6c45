package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fiftysocket",
		Short: "Phoenix V2 WebSocket test server",
		Long: `fiftysocket is an in-memory Phoenix V2 protocol server for live-testing
Phoenix client libraries.

Running it without a command is the same as "fiftysocket serve".

Use "fiftysocket [command] --help" for more information about a command.`,
		SilenceUsage: true,
	}

	serve := newServeCmd()
	root.AddCommand(serve)
	root.AddCommand(newVersionCmd())

	// The bare command serves.
	root.Flags().AddFlagSet(serve.Flags())
	root.RunE = serve.RunE

	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
