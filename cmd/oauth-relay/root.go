package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the entry point when oauth-relay is called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "oauth-relay",
	Short: "Relay OAuth authorization codes to waiting clients",
	Long: `oauth-relay receives the browser redirect of an OAuth authorization
code flow and hands the code to the client that started the flow, either
over a WebSocket (push mode) or through a one-time retrieval endpoint
(pull mode).`,
	// SilenceUsage keeps usage text out of runtime errors
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAwaitCmd())
	rootCmd.AddCommand(newHashKeyCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// SetVersion sets the version reported by the CLI
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits non-zero on error
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "oauth-relay version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
