// Package cmd defines and implements the CLI commands for the crawler
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oliveyoung-crawler",
		Short: "Checks Olive Young product availability at scale.",
		Long: `oliveyoung-crawler reads product identifiers from an operator-maintained
spreadsheet, fetches each product detail page past the storefront's anti-bot
layer, classifies sale status from DOM signals, and writes both an
incremental checkpoint and an aggregated result document.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newReportCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
