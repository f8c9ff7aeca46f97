// Package cmd implements the edgedispatcher command-line interface.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "edgedispatcher",
	Short: "Lambda dispatch substrate: forwarding table, routing policies, and a processing-time estimator",
}

// Execute runs the root command, exiting with status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
