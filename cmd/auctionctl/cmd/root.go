package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "auctionctl",
	Short: "Operate the sealed-bid multi-round auction engine",
}

// Execute runs the CLI, registering every subcommand first.
func Execute() error {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	return rootCmd.Execute()
}
