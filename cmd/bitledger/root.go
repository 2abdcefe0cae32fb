package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "bitledger",
	Short: "Candidate lifecycle ledger for memory bitmap proposals",
	Long: "bitledger records bitmap candidate lifecycle events in an append-only\n" +
		"ledger, enforces the adopt/reject state machine with conflict detection,\n" +
		"and serves windowed audit metrics.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.Version = version
}
