// bitledger tracks memory bitmap candidates through an append-only lifecycle
// ledger: propose, adopt/reject, invalidation, conflict handling, and
// windowed audit metrics.
//
// Usage:
//
//	bitledger serve     [--config=<path>] [--db=<path>] [--listen=<addr>]
//	bitledger serve-mcp [--config=<path>] [--db=<path>]
//	bitledger audit     [--db=<path>] [--days=<n>] [--limit=<n>]
//	bitledger replay    [--db=<path>]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
