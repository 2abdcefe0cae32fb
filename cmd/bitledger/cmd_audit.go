package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print the windowed audit snapshot for a ledger",
	RunE:  runAudit,
}

var (
	auditConfig      string
	auditDB          string
	auditDays        int
	auditLimit       int
	auditReasonLimit int
	auditJSON        bool
)

func init() {
	auditCmd.Flags().StringVar(&auditConfig, "config", "", "Config file (YAML/JSON)")
	auditCmd.Flags().StringVar(&auditDB, "db", "", "Ledger DB path (overrides config)")
	auditCmd.Flags().IntVar(&auditDays, "days", 0, "Trailing window in days (default from config)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "Max rows in ranked views")
	auditCmd.Flags().IntVar(&auditReasonLimit, "reason-limit", 0, "Max failure reasons")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Emit raw JSON")
}

func runAudit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c, err := openCore(ctx, auditConfig, auditDB, "")
	if err != nil {
		return err
	}
	defer c.Close()

	days := auditDays
	if days <= 0 {
		days = c.cfg.WindowDays
	}
	snap, err := c.agg.Snapshot(ctx, days, auditLimit, auditReasonLimit)
	if err != nil {
		return err
	}

	if auditJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Printf("Audit window: %d day(s)\n", snap.WindowDays)
	fmt.Printf("Candidates:   %d\n", snap.Totals.CandidateTotal)
	fmt.Printf("Statuses:\n")
	for status, n := range snap.Totals.StatusCounts {
		fmt.Printf("  %-18s %d\n", status, n)
	}
	fmt.Printf("Events:\n")
	for typ, n := range snap.Totals.EventCounts {
		fmt.Printf("  %-18s %d\n", typ, n)
	}
	if len(snap.CandidateTransitions) > 0 {
		fmt.Printf("Most contested:\n")
		for _, row := range snap.CandidateTransitions {
			fmt.Printf("  %s  %d event(s)  %s (last: %s at %s)\n",
				row.CandidateID, row.EventCount, row.CurrentStatus, row.LastEvent,
				row.LastAt.Format("2006-01-02 15:04:05"))
		}
	}
	if len(snap.TopFailureReasons) > 0 {
		fmt.Printf("Top failure reasons:\n")
		for _, rc := range snap.TopFailureReasons {
			fmt.Printf("  %-24s %d\n", rc.Reason, rc.Count)
		}
	}
	if snap.Stale {
		fmt.Printf("WARNING: snapshot is stale (ledger read failed)\n")
	}
	return nil
}
