package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bitledger/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Rebuild the projection and serve the lifecycle HTTP API",
	RunE:  runServe,
}

var (
	serveConfig string
	serveDB     string
	serveListen string
)

func init() {
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Config file (YAML/JSON)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "Ledger DB path (overrides config)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP bind address (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := openCore(ctx, serveConfig, serveDB, serveListen)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := httpapi.NewServer(c.engine, c.store, c.agg, c.ledger, c.cfg.WindowDays)
	return srv.Run(ctx, c.cfg.Listen)
}
