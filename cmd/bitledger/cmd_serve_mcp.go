package main

import (
	"context"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"bitledger/internal/logging"
	"bitledger/internal/mcptools"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the lifecycle tools over MCP stdio",
	Long: `Starts an MCP server over stdin/stdout so agent clients can propose and
decide candidates as tools. The server watches for parent process death and
self-terminates to avoid zombie processes.`,
	RunE: runServeMCP,
}

var (
	serveMCPConfig string
	serveMCPDB     string
)

func init() {
	serveMCPCmd.Flags().StringVar(&serveMCPConfig, "config", "", "Config file (YAML/JSON)")
	serveMCPCmd.Flags().StringVar(&serveMCPDB, "db", "", "Ledger DB path (overrides config)")
}

func runServeMCP(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	c, err := openCore(ctx, serveMCPConfig, serveMCPDB, "")
	if err != nil {
		return err
	}
	defer c.Close()

	mcptools.WatchParent(ctx, cancel)

	srv := mcptools.NewServer(c.engine, c.store, c.agg)
	logging.New("mcptools").Info("starting bitledger MCP server over stdio")
	return srv.Run(ctx, &sdkmcp.StdioTransport{})
}
