package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rmrfslashbin/device-gateway/internal/mcp"
)

// mcpCmd serves the gateway over the Model Context Protocol.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start an MCP server on stdio exposing discovery, the stored devices
and their hazards as tools, resources and prompts.

Logs go to stderr or the configured log output; stdout carries the
protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()

		gw, err := openGateway(logger)
		if err != nil {
			return err
		}
		defer gw.Close()

		srv := mcp.NewServer(gw.discovery, gw.db, gw.catalog, version, logger)

		logger.Info("MCP server ready, listening on stdio", "version", version, "commit", gitCommit)

		// Serve (blocks until shutdown)
		return srv.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
