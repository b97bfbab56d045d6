package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/adapters/driving/mcp"
)

var (
	mcpHTTPAddr string
	mcpReadOnly bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

By default, the server communicates over stdio using JSON-RPC and can be
used with Claude Desktop and other MCP-compatible AI assistants.

Use --http to start a streamable HTTP server instead, which enables:
  - Testing with MCP Inspector web UI
  - Prometheus metrics at /metrics

Examples:
  # Stdio mode (default, for Claude Desktop)
  recall mcp

  # HTTP mode (for MCP Inspector, remote access)
  recall mcp --http localhost:8080

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "recall": {
        "command": "/path/to/recall",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	mcpCmd.Flags().BoolVar(&mcpReadOnly, "read-only", false, "hide the ingest and delete_document tools")
	needs(mcpCmd, needsLLM)
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	if queryService == nil || documentService == nil {
		return errors.New("query service not configured")
	}

	ports := &mcp.Ports{
		Ingest:   ingestService,
		Query:    queryService,
		Document: documentService,
		ReadOnly: mcpReadOnly,
	}

	var opts []mcp.Option
	if mcpHTTPAddr != "" && pipelineMetrics != nil {
		opts = append(opts, mcp.WithMetricsHandler(pipelineMetrics.Handler()))
	}

	server, err := mcp.NewServer(ports, opts...)
	if err != nil {
		return err
	}

	if mcpHTTPAddr != "" {
		cmd.PrintErrf("MCP server listening on http://%s\n", mcpHTTPAddr)
		return server.RunHTTP(cmd.Context(), mcpHTTPAddr)
	}

	return server.Run(cmd.Context())
}
