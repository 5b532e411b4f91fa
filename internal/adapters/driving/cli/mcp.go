package cli

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openkl/internal/adapters/driving/mcp"
)

var (
	mcpPort int
	mcpHost string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol server",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose search, citations, memory and the graph to MCP clients",
	Long: `Serve the MCP tools and resources over stdio, or over streamable HTTP
when --port is set. HTTP binds to loopback unless --host says otherwise.

Tools: search, cite_make, cite_verify, cite_open, cite_list, distill,
memory_add, memory_list, graph_query, document_list. Search starts from
the configured search options.
Resources: ok://cites/{id}, ok://nodes/{id}, ok://stats, ok://prompts/{name}.

  ok mcp serve
  ok mcp serve --port 8080

Client configuration:
  {"mcpServers": {"ok": {"command": "/path/to/ok", "args": ["mcp", "serve"]}}}`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntVarP(&mcpPort, "port", "p", 0, "serve HTTP on this port instead of stdio")
	mcpServeCmd.Flags().StringVar(&mcpHost, "host", "127.0.0.1", "HTTP bind address")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func mcpPorts() (*mcp.Ports, error) {
	if searchService == nil {
		return nil, errors.New("search service not configured")
	}
	if citationService == nil {
		return nil, errors.New("citation service not configured")
	}
	defaults, err := configuredSearchOptions()
	if err != nil {
		return nil, err
	}
	return &mcp.Ports{
		Search:         searchService,
		Citation:       citationService,
		Distill:        distillService,
		Memory:         memoryService,
		Graph:          graphService,
		Ingest:         ingestService,
		SearchDefaults: &defaults,
	}, nil
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if mcpPort < 0 || mcpPort > 65535 {
		return fmt.Errorf("invalid port %d", mcpPort)
	}

	ports, err := mcpPorts()
	if err != nil {
		return err
	}
	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if mcpPort == 0 {
		return server.Run(cmd.Context())
	}

	addr := net.JoinHostPort(mcpHost, strconv.Itoa(mcpPort))
	cmd.PrintErrf("MCP server listening on http://%s\n", addr)
	return server.RunHTTP(cmd.Context(), addr)
}
