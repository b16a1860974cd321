package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/zykairotis/perplexity-bridge/pkg/convstore"
	"github.com/zykairotis/perplexity-bridge/pkg/mcptools"
	"github.com/zykairotis/perplexity-bridge/pkg/perplexity"
)

var mcpHTTPAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio or streamable HTTP",
	Long: `Expose search, chat, file analysis, and space management as MCP tools.
Without flags the server speaks stdio, which is what desktop MCP clients
spawn. With --http it listens on the given address instead.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpHTTPAddr, "http", "", "Serve streamable HTTP on this address instead of stdio, e.g. 127.0.0.1:9523")
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := perplexity.NewClient(cfg.Upstream, log)
	client.Identify(cmd.Context())

	service := mcptools.NewService(client, convstore.NewMemory(), cfg.SpacesPath, log)
	server := service.NewServer(version)

	if mcpHTTPAddr != "" {
		log.Info().Str("addr", mcpHTTPAddr).Msg("MCP server listening")
		return http.ListenAndServe(mcpHTTPAddr, mcptools.HTTPHandler(server))
	}
	log.Info().Msg("MCP server on stdio")
	return mcptools.RunStdio(cmd.Context(), server)
}
