package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	amcp "github.com/apiodactyl/apiodactyl/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes API key administration
as tools for AI agents. Supports stdio (default) and HTTP transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for direct integration with desktop MCP clients.

In HTTP mode, the server listens on the given address using Streamable HTTP.
Every tool acts with admin privileges, so bind it to a trusted interface only.`,
		Example: `  apiodactyl mcp                                      # stdio mode
  apiodactyl mcp --transport http --addr 127.0.0.1:3001 # HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP()
		},
	}

	cmd.Flags().String("transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().String("addr", "127.0.0.1:3001", "HTTP listen address (only used with --transport http)")

	viper.BindPFlag("mcp.transport", cmd.Flags().Lookup("transport"))
	viper.BindPFlag("mcp.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

func runMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout carries the protocol in stdio mode, so logs always go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	authSvc := newAuthService(cfg, st, logger)
	defer authSvc.Close()

	mcpSrv := amcp.NewMCPServer(authSvc, versionString(), logger)

	switch cfg.MCP.Transport {
	case "", "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		return mcpSrv.ServeHTTP(cfg.MCP.Addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", cfg.MCP.Transport)
	}
}
