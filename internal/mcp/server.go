package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/apiodactyl/apiodactyl/internal/service"
)

// MCPServer wraps the mcp-go server with the key administration tools and
// resources. It is an operator surface: whoever can reach it can manage keys,
// so it is served over stdio or on a private address only.
type MCPServer struct {
	authSvc *service.AuthService
	logger  *slog.Logger
	server  *server.MCPServer
}

// NewMCPServer creates an MCPServer pre-loaded with all tools and resources.
// The returned server is ready to serve over stdio or HTTP.
func NewMCPServer(authSvc *service.AuthService, version string, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &MCPServer{
		authSvc: authSvc,
		logger:  logger,
	}

	mcpServer := server.NewMCPServer(
		"Apiodactyl Key Administration",
		version,
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go MCPServer instance.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the MCP server in stdio mode.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the MCP server in Streamable HTTP mode, listening on
// the given address (e.g. "127.0.0.1:3001").
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.server)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func mutatingAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(false),
	}
}

// destructiveAnnotation marks tools whose effect cannot be undone.
func destructiveAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint:    boolPtr(false),
		DestructiveHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
