package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/apiodactyl/apiodactyl/internal/model"
)

const keysResourceURI = "apiodactyl://keys"

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			keysResourceURI,
			"API Keys",
			mcp.WithResourceDescription(
				"Metadata for every stored API key: ID, admin flag, creation "+
					"and last-used time.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleKeysResource,
	)
}

// handleKeysResource returns a JSON list of all keys.
func (s *MCPServer) handleKeysResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	keys, err := s.authSvc.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	items := make([]model.APIKeyDetails, len(keys))
	for i, k := range keys {
		items[i] = k.Details()
	}

	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal keys: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      keysResourceURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
