package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/apiodactyl/apiodactyl/internal/model"
	"github.com/apiodactyl/apiodactyl/internal/service"
)

// registerTools registers the key administration tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	srv.AddTool(
		mcp.NewTool("apiodactyl_list_keys",
			mcp.WithDescription(
				"List all API keys with their ID, admin flag, creation time and "+
					"last-used time. Key values and hashes are never returned.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListKeys,
	)

	srv.AddTool(
		mcp.NewTool("apiodactyl_create_key",
			mcp.WithDescription(
				"Generate a new API key. The key is returned exactly once in the "+
					"api_key field; store it safely, it cannot be recovered.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithBoolean("is_admin",
				mcp.Description("Grant admin rights to the new key (default false)"),
			),
		),
		s.handleCreateKey,
	)

	srv.AddTool(
		mcp.NewTool("apiodactyl_revoke_key",
			mcp.WithDescription(
				"Revoke an API key by ID. The key stops authenticating immediately. "+
					"Use apiodactyl_list_keys to find the ID.",
			),
			mcp.WithToolAnnotation(destructiveAnnotation()),
			mcp.WithNumber("id",
				mcp.Required(),
				mcp.Description("ID of the key to revoke"),
			),
		),
		s.handleRevokeKey,
	)

	srv.AddTool(
		mcp.NewTool("apiodactyl_promote_key",
			mcp.WithDescription("Grant admin rights to an existing API key."),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithNumber("id",
				mcp.Required(),
				mcp.Description("ID of the key to promote"),
			),
		),
		s.handlePromoteKey,
	)

	srv.AddTool(
		mcp.NewTool("apiodactyl_cleanup_cache",
			mcp.WithDescription("Evict expired entries from the API key cache and report how many were removed."),
			mcp.WithToolAnnotation(mutatingAnnotation()),
		),
		s.handleCleanupCache,
	)
}

// handleListKeys returns metadata for every stored key.
func (s *MCPServer) handleListKeys(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	keys, err := s.authSvc.ListKeys(ctx)
	if err != nil {
		s.logger.Error("mcp list keys failed", "error", err)
		return toolError("Failed to list keys")
	}

	items := make([]model.APIKeyDetails, len(keys))
	for i, k := range keys {
		items[i] = k.Details()
	}
	return successJSON(map[string]interface{}{
		"keys":  items,
		"count": len(items),
	})
}

// handleCreateKey generates and stores a new key.
func (s *MCPServer) handleCreateKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	secret := service.GenerateKey()
	key, err := s.authSvc.CreateKey(ctx, secret, optionalBool(request, "is_admin"))
	if err != nil {
		s.logger.Error("mcp create key failed", "error", err)
		return toolError("Failed to create key")
	}

	return successJSON(map[string]interface{}{
		"message": "API key created successfully",
		"api_key": secret,
		"details": key.Details(),
	})
}

// handleRevokeKey deletes a key by ID.
func (s *MCPServer) handleRevokeKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireID(request, "id")
	if err != nil {
		return toolError("%v", err)
	}

	if err := s.authSvc.RevokeKeyByID(ctx, id); err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			return toolError("API key %d not found", id)
		}
		s.logger.Error("mcp revoke key failed", "key_id", id, "error", err)
		return toolError("Failed to revoke key %d", id)
	}

	return successJSON(map[string]interface{}{
		"message": "API key revoked successfully",
		"id":      id,
	})
}

// handlePromoteKey grants admin rights to a key.
func (s *MCPServer) handlePromoteKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	id, err := requireID(request, "id")
	if err != nil {
		return toolError("%v", err)
	}

	key, err := s.authSvc.PromoteKey(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			return toolError("API key %d not found", id)
		}
		s.logger.Error("mcp promote key failed", "key_id", id, "error", err)
		return toolError("Failed to promote key %d", id)
	}

	return successJSON(key.Details())
}

// handleCleanupCache sweeps expired cache entries.
func (s *MCPServer) handleCleanupCache(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	removed := s.authSvc.CleanupCache()
	return successJSON(map[string]interface{}{
		"message": "Cache cleanup completed",
		"removed": removed,
	})
}
