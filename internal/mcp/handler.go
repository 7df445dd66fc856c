package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireID extracts a required positive key ID from the tool request.
func requireID(request mcp.CallToolRequest, key string) (int64, error) {
	val, err := request.RequireInt(key)
	if err != nil {
		return 0, fmt.Errorf("missing required parameter %q", key)
	}
	if val <= 0 {
		return 0, fmt.Errorf("parameter %q must be a positive key ID, got %d", key, val)
	}
	return int64(val), nil
}

// optionalBool extracts an optional boolean argument from the tool request.
func optionalBool(request mcp.CallToolRequest, key string) bool {
	return request.GetBool(key, false)
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the LLM so it can self-correct; they do NOT terminate the MCP
// session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}
