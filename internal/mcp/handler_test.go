package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/apiodactyl/apiodactyl/internal/service"
	"github.com/apiodactyl/apiodactyl/internal/store"
)

func newTestMCP(t *testing.T) (*MCPServer, *service.AuthService) {
	t.Helper()
	s, err := store.NewSQLiteStore("")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	authSvc := service.NewAuthService(s)
	t.Cleanup(func() {
		authSvc.Close()
		s.Close()
	})
	return NewMCPServer(authSvc, "test", nil), authSvc
}

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("expected tool result content")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", res.Content[0])
	}
	return text.Text
}

// --------------------------------------------------------------------------
// Tool handlers
// --------------------------------------------------------------------------

func TestCreateAndListKeys(t *testing.T) {
	srv, _ := newTestMCP(t)
	ctx := context.Background()

	res, err := srv.handleCreateKey(ctx, toolRequest("apiodactyl_create_key", map[string]interface{}{"is_admin": true}))
	if err != nil {
		t.Fatalf("handleCreateKey: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	var created struct {
		APIKey  string `json:"api_key"`
		Details struct {
			ID      int64 `json:"id"`
			IsAdmin bool  `json:"is_admin"`
		} `json:"details"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &created); err != nil {
		t.Fatalf("decode create result: %v", err)
	}
	if !strings.HasPrefix(created.APIKey, service.KeyPrefix) {
		t.Errorf("api_key = %q, want %s prefix", created.APIKey, service.KeyPrefix)
	}
	if !created.Details.IsAdmin {
		t.Error("expected admin key")
	}

	res, err = srv.handleListKeys(ctx, toolRequest("apiodactyl_list_keys", nil))
	if err != nil {
		t.Fatalf("handleListKeys: %v", err)
	}
	text := resultText(t, res)
	if strings.Contains(text, created.APIKey) || strings.Contains(text, service.HashKey(created.APIKey)) {
		t.Error("list output must not contain key material")
	}
	var listed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(text), &listed); err != nil {
		t.Fatalf("decode list result: %v", err)
	}
	if listed.Count != 1 {
		t.Errorf("count = %d, want 1", listed.Count)
	}
}

func TestRevokeKeyTool(t *testing.T) {
	srv, authSvc := newTestMCP(t)
	ctx := context.Background()

	key, err := authSvc.CreateKey(ctx, "ak_mcp_revoke", false)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	res, err := srv.handleRevokeKey(ctx, toolRequest("apiodactyl_revoke_key", map[string]interface{}{"id": float64(key.ID)}))
	if err != nil {
		t.Fatalf("handleRevokeKey: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if _, err := authSvc.Validate(ctx, "ak_mcp_revoke"); err == nil {
		t.Error("revoked key should no longer validate")
	}

	res, _ = srv.handleRevokeKey(ctx, toolRequest("apiodactyl_revoke_key", map[string]interface{}{"id": float64(key.ID)}))
	if !res.IsError {
		t.Error("revoking a missing key should be a tool error")
	}
}

func TestPromoteKeyTool(t *testing.T) {
	srv, authSvc := newTestMCP(t)
	ctx := context.Background()

	key, err := authSvc.CreateKey(ctx, "ak_mcp_promote", false)
	if err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	res, err := srv.handlePromoteKey(ctx, toolRequest("apiodactyl_promote_key", map[string]interface{}{"id": float64(key.ID)}))
	if err != nil {
		t.Fatalf("handlePromoteKey: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	got, err := authSvc.Validate(ctx, "ak_mcp_promote")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !got.IsAdmin {
		t.Error("promoted key should validate as admin")
	}
}

func TestIDValidation(t *testing.T) {
	srv, _ := newTestMCP(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing", nil},
		{"zero", map[string]interface{}{"id": float64(0)}},
		{"negative", map[string]interface{}{"id": float64(-3)}},
		{"string", map[string]interface{}{"id": "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := srv.handlePromoteKey(ctx, toolRequest("apiodactyl_promote_key", tt.args))
			if err != nil {
				t.Fatalf("handlePromoteKey returned protocol error: %v", err)
			}
			if !res.IsError {
				t.Error("expected tool error")
			}
		})
	}
}

func TestCleanupCacheTool(t *testing.T) {
	srv, _ := newTestMCP(t)

	res, err := srv.handleCleanupCache(context.Background(), toolRequest("apiodactyl_cleanup_cache", nil))
	if err != nil {
		t.Fatalf("handleCleanupCache: %v", err)
	}
	if !strings.Contains(resultText(t, res), `"removed": 0`) {
		t.Errorf("unexpected result: %s", resultText(t, res))
	}
}

func TestKeysResource(t *testing.T) {
	srv, authSvc := newTestMCP(t)
	ctx := context.Background()
	if _, err := authSvc.CreateKey(ctx, "ak_resource", false); err != nil {
		t.Fatalf("CreateKey: %v", err)
	}

	contents, err := srv.handleKeysResource(ctx, mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("handleKeysResource: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if text.URI != keysResourceURI {
		t.Errorf("URI = %q, want %q", text.URI, keysResourceURI)
	}
}

// --------------------------------------------------------------------------
// Annotations
// --------------------------------------------------------------------------

func TestBoolPtr(t *testing.T) {
	truePtr := boolPtr(true)
	falsePtr := boolPtr(false)
	if truePtr == nil || *truePtr != true {
		t.Errorf("*boolPtr(true) = %v, want true", truePtr)
	}
	if falsePtr == nil || *falsePtr != false {
		t.Errorf("*boolPtr(false) = %v, want false", falsePtr)
	}
	if truePtr == falsePtr {
		t.Error("boolPtr(true) and boolPtr(false) should return distinct pointers")
	}
}

func TestAnnotations(t *testing.T) {
	if ann := readOnlyAnnotation(); ann.ReadOnlyHint == nil || !*ann.ReadOnlyHint {
		t.Error("readOnlyAnnotation should set ReadOnlyHint true")
	}
	if ann := mutatingAnnotation(); ann.ReadOnlyHint == nil || *ann.ReadOnlyHint {
		t.Error("mutatingAnnotation should set ReadOnlyHint false")
	}
	ann := destructiveAnnotation()
	if ann.DestructiveHint == nil || !*ann.DestructiveHint {
		t.Error("destructiveAnnotation should set DestructiveHint true")
	}
}
