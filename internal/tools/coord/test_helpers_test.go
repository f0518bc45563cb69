package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/axis-sh/axis/internal/nerve"
	"github.com/axis-sh/axis/internal/policy"
	"github.com/axis-sh/axis/internal/store/local"
)

// newTestCenter builds a center over a local store in a temp dir.
func newTestCenter(t *testing.T) *nerve.Center {
	t.Helper()
	dir := t.TempDir()
	st, err := local.New(filepath.Join(dir, "state.json"), filepath.Join(dir, "history"))
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	cfg := policy.DefaultConfig()
	cfg.WorkspaceRoot = dir
	c, err := nerve.New(context.Background(), st, policy.New(cfg), "test-project", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new center: %v", err)
	}
	return c
}

// testServer creates an MCPServer with all tools registered.
func testServer(t *testing.T, c *nerve.Center, opts ...RegisterOption) *server.MCPServer {
	t.Helper()
	s := server.NewMCPServer("test", "0.0.0", server.WithResourceCapabilities(false, true))
	Register(s, c, log.New(io.Discard, "", 0), opts...)
	return s
}

// callTool calls a registered tool via the MCPServer's HandleMessage.
// Returns the parsed CallToolResult or an error.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()

	reqJSON, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	respJSON := s.HandleMessage(context.Background(), reqJSON)

	respBytes, marshalErr := json.Marshal(respJSON)
	if marshalErr != nil {
		t.Fatalf("marshal response: %v", marshalErr)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if resp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	var result mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}

	return &result, nil
}

// resultText extracts the first text content from a CallToolResult.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

// resultJSON decodes the tool's text frame into a generic map.
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	return out
}
