package coord

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/axis-sh/axis/internal/nerve"
)

// registerProposeFileAccess registers the propose_file_access tool.
func registerProposeFileAccess(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("propose_file_access",
			mcp.WithDescription("Ask for the lock on a file path before editing it. GRANTED means the path is yours (locks auto-expire after the TTL; re-propose to refresh). REQUIRES_ORCHESTRATION means another agent holds it — do not wait, work on something else."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Your agent identifier")),
			mcp.WithString("file_path", mcp.Required(), mcp.Description("Path you want to edit")),
			mcp.WithString("intent", mcp.Description("What you plan to do with the file")),
			mcp.WithString("user_prompt", mcp.Description("The user request driving this edit")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			agentID, err := requireString(args, "agent_id")
			if err != nil {
				return nil, err
			}
			filePath, err := requireString(args, "file_path")
			if err != nil {
				return nil, err
			}
			res, err := c.ProposeFileAccess(ctx, agentID, filePath,
				optionalString(args, "intent"), optionalString(args, "user_prompt"))
			if err != nil {
				return nil, err
			}
			return jsonResult(res)
		},
	)
}

// registerForceUnlock registers the force_unlock tool.
func registerForceUnlock(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("force_unlock",
			mcp.WithDescription("Remove the lock on a file path regardless of owner. Convention: only force locks that look stale (crashed agent, long-idle lock) — the registry does not check."),
			mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to unlock")),
			mcp.WithString("reason", mcp.Required(), mcp.Description("Why the lock is being removed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			filePath, err := requireString(args, "file_path")
			if err != nil {
				return nil, err
			}
			reason, err := requireString(args, "reason")
			if err != nil {
				return nil, err
			}
			res, err := c.ForceUnlock(ctx, filePath, reason)
			if err != nil {
				return nil, err
			}
			return jsonResult(res)
		},
	)
}
