package coord

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/axis-sh/axis/internal/nerve"
)

// registerFinalizeSession registers the finalize_session tool.
func registerFinalizeSession(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("finalize_session",
			mcp.WithDescription("End the session: archive the notepad, clear all file locks, purge done and cancelled jobs, and reset the notepad. Jobs still todo or in_progress survive into the next session."),
			mcp.WithString("summary", mcp.Description("Optional session summary for the archive (default: first 500 chars of the notepad)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			res, err := c.FinalizeSession(ctx, optionalString(req.GetArguments(), "summary"))
			if err != nil {
				return nil, err
			}
			return jsonResult(res)
		},
	)
}

// registerGetProjectSoul registers the get_project_soul tool.
func registerGetProjectSoul(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("get_project_soul",
			mcp.WithDescription("Read the project's durable instructions (context.md and conventions.md). Unlike the notepad these persist across sessions; read them before your first edit."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText(c.ProjectSoul()), nil
		},
	)
}
