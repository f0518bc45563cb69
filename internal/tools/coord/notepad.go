package coord

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/axis-sh/axis/internal/nerve"
)

// registerUpdateSharedContext registers the update_shared_context tool.
func registerUpdateSharedContext(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("update_shared_context",
			mcp.WithDescription("Append a note to the live notepad all agents read. Use it for decisions, findings, and anything your peers need before their next move."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Your agent identifier")),
			mcp.WithString("text", mcp.Required(), mcp.Description("The note to append")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			agentID, err := requireString(args, "agent_id")
			if err != nil {
				return nil, err
			}
			text, err := requireString(args, "text")
			if err != nil {
				return nil, err
			}
			if err := c.UpdateSharedContext(ctx, agentID, text); err != nil {
				return nil, err
			}
			return mcp.NewToolResultText("Context updated."), nil
		},
	)
}

// registerReadContext registers the read_context tool.
func registerReadContext(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("read_context",
			mcp.WithDescription("Read the live coordination document: open jobs, active file locks, and the shared notepad. Call this at session start and whenever you are between jobs."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			doc, err := c.CoreContext(ctx)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(doc), nil
		},
	)
}

// registerUpdateContext registers the update_context tool, which writes
// the durable project instructions (unlike update_shared_context, which
// appends to the per-session notepad).
func registerUpdateContext(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("update_context",
			mcp.WithDescription("Rewrite a durable project instructions document (context.md or conventions.md). These survive finalize; use update_shared_context for session-scoped notes."),
			mcp.WithString("name", mcp.Description("Which document to write (default: context.md)"), mcp.Enum("context.md", "conventions.md")),
			mcp.WithString("content", mcp.Required(), mcp.Description("Full replacement content")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			content, err := requireString(args, "content")
			if err != nil {
				return nil, err
			}
			name := optionalString(args, "name")
			if err := c.WriteInstructions(name, content); err != nil {
				return nil, err
			}
			logger.Printf("update_context: wrote %s", name)
			return mcp.NewToolResultText("Instructions updated."), nil
		},
	)
}
