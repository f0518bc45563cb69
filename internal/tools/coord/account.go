package coord

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/axis-sh/axis/internal/nerve"
)

// registerGetSubscriptionStatus registers the get_subscription_status tool.
func registerGetSubscriptionStatus(s *server.MCPServer, status func() SubscriptionStatus, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("get_subscription_status",
			mcp.WithDescription("Check the current plan and whether hosted features are available."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return jsonResult(status())
		},
	)
}

// registerGetUsageStats registers the get_usage_stats tool.
func registerGetUsageStats(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("get_usage_stats",
			mcp.WithDescription("Report current board activity: jobs by status, live locks, and notepad size."),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			stats, err := c.Usage(ctx)
			if err != nil {
				return nil, err
			}
			return jsonResult(stats)
		},
	)
}
