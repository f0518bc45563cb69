package coord

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/axis-sh/axis/internal/nerve"
)

// registerResources adds the live context resource. Clients subscribe
// to it and get resources/updated pushes from the notifier whenever
// shared state changes, instead of polling read_context.
func registerResources(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddResource(
		mcp.NewResource(
			nerve.ContextResourceURI,
			"Live Coordination Context",
			mcp.WithResourceDescription("The rendered live context: open jobs, active file locks, and the shared notepad. Updated on every state change."),
			mcp.WithMIMEType("text/markdown"),
		),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			logger.Printf("Resource read: %s", req.Params.URI)
			doc, err := c.CoreContext(ctx)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      req.Params.URI,
					MIMEType: "text/markdown",
					Text:     doc,
				},
			}, nil
		},
	)
}
