package coord

import (
	"context"
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/axis-sh/axis/internal/nerve"
	"github.com/axis-sh/axis/internal/rag"
)

const searchLimit = 5

// registerSearchCodebase registers the search_codebase tool. When no
// semantic index is configured the tool still registers and explains
// what is missing: agents probe tools, and a clear answer beats a
// missing one.
func registerSearchCodebase(s *server.MCPServer, svc *rag.Service, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("search_codebase",
			mcp.WithDescription("Semantic search over indexed source code. Index files first with index_file."),
			mcp.WithString("query", mcp.Required(), mcp.Description("What you are looking for, in natural language")),
		),
		searchHandler(svc, rag.KindCode, logger),
	)
}

// registerSearchDocs registers the search_docs tool.
func registerSearchDocs(s *server.MCPServer, svc *rag.Service, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("search_docs",
			mcp.WithDescription("Semantic search over indexed documentation."),
			mcp.WithString("query", mcp.Required(), mcp.Description("What you are looking for, in natural language")),
		),
		searchHandler(svc, rag.KindDocs, logger),
	)
}

func searchHandler(svc *rag.Service, kind string, logger *log.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := requireString(req.GetArguments(), "query")
		if err != nil {
			return nil, err
		}
		if svc == nil {
			return nil, fmt.Errorf("semantic search is not configured (set OPENAI_API_KEY)")
		}
		matches, err := svc.Search(ctx, query, kind, searchLimit)
		if err != nil {
			return nil, err
		}
		logger.Printf("search %s: %q (%d matches)", kind, query, len(matches))
		return jsonResult(map[string]any{"results": matches})
	}
}

// registerIndexFile registers the index_file tool.
func registerIndexFile(s *server.MCPServer, c *nerve.Center, svc *rag.Service, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("index_file",
			mcp.WithDescription("Add or refresh a file in the semantic index. Unchanged files are skipped by checksum."),
			mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to index, inside the workspace")),
			mcp.WithString("kind", mcp.Description("Index partition (default: code)"), mcp.Enum("code", "docs")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			filePath, err := requireString(args, "file_path")
			if err != nil {
				return nil, err
			}
			if svc == nil {
				return nil, fmt.Errorf("semantic search is not configured (set OPENAI_API_KEY)")
			}
			filePath, err = c.Policy().ValidatePath(filePath)
			if err != nil {
				return nil, err
			}
			kind := optionalString(args, "kind")
			if kind == "" {
				kind = rag.KindCode
			}
			chunks, err := svc.IndexFile(ctx, filePath, kind)
			if err != nil {
				return nil, err
			}
			if chunks == 0 {
				return mcp.NewToolResultText(fmt.Sprintf("%s is unchanged, skipped.", filePath)), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Indexed %s (%d chunks).", filePath, chunks)), nil
		},
	)
}
