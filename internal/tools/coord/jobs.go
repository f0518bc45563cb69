package coord

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/axis-sh/axis/internal/domain"
	"github.com/axis-sh/axis/internal/nerve"
)

// registerPostJob registers the post_job tool.
func registerPostJob(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("post_job",
			mcp.WithDescription("Post a job to the shared board. Returns the job id and a completion key: hand the key to another agent and they can complete the job on your behalf if you go away."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Your agent identifier")),
			mcp.WithString("title", mcp.Required(), mcp.Description("Short job title")),
			mcp.WithString("description", mcp.Description("What needs doing, in enough detail for another agent")),
			mcp.WithString("priority", mcp.Description("Job priority (default: medium)"), mcp.Enum("low", "medium", "high", "critical")),
			mcp.WithArray("dependencies", mcp.Description("Job ids that must be done before this one is claimable")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			agentID, err := requireString(args, "agent_id")
			if err != nil {
				return nil, err
			}
			title, err := requireString(args, "title")
			if err != nil {
				return nil, err
			}
			deps, err := stringSlice(args, "dependencies")
			if err != nil {
				return nil, err
			}
			res, err := c.PostJob(ctx, agentID, title,
				optionalString(args, "description"),
				domain.Priority(optionalString(args, "priority")), deps)
			if err != nil {
				return nil, err
			}
			return jsonResult(res)
		},
	)
}

// registerClaimNextJob registers the claim_next_job tool.
func registerClaimNextJob(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("claim_next_job",
			mcp.WithDescription("Atomically claim the best available job: highest priority first, oldest first within a priority. Jobs with unfinished dependencies are skipped. Returns NO_JOBS_AVAILABLE when the board is empty for you."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Your agent identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			agentID, err := requireString(args, "agent_id")
			if err != nil {
				return nil, err
			}
			res, err := c.ClaimNextJob(ctx, agentID)
			if err != nil {
				return nil, err
			}
			return jsonResult(res)
		},
	)
}

// registerCompleteJob registers the complete_job tool.
func registerCompleteJob(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("complete_job",
			mcp.WithDescription("Mark a job done. Allowed for the assignee, or for anyone holding the job's completion key. Completing a job does NOT release your file locks — unlock explicitly or let finalize_session clear them."),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Your agent identifier")),
			mcp.WithString("job_id", mcp.Required(), mcp.Description("Job to complete")),
			mcp.WithString("outcome", mcp.Description("What was done")),
			mcp.WithString("completion_key", mcp.Description("The post-time key (required unless you are the assignee)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			agentID, err := requireString(args, "agent_id")
			if err != nil {
				return nil, err
			}
			jobID, err := requireString(args, "job_id")
			if err != nil {
				return nil, err
			}
			res, err := c.CompleteJob(ctx, agentID, jobID,
				optionalString(args, "outcome"), optionalString(args, "completion_key"))
			if err != nil {
				return nil, err
			}
			return jsonResult(res)
		},
	)
}

// registerCancelJob registers the cancel_job tool.
func registerCancelJob(s *server.MCPServer, c *nerve.Center, logger *log.Logger) {
	s.AddTool(
		mcp.NewTool("cancel_job",
			mcp.WithDescription("Cancel a job with a reason. Any agent on the project may cancel; cancelled jobs block their dependents until purged by finalize."),
			mcp.WithString("job_id", mcp.Required(), mcp.Description("Job to cancel")),
			mcp.WithString("reason", mcp.Required(), mcp.Description("Why the job is no longer needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			jobID, err := requireString(args, "job_id")
			if err != nil {
				return nil, err
			}
			reason, err := requireString(args, "reason")
			if err != nil {
				return nil, err
			}
			res, err := c.CancelJob(ctx, jobID, reason)
			if err != nil {
				return nil, err
			}
			return jsonResult(res)
		},
	)
}
