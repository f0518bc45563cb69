// Package coord exposes the nerve center over MCP: the job board, the
// lock registry, the live notepad, session finalize, and the semantic
// index. Each tool returns a single text-content frame.
package coord

import (
	"log"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/axis-sh/axis/internal/nerve"
	"github.com/axis-sh/axis/internal/rag"
)

// SubscriptionStatus is what get_subscription_status reports.
type SubscriptionStatus struct {
	Valid      bool      `json:"valid"`
	Plan       string    `json:"plan"`
	ValidUntil time.Time `json:"valid_until,omitempty"`
}

// RegisterOption configures optional dependencies for tool registration.
type RegisterOption func(*registerOpts)

type registerOpts struct {
	search       *rag.Service
	subscription func() SubscriptionStatus
}

// WithSearch enables search_codebase, search_docs, and index_file.
func WithSearch(s *rag.Service) RegisterOption {
	return func(o *registerOpts) { o.search = s }
}

// WithSubscription sets the provider behind get_subscription_status.
func WithSubscription(f func() SubscriptionStatus) RegisterOption {
	return func(o *registerOpts) { o.subscription = f }
}

// Register registers the coordination tools and the live context
// resource with the mcp-go server.
func Register(s *server.MCPServer, c *nerve.Center, logger *log.Logger, opts ...RegisterOption) {
	var o registerOpts
	for _, opt := range opts {
		opt(&o)
	}
	if o.subscription == nil {
		o.subscription = func() SubscriptionStatus {
			return SubscriptionStatus{Valid: true, Plan: "local"}
		}
	}

	// Job board tools (4)
	registerPostJob(s, c, logger)
	registerClaimNextJob(s, c, logger)
	registerCompleteJob(s, c, logger)
	registerCancelJob(s, c, logger)

	// Lock registry tools (2)
	registerProposeFileAccess(s, c, logger)
	registerForceUnlock(s, c, logger)

	// Notepad and context tools (3)
	registerUpdateSharedContext(s, c, logger)
	registerReadContext(s, c, logger)
	registerUpdateContext(s, c, logger)

	// Session tools (2)
	registerFinalizeSession(s, c, logger)
	registerGetProjectSoul(s, c, logger)

	// Semantic index tools (3)
	registerSearchCodebase(s, o.search, logger)
	registerSearchDocs(s, o.search, logger)
	registerIndexFile(s, c, o.search, logger)

	// Account tools (2)
	registerGetSubscriptionStatus(s, o.subscription, logger)
	registerGetUsageStats(s, c, logger)

	// Live context resource (mcp://context/current)
	registerResources(s, c, logger)
}
