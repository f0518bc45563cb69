package nerve

import (
	"context"
	"log"
	"sync"

	"github.com/axis-sh/axis/internal/policy"
	"github.com/axis-sh/axis/internal/store"
)

// Hub hands out per-project centers over one shared store. The HTTP API
// serves many projects from a single process; each project gets exactly
// one center so its operations serialize correctly.
type Hub struct {
	store  store.Store
	policy *policy.Policy
	logger *log.Logger

	mu      sync.Mutex
	centers map[string]*Center // keyed by project name + owner
}

// NewHub creates a hub over the shared store.
func NewHub(st store.Store, pol *policy.Policy, logger *log.Logger) *Hub {
	return &Hub{store: st, policy: pol, logger: logger, centers: make(map[string]*Center)}
}

// Center returns the center for a project, creating it on first use.
func (h *Hub) Center(ctx context.Context, projectName, owner string) (*Center, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := owner + "/" + projectName
	if c, ok := h.centers[key]; ok {
		return c, nil
	}
	id, err := h.store.ResolveProject(ctx, projectName, owner)
	if err != nil {
		return nil, err
	}
	c := &Center{store: h.store, policy: h.policy, logger: h.logger, projectID: id, project: projectName}
	h.centers[key] = c
	return c, nil
}
