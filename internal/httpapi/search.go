package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/axis-sh/axis/internal/fault"
	"github.com/axis-sh/axis/internal/rag"
)

const searchLimit = 5

// handleEmbed indexes a batch of content items into the semantic index
// so /v1/search can find them later.
func (h *Handler) handleEmbed(w http.ResponseWriter, r *http.Request, p *Principal) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.search == nil {
		h.writeError(w, fault.New(fault.NotConfigured, "semantic search is not configured"))
		return
	}
	var req struct {
		Items []struct {
			Content  string         `json:"content"`
			Metadata map[string]any `json:"metadata"`
		} `json:"items"`
		ProjectName string `json:"projectName"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if len(req.Items) == 0 {
		h.writeError(w, fault.New(fault.BadRequest, "items is required"))
		return
	}

	type embedResult struct {
		Path   string `json:"path"`
		Chunks int    `json:"chunks"`
	}
	results := make([]embedResult, 0, len(req.Items))
	for _, item := range req.Items {
		path, _ := item.Metadata["path"].(string)
		if path == "" {
			path = "embed/" + uuid.NewString()
		}
		kind, _ := item.Metadata["kind"].(string)
		if kind != rag.KindCode {
			kind = rag.KindDocs
		}
		chunks, err := h.search.IndexText(r.Context(), path, kind, item.Content)
		if err != nil {
			h.writeError(w, fault.Wrap(fault.StoreError, err, "index %s", path))
			return
		}
		results = append(results, embedResult{Path: path, Chunks: chunks})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleSearch answers a semantic query over everything indexed.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request, p *Principal) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.search == nil {
		h.writeError(w, fault.New(fault.NotConfigured, "semantic search is not configured"))
		return
	}
	var req struct {
		Query       string `json:"query"`
		ProjectName string `json:"projectName"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Query == "" {
		h.writeError(w, fault.New(fault.BadRequest, "query is required"))
		return
	}
	matches, err := h.search.Search(r.Context(), req.Query, "", searchLimit)
	if err != nil {
		h.writeError(w, fault.Wrap(fault.StoreError, err, "search"))
		return
	}
	if matches == nil {
		matches = []rag.Match{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": matches})
}
