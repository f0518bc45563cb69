package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/axis-sh/axis/internal/fault"
)

// handleSessionSync replaces the project's live notepad with a full
// client snapshot. Last writer wins; the notepad's contract for full
// rewrites.
func (h *Handler) handleSessionSync(w http.ResponseWriter, r *http.Request, p *Principal) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Title       string         `json:"title"`
		Context     string         `json:"context"`
		Metadata    map[string]any `json:"metadata"`
		ProjectName string         `json:"projectName"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Context == "" {
		h.writeError(w, fault.New(fault.BadRequest, "context is required"))
		return
	}
	c, err := h.center(r, req.ProjectName, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := c.SyncNotepad(r.Context(), req.Context); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": uuid.NewString(),
		"projectId": c.ProjectID(),
	})
}

// handleSessionFinalize archives the session and resets the project's
// working state. A content field, when present, becomes the final
// notepad text before the archive is cut.
func (h *Handler) handleSessionFinalize(w http.ResponseWriter, r *http.Request, p *Principal) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ProjectName string `json:"projectName"`
		Content     string `json:"content"`
	}
	if err := decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	c, err := h.center(r, req.ProjectName, p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.Content != "" {
		if err := c.SyncNotepad(r.Context(), req.Content); err != nil {
			h.writeError(w, err)
			return
		}
	}
	res, err := c.FinalizeSession(r.Context(), "")
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"archivePath": res.ArchivePath,
	})
}

// handleVerify reports the caller's credential status and plan.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request, p *Principal) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{"valid": true, "plan": p.Plan}
	if !p.ValidUntil.IsZero() {
		resp["validUntil"] = p.ValidUntil
	}
	h.writeJSON(w, http.StatusOK, resp)
}
