package httpapi

import (
	"net/http"

	"github.com/axis-sh/axis/internal/domain"
	"github.com/axis-sh/axis/internal/fault"
)

// lockActionRequest is the POST /v1/locks body: action lock or unlock.
type lockActionRequest struct {
	Action      string `json:"action"`
	ProjectName string `json:"projectName"`
	FilePath    string `json:"filePath"`
	AgentID     string `json:"agentId"`
	Intent      string `json:"intent"`
	UserPrompt  string `json:"userPrompt"`
}

func (h *Handler) handleLocks(w http.ResponseWriter, r *http.Request, p *Principal) {
	switch r.Method {
	case http.MethodGet:
		c, err := h.center(r, r.URL.Query().Get("projectName"), p)
		if err != nil {
			h.writeError(w, err)
			return
		}
		locks, err := c.ListLocks(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		if locks == nil {
			locks = []domain.Lock{}
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"locks": locks})

	case http.MethodPost:
		var req lockActionRequest
		if err := decode(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
		c, err := h.center(r, req.ProjectName, p)
		if err != nil {
			h.writeError(w, err)
			return
		}
		switch req.Action {
		case "lock":
			res, err := c.ProposeFileAccess(r.Context(), req.AgentID, req.FilePath, req.Intent, req.UserPrompt)
			if err != nil {
				h.writeError(w, err)
				return
			}
			// The wire contract is GRANTED or DENIED; denial stays a 200
			// so the incumbent's metadata survives the round trip.
			status := "GRANTED"
			if res.Status != "GRANTED" {
				status = "DENIED"
			}
			h.writeJSON(w, http.StatusOK, map[string]any{
				"status":       status,
				"current_lock": res.CurrentLock,
			})

		case "unlock":
			if req.FilePath == "" {
				h.writeError(w, fault.New(fault.BadRequest, "filePath is required"))
				return
			}
			if err := c.Unlock(r.Context(), req.AgentID, req.FilePath); err != nil {
				h.writeError(w, err)
				return
			}
			h.writeJSON(w, http.StatusOK, map[string]any{"success": true})

		default:
			h.writeError(w, fault.New(fault.BadRequest, "unknown action %q", req.Action))
		}

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
