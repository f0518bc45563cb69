package httpapi

import (
	"net/http"

	"github.com/axis-sh/axis/internal/domain"
	"github.com/axis-sh/axis/internal/fault"
)

// jobActionRequest is the POST /v1/jobs body. One endpoint, three
// actions: post, claim, update.
type jobActionRequest struct {
	Action       string   `json:"action"`
	ProjectName  string   `json:"projectName"`
	AgentID      string   `json:"agentId"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Priority     string   `json:"priority"`
	Dependencies []string `json:"dependencies"`
	JobID        string   `json:"jobId"`
	Status       string   `json:"status"`
	AssignedTo   *string  `json:"assigned_to"`
	CancelReason *string  `json:"cancel_reason"`
	Outcome      *string  `json:"outcome"`
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request, p *Principal) {
	switch r.Method {
	case http.MethodGet:
		c, err := h.center(r, r.URL.Query().Get("projectName"), p)
		if err != nil {
			h.writeError(w, err)
			return
		}
		jobs, err := c.ListJobs(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		if jobs == nil {
			jobs = []domain.Job{}
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})

	case http.MethodPost:
		var req jobActionRequest
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
		case "post":
			agent := req.AgentID
			if agent == "" {
				agent = p.Owner
			}
			res, err := c.PostJob(r.Context(), agent, req.Title, req.Description,
				domain.Priority(req.Priority), req.Dependencies)
			if err != nil {
				h.writeError(w, err)
				return
			}
			job, err := c.GetJob(r.Context(), res.JobID)
			if err != nil {
				h.writeError(w, err)
				return
			}
			h.writeJSON(w, http.StatusOK, map[string]any{"job": job})

		case "claim":
			res, err := c.ClaimNextJob(r.Context(), req.AgentID)
			if err != nil {
				h.writeError(w, err)
				return
			}
			h.writeJSON(w, http.StatusOK, res)

		case "update":
			upd := domain.JobUpdate{
				AssignedTo:   req.AssignedTo,
				CancelReason: req.CancelReason,
				Outcome:      req.Outcome,
			}
			if req.Status != "" {
				st := domain.Status(req.Status)
				if !st.Valid() {
					h.writeError(w, fault.New(fault.BadRequest, "unknown status %q", req.Status))
					return
				}
				upd.Status = &st
			}
			if req.Priority != "" {
				prio := domain.Priority(req.Priority)
				if !prio.Valid() {
					h.writeError(w, fault.New(fault.BadRequest, "unknown priority %q", req.Priority))
					return
				}
				upd.Priority = &prio
			}
			job, err := c.ApplyJobUpdate(r.Context(), req.JobID, req.AgentID, upd)
			if err != nil {
				h.writeError(w, err)
				return
			}
			h.writeJSON(w, http.StatusOK, map[string]any{"job": job})

		default:
			h.writeError(w, fault.New(fault.BadRequest, "unknown action %q", req.Action))
		}

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
