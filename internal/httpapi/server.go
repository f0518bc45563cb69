// Package httpapi serves the REST surface of the nerve center: job
// board, lock registry, session sync and finalize, semantic search, and
// credential verification. The browser UI and hosted-mode agent clients
// both speak this API; it translates between HTTP and the facade, and
// maps the shared error taxonomy onto status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/axis-sh/axis/internal/fault"
	"github.com/axis-sh/axis/internal/nerve"
	"github.com/axis-sh/axis/internal/policy"
	"github.com/axis-sh/axis/internal/rag"
)

// maxBodyBytes bounds request bodies; anything larger is a BadRequest.
const maxBodyBytes = 1 << 20

// Handler serves the /v1 API over a nerve hub.
type Handler struct {
	hub        *nerve.Hub
	policy     *policy.Policy
	logger     *log.Logger
	search     *rag.Service
	production bool
	version    string
}

// HandlerOption configures the handler.
type HandlerOption func(*Handler)

// WithSearch enables /v1/embed and /v1/search.
func WithSearch(s *rag.Service) HandlerOption {
	return func(h *Handler) { h.search = s }
}

// WithProduction switches error bodies to stable category strings
// instead of detailed messages.
func WithProduction(on bool) HandlerOption {
	return func(h *Handler) { h.production = on }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) HandlerOption {
	return func(h *Handler) { h.version = v }
}

// NewHandler creates the API handler.
func NewHandler(hub *nerve.Hub, pol *policy.Policy, logger *log.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{hub: hub, policy: pol, logger: logger, version: "dev"}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes attaches all endpoints to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/jobs", h.withAuth(h.handleJobs))
	mux.HandleFunc("/v1/locks", h.withAuth(h.handleLocks))
	mux.HandleFunc("/v1/sessions/sync", h.withAuth(h.handleSessionSync))
	mux.HandleFunc("/v1/sessions/finalize", h.withAuth(h.handleSessionFinalize))
	mux.HandleFunc("/v1/embed", h.withAuth(h.handleEmbed))
	mux.HandleFunc("/v1/search", h.withAuth(h.handleSearch))
	mux.HandleFunc("/v1/verify", h.withAuth(h.handleVerify))
	mux.HandleFunc("/health", h.handleHealth)
}

// center resolves the request's project to its nerve center. An empty
// projectName falls back to the configured default project.
func (h *Handler) center(r *http.Request, projectName string, p *Principal) (*nerve.Center, error) {
	if projectName == "" {
		projectName = h.policy.ProjectName()
	}
	return h.hub.Center(r.Context(), projectName, p.Owner)
}

// decode reads a bounded JSON body into dst.
func decode(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fault.New(fault.BadRequest, "request body over %d bytes", maxBodyBytes)
		}
		return fault.Wrap(fault.BadRequest, err, "decode request body")
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Printf("httpapi: encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto status codes. Production
// bodies carry only the stable category string; no stack traces, no
// internal paths.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	status := kind.HTTPStatus()
	msg := err.Error()
	if h.production {
		msg = string(kind)
	}
	if status >= 500 {
		h.logger.Printf("httpapi: %v", err)
	}
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","version":%q}`+"\n", h.version)
}
