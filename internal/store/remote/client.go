// Package remote implements the store interface over the shared-context
// HTTP API. Agent processes in hosted mode use it instead of a direct
// database connection; the server behind the API owns the relational
// store and performs the conditional updates.
//
// Every call is bounded by the store timeout and retried on 5xx only,
// three attempts with 1s/2s/4s backoff. 4xx responses are never
// retried. The live notepad is cached locally for reads; writes push
// the full text through the sessions/sync endpoint (last writer wins on
// full rewrites, which is the notepad's documented contract).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/axis-sh/axis/internal/domain"
	"github.com/axis-sh/axis/internal/fault"
)

// Client implements store.Store against a shared-context API endpoint.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	timeout time.Duration

	mu      sync.Mutex
	project string // projectName carried on every request
	notepad string // local read cache of the live notepad
}

// Option configures the client.
type Option func(*Client)

// WithTimeout overrides the per-call timeout (default 15s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient swaps the underlying http.Client (used in tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a remote store client for the given API base URL and
// bearer secret.
func New(baseURL, secret string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fault.New(fault.NotConfigured, "shared context API URL is required")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		timeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// Close implements store.Store.
func (c *Client) Close() error { return nil }

var backoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// do performs one API call with retry. out may be nil when the response
// body is irrelevant.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fault.Wrap(fault.BadRequest, err, "encode request")
		}
	}

	var lastErr error
	for attempt := 0; attempt < len(backoff); attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff[attempt-1]):
			case <-ctx.Done():
				return fault.Wrap(fault.StoreError, ctx.Err(), "remote call cancelled")
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, respBody, err := c.once(callCtx, method, path, payload)
		cancel()
		if err != nil {
			lastErr = fault.Wrap(fault.StoreError, err, "%s %s", method, path)
			continue // network errors retry like 5xx
		}
		if status >= 500 {
			lastErr = fault.New(fault.StoreError, "%s %s: status %d", method, path, status)
			continue
		}
		if status >= 400 {
			return apiError(status, respBody)
		}
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fault.Wrap(fault.StoreError, err, "decode %s response", path)
			}
		}
		return nil
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// apiError maps an HTTP status to the shared error taxonomy, carrying
// the server's error string through.
func apiError(status int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	msg := e.Error
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	switch status {
	case 400:
		return fault.New(fault.BadRequest, "%s", msg)
	case 401:
		return fault.New(fault.Unauthorized, "%s", msg)
	case 404:
		return fault.New(fault.NotFound, "%s", msg)
	case 409:
		return fault.New(fault.Conflict, "%s", msg)
	case 429:
		return fault.New(fault.RateLimited, "%s", msg)
	case 503:
		return fault.New(fault.NotConfigured, "%s", msg)
	}
	return fault.New(fault.StoreError, "%s", msg)
}

// ResolveProject implements store.Store. The API resolves projects by
// name on every request, so the client only records the name.
func (c *Client) ResolveProject(_ context.Context, name, _ string) (string, error) {
	if name == "" {
		return "", fault.New(fault.BadRequest, "project name is required")
	}
	c.mu.Lock()
	c.project = name
	c.mu.Unlock()
	return "remote-" + name, nil
}

func (c *Client) projectName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.project
}

// InsertJob implements store.Store. The server assigns the job id and
// completion key; both are copied back onto job.
func (c *Client) InsertJob(ctx context.Context, job *domain.Job) error {
	var resp struct {
		Job domain.Job `json:"job"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/jobs", map[string]any{
		"action":       "post",
		"projectName":  c.projectName(),
		"agentId":      job.AssignedTo,
		"title":        job.Title,
		"description":  job.Description,
		"priority":     job.Priority,
		"dependencies": job.Dependencies,
	}, &resp)
	if err != nil {
		return err
	}
	job.ID = resp.Job.ID
	job.CompletionKey = resp.Job.CompletionKey
	job.CreatedAt = resp.Job.CreatedAt
	job.UpdatedAt = resp.Job.UpdatedAt
	job.AssignedTo = resp.Job.AssignedTo
	return nil
}

// ClaimJob implements store.Store via a conditional status update; the
// server rejects with 409 when another claimant won.
func (c *Client) ClaimJob(ctx context.Context, _, jobID, agentID string) (bool, error) {
	err := c.do(ctx, http.MethodPost, "/v1/jobs", map[string]any{
		"action":      "update",
		"projectName": c.projectName(),
		"jobId":       jobID,
		"status":      domain.StatusInProgress,
		"assigned_to": agentID,
	}, nil)
	if fault.Is(err, fault.Conflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateJob implements store.Store.
func (c *Client) UpdateJob(ctx context.Context, _, jobID string, upd domain.JobUpdate) (*domain.Job, error) {
	body := map[string]any{
		"action":      "update",
		"projectName": c.projectName(),
		"jobId":       jobID,
	}
	if upd.Status != nil {
		body["status"] = *upd.Status
	}
	if upd.Priority != nil {
		body["priority"] = *upd.Priority
	}
	if upd.AssignedTo != nil {
		body["assigned_to"] = *upd.AssignedTo
	}
	if upd.CancelReason != nil {
		body["cancel_reason"] = *upd.CancelReason
	}
	if upd.Outcome != nil {
		body["outcome"] = *upd.Outcome
	}
	var resp struct {
		Job domain.Job `json:"job"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", body, &resp); err != nil {
		return nil, err
	}
	return &resp.Job, nil
}

// ListJobs implements store.Store.
func (c *Client) ListJobs(ctx context.Context, _ string) ([]domain.Job, error) {
	var resp struct {
		Jobs []domain.Job `json:"jobs"`
	}
	path := "/v1/jobs?projectName=" + url.QueryEscape(c.projectName())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// TryAcquireLock implements store.Store. Denial comes back as 409 with
// the incumbent's metadata in the body.
func (c *Client) TryAcquireLock(ctx context.Context, lock *domain.Lock, _ time.Duration) (bool, *domain.Lock, error) {
	var resp struct {
		Status      string       `json:"status"`
		CurrentLock *domain.Lock `json:"current_lock"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/locks", map[string]any{
		"action":      "lock",
		"projectName": c.projectName(),
		"filePath":    lock.FilePath,
		"agentId":     lock.AgentID,
		"intent":      lock.Intent,
		"userPrompt":  lock.UserPrompt,
	}, &resp)
	if err != nil {
		return false, nil, err
	}
	if resp.Status == "DENIED" {
		return false, resp.CurrentLock, nil
	}
	now := time.Now()
	lock.CreatedAt = now
	lock.UpdatedAt = now
	return true, nil, nil
}

// ListLocks implements store.Store.
func (c *Client) ListLocks(ctx context.Context, _ string) ([]domain.Lock, error) {
	var resp struct {
		Locks []domain.Lock `json:"locks"`
	}
	path := "/v1/locks?projectName=" + url.QueryEscape(c.projectName())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locks, nil
}

// DeleteLock implements store.Store.
func (c *Client) DeleteLock(ctx context.Context, _, filePath string) error {
	return c.do(ctx, http.MethodPost, "/v1/locks", map[string]any{
		"action":      "unlock",
		"projectName": c.projectName(),
		"filePath":    filePath,
	}, nil)
}

// ReclaimStaleLocks implements store.Store. The server reclaims lazily
// on its own read and write paths, so the client has nothing to do.
func (c *Client) ReclaimStaleLocks(context.Context, string, time.Duration) (int, error) {
	return 0, nil
}

// ReadNotepad implements store.Store from the local cache. The shared
// store is the source of truth; the cache trails it by design.
func (c *Client) ReadNotepad(context.Context, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notepad, nil
}

// AppendNotepad implements store.Store: append to the cache, then push
// the full text through sessions/sync.
func (c *Client) AppendNotepad(ctx context.Context, _, text string) error {
	c.mu.Lock()
	c.notepad += text
	full := c.notepad
	project := c.project
	c.mu.Unlock()
	return c.do(ctx, http.MethodPost, "/v1/sessions/sync", map[string]any{
		"title":       "Live Session",
		"context":     full,
		"projectName": project,
	}, nil)
}

// ResetNotepad implements store.Store. The hosted finalize resets the
// shared copy transactionally; only the cache needs clearing here.
func (c *Client) ResetNotepad(_ context.Context, _, text string) error {
	c.mu.Lock()
	c.notepad = text
	c.mu.Unlock()
	return nil
}

// ArchiveSession implements store.Store through sessions/finalize. The
// server archives, resets the notepad, clears locks, and purges
// terminal jobs in one pass.
func (c *Client) ArchiveSession(ctx context.Context, projectID, title, summary, full string) (*domain.SessionArchive, error) {
	var resp struct {
		Success     bool   `json:"success"`
		ArchivePath string `json:"archivePath"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/sessions/finalize", map[string]any{
		"projectName": c.projectName(),
		"content":     full,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &domain.SessionArchive{
		ProjectID: projectID,
		Title:     title,
		Summary:   summary,
		Content:   full,
		Path:      resp.ArchivePath,
		CreatedAt: time.Now(),
	}, nil
}

// DeleteProjectLocks implements store.Store. Covered by the server-side
// finalize; nothing to do from the client.
func (c *Client) DeleteProjectLocks(context.Context, string) error { return nil }

// PurgeTerminalJobs implements store.Store. Covered by the server-side
// finalize; nothing to do from the client.
func (c *Client) PurgeTerminalJobs(context.Context, string) (int, error) { return 0, nil }
