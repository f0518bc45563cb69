// Package nerve implements the coordination facade: the single entry
// point every external surface calls. All state-touching operations
// serialise through one process-local mutex; cross-process atomicity is
// the store's job (conditional claims, one-statement lock upserts).
package nerve

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/axis-sh/axis/internal/domain"
	"github.com/axis-sh/axis/internal/fault"
	"github.com/axis-sh/axis/internal/policy"
	"github.com/axis-sh/axis/internal/store"
)

// Triggerable is something poked after every state write (e.g. the
// change notifier), so connected clients can refresh the live context.
type Triggerable interface {
	Trigger()
}

// Center is the nerve center for one project.
type Center struct {
	store     store.Store
	policy    *policy.Policy
	logger    *log.Logger
	projectID string
	project   string

	mu       sync.Mutex
	notifier Triggerable // optional; set via SetNotifier after construction
}

// New resolves the project and returns its nerve center. The store is
// chosen by the caller once; the center never branches on mode.
func New(ctx context.Context, st store.Store, pol *policy.Policy, projectName string, logger *log.Logger) (*Center, error) {
	id, err := st.ResolveProject(ctx, projectName, pol.OwnerID())
	if err != nil {
		return nil, err
	}
	return &Center{store: st, policy: pol, logger: logger, projectID: id, project: projectName}, nil
}

// SetNotifier attaches a Triggerable poked after every state write.
func (c *Center) SetNotifier(n Triggerable) {
	c.mu.Lock()
	c.notifier = n
	c.mu.Unlock()
}

// Policy returns the center's policy.
func (c *Center) Policy() *policy.Policy { return c.policy }

// ProjectName returns the project this center coordinates.
func (c *Center) ProjectName() string { return c.project }

// ProjectID returns the resolved opaque project id.
func (c *Center) ProjectID() string { return c.projectID }

// opCtx bounds a store-touching operation by the configured timeout.
func (c *Center) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.policy.StoreTimeout())
}

// touch signals watchers that state changed. Never fails the operation.
func (c *Center) touch() {
	_ = TouchSignal(c.policy.SignalFilePath())
	if c.notifier != nil {
		c.notifier.Trigger()
	}
}

// note appends a line to the live notepad. A failed append is logged
// but does not fail the operation: when hosted, the shared store copy
// is the source of truth and the next sync catches up.
func (c *Center) note(ctx context.Context, line string) {
	if err := c.store.AppendNotepad(ctx, c.projectID, line); err != nil {
		c.logger.Printf("Warning: notepad append failed: %v", err)
	}
}

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newCompletionKey returns an 8-character uppercase-alphanumeric token
// from a cryptographic PRNG.
func newCompletionKey() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("completion key: %w", err)
	}
	out := make([]byte, 8)
	for i, b := range buf {
		out[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(out), nil
}

// PostJobResult is the response to PostJob.
type PostJobResult struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"` // POSTED
	CompletionKey string `json:"completion_key"`
}

// PostJob puts a job on the board in todo. The completion key is
// generated here, returned once, and immutable afterwards.
func (c *Center) PostJob(ctx context.Context, agentID, title, description string, prio domain.Priority, deps []string) (*PostJobResult, error) {
	if title == "" {
		return nil, fault.New(fault.BadRequest, "title is required")
	}
	if prio == "" {
		prio = domain.PriorityMedium
	}
	if !prio.Valid() {
		return nil, fault.New(fault.BadRequest, "unknown priority %q", prio)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if len(deps) > 0 {
		jobs, err := c.store.ListJobs(ctx, c.projectID)
		if err != nil {
			return nil, err
		}
		known := make(map[string]bool, len(jobs))
		for _, j := range jobs {
			known[j.ID] = true
		}
		for _, dep := range deps {
			if !known[dep] {
				return nil, fault.New(fault.BadRequest, "dependency job %s not found", dep)
			}
		}
	}

	key, err := newCompletionKey()
	if err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "post job")
	}
	now := time.Now()
	job := &domain.Job{
		ID:            uuid.NewString(),
		ProjectID:     c.projectID,
		Title:         title,
		Description:   description,
		Priority:      prio,
		Status:        domain.StatusTodo,
		Dependencies:  deps,
		CompletionKey: key,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.store.InsertJob(ctx, job); err != nil {
		return nil, err
	}
	c.note(ctx, fmt.Sprintf("\n[JOB POSTED] %s (%s) by %s — id %s", title, prio, agentID, job.ID))
	c.touch()
	c.logger.Printf("post_job: %q (%s) by %s", title, prio, agentID)
	return &PostJobResult{JobID: job.ID, Status: "POSTED", CompletionKey: job.CompletionKey}, nil
}

// ClaimResult is the response to ClaimNextJob.
type ClaimResult struct {
	Status string      `json:"status"` // CLAIMED or NO_JOBS_AVAILABLE
	Job    *domain.Job `json:"job,omitempty"`
}

// ClaimNextJob hands the caller the best eligible job: highest priority
// first, oldest first within a priority, dependencies all done. The
// claim itself is a conditional store update, so the loop simply moves
// to the next candidate when a concurrent claimant wins the race.
func (c *Center) ClaimNextJob(ctx context.Context, agentID string) (*ClaimResult, error) {
	if agentID == "" {
		return nil, fault.New(fault.BadRequest, "agent_id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	jobs, err := c.store.ListJobs(ctx, c.projectID)
	if err != nil {
		return nil, err
	}
	candidates := eligibleJobs(jobs)

	for i := range candidates {
		job := candidates[i]
		ok, err := c.store.ClaimJob(ctx, c.projectID, job.ID, agentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // lost the race, next candidate
		}
		job.Status = domain.StatusInProgress
		job.AssignedTo = agentID
		job.CompletionKey = "" // returned only at post time
		c.note(ctx, fmt.Sprintf("\n[JOB CLAIMED] %s by %s", job.Title, agentID))
		c.touch()
		c.logger.Printf("claim_next_job: %s claimed %s", agentID, job.ID)
		return &ClaimResult{Status: "CLAIMED", Job: &job}, nil
	}
	return &ClaimResult{Status: "NO_JOBS_AVAILABLE"}, nil
}

// eligibleJobs filters todo jobs whose direct dependencies are all done
// and sorts them by (priority rank, created_at). Only direct
// dependencies gate: chains are the poster's responsibility.
func eligibleJobs(jobs []domain.Job) []domain.Job {
	done := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if j.Status == domain.StatusDone {
			done[j.ID] = true
		}
	}
	var out []domain.Job
	for _, j := range jobs {
		if j.Status != domain.StatusTodo {
			continue
		}
		blocked := false
		for _, dep := range j.Dependencies {
			if !done[dep] {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Priority.Rank() != out[b].Priority.Rank() {
			return out[a].Priority.Rank() < out[b].Priority.Rank()
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// CompleteResult is the response to CompleteJob.
type CompleteResult struct {
	Status string `json:"status"` // COMPLETED
	JobID  string `json:"job_id"`
}

// CompleteJob moves a job to done. Authorisation is deliberately dual:
// the assignee completes by identity, anyone else needs the post-time
// completion key — that is how a second agent closes out work a crashed
// first agent left behind. Locks are NOT released here; unlock stays
// explicit (finalize clears everything).
func (c *Center) CompleteJob(ctx context.Context, agentID, jobID, outcome, completionKey string) (*CompleteResult, error) {
	if agentID == "" || jobID == "" {
		return nil, fault.New(fault.BadRequest, "agent_id and job_id are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	job, err := c.findJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fault.New(fault.Conflict, "job %s is already %s", jobID, job.Status)
	}
	byIdentity := job.AssignedTo != "" && job.AssignedTo == agentID
	byKey := completionKey != "" && completionKey == job.CompletionKey
	if !byIdentity && !byKey {
		return nil, fault.New(fault.Unauthorized,
			"completion requires the assignee's identity or the job's completion key")
	}

	upd := domain.SetStatus(domain.StatusDone)
	upd.Outcome = &outcome
	if !byIdentity {
		// Assignee is set iff status is in_progress or done: a key-based
		// completion of an unclaimed job records the completer.
		agent := agentID
		upd.AssignedTo = &agent
	}
	if _, err := c.store.UpdateJob(ctx, c.projectID, jobID, upd); err != nil {
		return nil, err
	}
	c.note(ctx, fmt.Sprintf("\n[JOB DONE] %s by %s: %s", job.Title, agentID, outcome))
	c.touch()
	c.logger.Printf("complete_job: %s completed %s", agentID, jobID)
	return &CompleteResult{Status: "COMPLETED", JobID: jobID}, nil
}

// CancelResult is the response to CancelJob.
type CancelResult struct {
	Status string `json:"status"` // CANCELLED
	JobID  string `json:"job_id"`
}

// CancelJob marks a job cancelled with a reason. Any project member may
// cancel; there is no assignee check.
func (c *Center) CancelJob(ctx context.Context, jobID, reason string) (*CancelResult, error) {
	if jobID == "" {
		return nil, fault.New(fault.BadRequest, "job_id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	job, err := c.findJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, fault.New(fault.Conflict, "job %s is already %s", jobID, job.Status)
	}
	upd := domain.SetStatus(domain.StatusCancelled)
	upd.CancelReason = &reason
	empty := ""
	upd.AssignedTo = &empty // cancelled jobs carry no assignee
	if _, err := c.store.UpdateJob(ctx, c.projectID, jobID, upd); err != nil {
		return nil, err
	}
	c.note(ctx, fmt.Sprintf("\n[JOB CANCELLED] %s: %s", job.Title, reason))
	c.touch()
	c.logger.Printf("cancel_job: %s (%s)", jobID, reason)
	return &CancelResult{Status: "CANCELLED", JobID: jobID}, nil
}

// ApplyJobUpdate applies a field update on behalf of an authenticated
// API caller. Moving a job to in_progress routes through the
// conditional claim so two remote agents cannot both win; losing comes
// back as Conflict. All other fields update directly, no dual-auth:
// the HTTP layer has already authenticated the caller.
func (c *Center) ApplyJobUpdate(ctx context.Context, jobID, agentID string, upd domain.JobUpdate) (*domain.Job, error) {
	if jobID == "" {
		return nil, fault.New(fault.BadRequest, "job_id is required")
	}
	if upd.Empty() {
		return nil, fault.New(fault.BadRequest, "no fields to update")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if upd.Status != nil && *upd.Status == domain.StatusInProgress {
		claimant := agentID
		if upd.AssignedTo != nil {
			claimant = *upd.AssignedTo
		}
		ok, err := c.store.ClaimJob(ctx, c.projectID, jobID, claimant)
		if err != nil {
			return nil, err
		}
		if !ok {
			if _, err := c.findJob(ctx, jobID); err != nil {
				return nil, err
			}
			return nil, fault.New(fault.Conflict, "job %s is no longer claimable", jobID)
		}
		upd.Status = nil
		upd.AssignedTo = nil
		if upd.Empty() {
			c.touch()
			return c.findJob(ctx, jobID)
		}
	}
	job, err := c.store.UpdateJob(ctx, c.projectID, jobID, upd)
	if err != nil {
		return nil, err
	}
	c.touch()
	return job, nil
}

// GetJob returns one job by id.
func (c *Center) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.findJob(ctx, jobID)
}

func (c *Center) findJob(ctx context.Context, jobID string) (*domain.Job, error) {
	jobs, err := c.store.ListJobs(ctx, c.projectID)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].ID == jobID {
			return &jobs[i], nil
		}
	}
	return nil, fault.New(fault.NotFound, "job %s not found", jobID)
}

// AccessResult is the response to ProposeFileAccess.
type AccessResult struct {
	Status      string       `json:"status"` // GRANTED or REQUIRES_ORCHESTRATION
	CurrentLock *domain.Lock `json:"current_lock,omitempty"`
}

// ProposeFileAccess asks for the lock on a file path. A live lock held
// by someone else is never queued behind — the caller gets the
// incumbent's metadata and is expected to work on something else.
func (c *Center) ProposeFileAccess(ctx context.Context, agentID, filePath, intent, userPrompt string) (*AccessResult, error) {
	if agentID == "" || filePath == "" {
		return nil, fault.New(fault.BadRequest, "agent_id and file_path are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	ttl := c.policy.LockTTL()
	if _, err := c.store.ReclaimStaleLocks(ctx, c.projectID, ttl); err != nil {
		return nil, err
	}
	lock := &domain.Lock{
		ProjectID:  c.projectID,
		FilePath:   filePath,
		AgentID:    agentID,
		Intent:     intent,
		UserPrompt: userPrompt,
	}
	granted, incumbent, err := c.store.TryAcquireLock(ctx, lock, ttl)
	if err != nil {
		return nil, err
	}
	if !granted && incumbent == nil {
		// The incumbent vanished between the rejected write and the
		// follow-up read (force unlock or reclaim in another process).
		// The path is free now, so one retry settles it.
		granted, incumbent, err = c.store.TryAcquireLock(ctx, lock, ttl)
		if err != nil {
			return nil, err
		}
	}
	if !granted {
		holder := "unknown"
		if incumbent != nil {
			holder = incumbent.AgentID
		}
		c.logger.Printf("propose_file_access: %s denied on %s (held by %s)", agentID, filePath, holder)
		return &AccessResult{Status: "REQUIRES_ORCHESTRATION", CurrentLock: incumbent}, nil
	}
	c.note(ctx, fmt.Sprintf("\n[LOCK] %s locked %s (%s)", agentID, filePath, intent))
	c.touch()
	c.logger.Printf("propose_file_access: %s granted %s", agentID, filePath)
	return &AccessResult{Status: "GRANTED"}, nil
}

// UnlockResult is the response to ForceUnlock.
type UnlockResult struct {
	Status string `json:"status"` // UNLOCKED
}

// ForceUnlock removes any current lock on the path, no owner check.
// The registry is mechanism; "only force stale locks" is agent policy.
func (c *Center) ForceUnlock(ctx context.Context, filePath, reason string) (*UnlockResult, error) {
	if filePath == "" {
		return nil, fault.New(fault.BadRequest, "file_path is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.store.DeleteLock(ctx, c.projectID, filePath); err != nil {
		return nil, err
	}
	c.note(ctx, fmt.Sprintf("\n[UNLOCK] %s force-unlocked: %s", filePath, reason))
	c.touch()
	c.logger.Printf("force_unlock: %s (%s)", filePath, reason)
	return &UnlockResult{Status: "UNLOCKED"}, nil
}

// Unlock releases the caller's own lock on the path. Owned by someone
// else is a conflict; absent is a no-op.
func (c *Center) Unlock(ctx context.Context, agentID, filePath string) error {
	if filePath == "" {
		return fault.New(fault.BadRequest, "file_path is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	locks, err := c.store.ListLocks(ctx, c.projectID)
	if err != nil {
		return err
	}
	for i := range locks {
		if locks[i].FilePath != filePath {
			continue
		}
		if agentID != "" && locks[i].AgentID != agentID && locks[i].Live(time.Now(), c.policy.LockTTL()) {
			return fault.New(fault.Conflict, "lock on %s is held by %s", filePath, locks[i].AgentID)
		}
	}
	if err := c.store.DeleteLock(ctx, c.projectID, filePath); err != nil {
		return err
	}
	c.touch()
	return nil
}

// UpdateSharedContext appends a free-form agent note to the notepad.
func (c *Center) UpdateSharedContext(ctx context.Context, agentID, text string) error {
	if agentID == "" || text == "" {
		return fault.New(fault.BadRequest, "agent_id and text are required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.store.AppendNotepad(ctx, c.projectID, fmt.Sprintf("\n- [%s] %s", agentID, text)); err != nil {
		return err
	}
	c.touch()
	return nil
}

// SyncNotepad replaces the live notepad with a full client snapshot.
// Full rewrites are last-writer-wins; that is the notepad's contract.
func (c *Center) SyncNotepad(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.store.ResetNotepad(ctx, c.projectID, text); err != nil {
		return err
	}
	c.touch()
	return nil
}

// ReadNotepad returns the live notepad text.
func (c *Center) ReadNotepad(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.store.ReadNotepad(ctx, c.projectID)
}

// ListJobs returns the project's jobs, oldest first.
func (c *Center) ListJobs(ctx context.Context) ([]domain.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.store.ListJobs(ctx, c.projectID)
}

// ListLocks returns the project's live locks after lazy reclamation.
func (c *Center) ListLocks(ctx context.Context) ([]domain.Lock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	if _, err := c.store.ReclaimStaleLocks(ctx, c.projectID, c.policy.LockTTL()); err != nil {
		return nil, err
	}
	return c.store.ListLocks(ctx, c.projectID)
}

// UsageStats summarises board and notepad activity for reporting tools.
type UsageStats struct {
	Jobs        map[domain.Status]int `json:"jobs"`
	Locks       int                   `json:"locks"`
	NotepadSize int                   `json:"notepad_bytes"`
}

// Usage returns current usage counters.
func (c *Center) Usage(ctx context.Context) (*UsageStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	jobs, err := c.store.ListJobs(ctx, c.projectID)
	if err != nil {
		return nil, err
	}
	locks, err := c.store.ListLocks(ctx, c.projectID)
	if err != nil {
		return nil, err
	}
	notepad, err := c.store.ReadNotepad(ctx, c.projectID)
	if err != nil {
		return nil, err
	}
	stats := &UsageStats{Jobs: make(map[domain.Status]int), Locks: len(locks), NotepadSize: len(notepad)}
	for _, j := range jobs {
		stats.Jobs[j.Status]++
	}
	return stats, nil
}

// truncate shortens s to max runes for summaries.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// sessionStartMarker is the notepad content right after finalize.
func sessionStartMarker(now time.Time) string {
	return "Session Start: " + now.UTC().Format(time.RFC3339) + "\n"
}
