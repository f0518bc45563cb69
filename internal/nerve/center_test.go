package nerve

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/axis-sh/axis/internal/domain"
	"github.com/axis-sh/axis/internal/fault"
	"github.com/axis-sh/axis/internal/policy"
	"github.com/axis-sh/axis/internal/store"
	"github.com/axis-sh/axis/internal/store/local"
)

// newTestCenter returns a center over a local store in a temp dir.
func newTestCenter(t *testing.T) (*Center, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := local.New(filepath.Join(dir, "state.json"), filepath.Join(dir, "history"))
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	cfg := policy.DefaultConfig()
	cfg.WorkspaceRoot = dir
	pol := policy.New(cfg)
	logger := log.New(io.Discard, "", 0)
	c, err := New(context.Background(), st, pol, "test-project", logger)
	if err != nil {
		t.Fatalf("new center: %v", err)
	}
	return c, dir
}

func mustPost(t *testing.T, c *Center, title string, prio domain.Priority, deps ...string) *PostJobResult {
	t.Helper()
	res, err := c.PostJob(context.Background(), "poster", title, "desc", prio, deps)
	if err != nil {
		t.Fatalf("post %q: %v", title, err)
	}
	return res
}

func TestPostJobReturnsCompletionKey(t *testing.T) {
	c, _ := newTestCenter(t)
	res := mustPost(t, c, "Title", domain.PriorityMedium)

	if res.Status != "POSTED" {
		t.Errorf("status = %q, want POSTED", res.Status)
	}
	if len(res.CompletionKey) != 8 {
		t.Fatalf("completion key %q length = %d, want 8", res.CompletionKey, len(res.CompletionKey))
	}
	for _, r := range res.CompletionKey {
		if !strings.ContainsRune(keyAlphabet, r) {
			t.Errorf("completion key %q contains %q outside A-Z0-9", res.CompletionKey, r)
		}
	}
}

func TestPostJobDefaultsToMediumPriority(t *testing.T) {
	c, _ := newTestCenter(t)
	res := mustPost(t, c, "Untagged", "")

	job, err := c.GetJob(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Priority != domain.PriorityMedium {
		t.Errorf("priority = %q, want medium", job.Priority)
	}
	if job.Status != domain.StatusTodo {
		t.Errorf("status = %q, want todo", job.Status)
	}
}

func TestPostJobRejectsUnknownPriority(t *testing.T) {
	c, _ := newTestCenter(t)
	_, err := c.PostJob(context.Background(), "a", "Title", "", domain.Priority("urgent"), nil)
	if !fault.Is(err, fault.BadRequest) {
		t.Errorf("err = %v, want BadRequest", err)
	}
}

func TestPostJobRejectsUnknownDependency(t *testing.T) {
	c, _ := newTestCenter(t)
	_, err := c.PostJob(context.Background(), "a", "Title", "", domain.PriorityLow, []string{"no-such-job"})
	if !fault.Is(err, fault.BadRequest) {
		t.Errorf("err = %v, want BadRequest", err)
	}
}

// Scenario: J1 medium, J2 high, J3 high posted in that order. Claims
// must come back J2 (highest priority, oldest), J3, then J1.
func TestClaimPriorityAndAgeTieBreak(t *testing.T) {
	c, _ := newTestCenter(t)
	j1 := mustPost(t, c, "J1", domain.PriorityMedium)
	j2 := mustPost(t, c, "J2", domain.PriorityHigh)
	j3 := mustPost(t, c, "J3", domain.PriorityHigh)

	want := []string{j2.JobID, j3.JobID, j1.JobID}
	for i, agent := range []string{"A", "B", "C"} {
		res, err := c.ClaimNextJob(context.Background(), agent)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if res.Status != "CLAIMED" {
			t.Fatalf("claim %d status = %q, want CLAIMED", i, res.Status)
		}
		if res.Job.ID != want[i] {
			t.Errorf("claim %d = job %s, want %s", i, res.Job.ID, want[i])
		}
		if res.Job.AssignedTo != agent {
			t.Errorf("claim %d assigned to %q, want %q", i, res.Job.AssignedTo, agent)
		}
		if res.Job.CompletionKey != "" {
			t.Errorf("claim %d leaked completion key", i)
		}
	}

	res, err := c.ClaimNextJob(context.Background(), "D")
	if err != nil {
		t.Fatalf("final claim: %v", err)
	}
	if res.Status != "NO_JOBS_AVAILABLE" {
		t.Errorf("empty board claim = %q, want NO_JOBS_AVAILABLE", res.Status)
	}
}

func TestClaimSkipsBlockedDependencies(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	dep := mustPost(t, c, "Dep", domain.PriorityLow)
	mustPost(t, c, "Gated", domain.PriorityCritical, dep.JobID)

	// The critical job is blocked, so the low dep comes back first.
	res, err := c.ClaimNextJob(ctx, "A")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.Job == nil || res.Job.ID != dep.JobID {
		t.Fatalf("claimed %+v, want dep job", res.Job)
	}

	// In-progress dependency still blocks.
	blocked, err := c.ClaimNextJob(ctx, "B")
	if err != nil {
		t.Fatalf("claim blocked: %v", err)
	}
	if blocked.Status != "NO_JOBS_AVAILABLE" {
		t.Errorf("blocked claim = %q, want NO_JOBS_AVAILABLE", blocked.Status)
	}

	if _, err := c.CompleteJob(ctx, "A", dep.JobID, "done", ""); err != nil {
		t.Fatalf("complete dep: %v", err)
	}
	unblocked, err := c.ClaimNextJob(ctx, "B")
	if err != nil {
		t.Fatalf("claim unblocked: %v", err)
	}
	if unblocked.Status != "CLAIMED" {
		t.Errorf("after dep done, claim = %q, want CLAIMED", unblocked.Status)
	}
}

func TestCancelledDependencyBlocks(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	dep := mustPost(t, c, "Dep", domain.PriorityLow)
	mustPost(t, c, "Gated", domain.PriorityHigh, dep.JobID)

	if _, err := c.CancelJob(ctx, dep.JobID, "obsolete"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	res, err := c.ClaimNextJob(ctx, "A")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if res.Status != "NO_JOBS_AVAILABLE" {
		t.Errorf("claim with cancelled dep = %q, want NO_JOBS_AVAILABLE", res.Status)
	}
}

// Scenario: the assignee crashes; a second agent completes with the
// post-time key. A wrong key afterwards must not touch the job.
func TestCompleteByKey(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	posted := mustPost(t, c, "Title", domain.PriorityMedium)

	claimed, err := c.ClaimNextJob(ctx, "A")
	if err != nil || claimed.Status != "CLAIMED" {
		t.Fatalf("claim: %v %+v", err, claimed)
	}

	res, err := c.CompleteJob(ctx, "B", posted.JobID, "done by B", posted.CompletionKey)
	if err != nil {
		t.Fatalf("complete by key: %v", err)
	}
	if res.Status != "COMPLETED" {
		t.Errorf("status = %q, want COMPLETED", res.Status)
	}
	job, err := c.GetJob(ctx, posted.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != domain.StatusDone {
		t.Errorf("job status = %q, want done", job.Status)
	}

	if _, err := c.CompleteJob(ctx, "C", posted.JobID, "x", "WRONGKEY"); err == nil {
		t.Error("completing a done job with a wrong key should fail")
	}
	after, _ := c.GetJob(ctx, posted.JobID)
	if after.Status != domain.StatusDone || after.Outcome != "done by B" {
		t.Errorf("failed completion mutated the job: %+v", after)
	}
}

func TestCompleteWithoutKeyByNonAssignee(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	posted := mustPost(t, c, "Title", domain.PriorityMedium)
	if _, err := c.ClaimNextJob(ctx, "A"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	_, err := c.CompleteJob(ctx, "B", posted.JobID, "done by B", "")
	if !fault.Is(err, fault.Unauthorized) {
		t.Errorf("err = %v, want Unauthorized", err)
	}
	job, _ := c.GetJob(ctx, posted.JobID)
	if job.Status != domain.StatusInProgress {
		t.Errorf("job status = %q, want in_progress (unchanged)", job.Status)
	}
}

func TestCompleteByAssignee(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	posted := mustPost(t, c, "Title", domain.PriorityMedium)
	if _, err := c.ClaimNextJob(ctx, "A"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := c.CompleteJob(ctx, "A", posted.JobID, "shipped", ""); err != nil {
		t.Fatalf("complete by assignee: %v", err)
	}
	job, _ := c.GetJob(ctx, posted.JobID)
	if job.Status != domain.StatusDone || job.Outcome != "shipped" {
		t.Errorf("job = %+v, want done with outcome", job)
	}
}

func TestCompleteUnclaimedJobByKeyRecordsCompleter(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	posted := mustPost(t, c, "Title", domain.PriorityMedium)

	if _, err := c.CompleteJob(ctx, "B", posted.JobID, "done", posted.CompletionKey); err != nil {
		t.Fatalf("complete: %v", err)
	}
	job, _ := c.GetJob(ctx, posted.JobID)
	if job.AssignedTo != "B" {
		t.Errorf("assignee = %q, want B (done jobs carry their completer)", job.AssignedTo)
	}
}

func TestCancelJob(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	posted := mustPost(t, c, "Title", domain.PriorityMedium)

	res, err := c.CancelJob(ctx, posted.JobID, "requirements changed")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Status != "CANCELLED" {
		t.Errorf("status = %q, want CANCELLED", res.Status)
	}
	job, _ := c.GetJob(ctx, posted.JobID)
	if job.Status != domain.StatusCancelled || job.CancelReason != "requirements changed" {
		t.Errorf("job = %+v, want cancelled with reason", job)
	}

	if _, err := c.CancelJob(ctx, posted.JobID, "again"); !fault.Is(err, fault.Conflict) {
		t.Errorf("cancelling a terminal job: err = %v, want Conflict", err)
	}
}

// Scenario: agent A holds src/x.ts; agent B's proposal must be denied
// with A's metadata and must not change the lock.
func TestProposeFileAccessConflict(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()

	granted, err := c.ProposeFileAccess(ctx, "A", "src/x.ts", "edit", "prompt-a")
	if err != nil {
		t.Fatalf("A propose: %v", err)
	}
	if granted.Status != "GRANTED" {
		t.Fatalf("A status = %q, want GRANTED", granted.Status)
	}

	denied, err := c.ProposeFileAccess(ctx, "B", "src/x.ts", "edit", "prompt-b")
	if err != nil {
		t.Fatalf("B propose: %v", err)
	}
	if denied.Status != "REQUIRES_ORCHESTRATION" {
		t.Fatalf("B status = %q, want REQUIRES_ORCHESTRATION", denied.Status)
	}
	if denied.CurrentLock == nil || denied.CurrentLock.AgentID != "A" || denied.CurrentLock.Intent != "edit" {
		t.Errorf("incumbent = %+v, want A's lock", denied.CurrentLock)
	}

	locks, err := c.ListLocks(ctx)
	if err != nil {
		t.Fatalf("list locks: %v", err)
	}
	if len(locks) != 1 || locks[0].AgentID != "A" {
		t.Errorf("locks = %+v, want exactly A's", locks)
	}
}

func TestProposeFileAccessOwnerRefresh(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()

	if _, err := c.ProposeFileAccess(ctx, "A", "src/x.ts", "edit", "p1"); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := c.ProposeFileAccess(ctx, "A", "src/x.ts", "refactor", "p2")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if res.Status != "GRANTED" {
		t.Errorf("owner refresh = %q, want GRANTED", res.Status)
	}
	locks, _ := c.ListLocks(ctx)
	if len(locks) != 1 || locks[0].Intent != "refactor" {
		t.Errorf("locks = %+v, want refreshed intent", locks)
	}
}

// Scenario: a lock not refreshed within the TTL is dead; any agent's
// next proposal takes the path over.
func TestStaleLockReclaimed(t *testing.T) {
	c, dir := newTestCenter(t)
	ctx := context.Background()

	if _, err := c.ProposeFileAccess(ctx, "A", "f", "edit", "p"); err != nil {
		t.Fatalf("A propose: %v", err)
	}

	// Age A's lock past the TTL by editing the state file directly,
	// then reopen the store as a fresh process would.
	statePath := filepath.Join(dir, "state.json")
	backdateLock(t, statePath, "f", 31*time.Minute)

	st, err := local.New(statePath, filepath.Join(dir, "history"))
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	c2, err := New(ctx, st, c.Policy(), "test-project", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("reopen center: %v", err)
	}

	res, err := c2.ProposeFileAccess(ctx, "B", "f", "edit", "p")
	if err != nil {
		t.Fatalf("B propose: %v", err)
	}
	if res.Status != "GRANTED" {
		t.Fatalf("B status = %q, want GRANTED over stale lock", res.Status)
	}
	locks, _ := c2.ListLocks(ctx)
	if len(locks) != 1 || locks[0].AgentID != "B" {
		t.Errorf("locks = %+v, want B's lock only", locks)
	}
}

// backdateLock rewrites a lock's updated_at in the local state file to
// age minutes ago.
func backdateLock(t *testing.T, statePath, filePath string, age time.Duration) {
	t.Helper()
	data, err := os.ReadFile(statePath)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	state := domain.NewProjectState()
	if err := json.Unmarshal(data, state); err != nil {
		t.Fatalf("parse state: %v", err)
	}
	lock, ok := state.Locks[filePath]
	if !ok {
		t.Fatalf("no lock on %s in state file", filePath)
	}
	lock.UpdatedAt = time.Now().Add(-age)
	out, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	if err := os.WriteFile(statePath, out, 0o644); err != nil {
		t.Fatalf("write state: %v", err)
	}
}

// raceLockStore wraps the real store and makes the first lock
// proposals report a denial with no incumbent, the shape a shared
// backend returns when another process deletes the lock row between
// the rejected write and the follow-up read.
type raceLockStore struct {
	store.Store
	blanks int
	calls  int
}

func (s *raceLockStore) TryAcquireLock(ctx context.Context, lock *domain.Lock, ttl time.Duration) (bool, *domain.Lock, error) {
	s.calls++
	if s.blanks > 0 {
		s.blanks--
		return false, nil, nil
	}
	return s.Store.TryAcquireLock(ctx, lock, ttl)
}

func newRaceCenter(t *testing.T, blanks int) (*Center, *raceLockStore) {
	t.Helper()
	dir := t.TempDir()
	st, err := local.New(filepath.Join(dir, "state.json"), filepath.Join(dir, "history"))
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	rs := &raceLockStore{Store: st, blanks: blanks}
	cfg := policy.DefaultConfig()
	cfg.WorkspaceRoot = dir
	c, err := New(context.Background(), rs, policy.New(cfg), "test-project", log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new center: %v", err)
	}
	return c, rs
}

// Scenario: the denial's incumbent vanished before it could be read
// back. The path is free, so a single retry wins it.
func TestProposeFileAccessRetriesVanishedIncumbent(t *testing.T) {
	c, rs := newRaceCenter(t, 1)

	res, err := c.ProposeFileAccess(context.Background(), "B", "src/x.ts", "edit", "p")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if res.Status != "GRANTED" {
		t.Errorf("status = %q, want GRANTED after retry", res.Status)
	}
	if rs.calls != 2 {
		t.Errorf("acquire calls = %d, want 2", rs.calls)
	}
}

// Scenario: the retry loses too. The caller still gets a denial, just
// without incumbent metadata, never a panic.
func TestProposeFileAccessDenialWithoutIncumbent(t *testing.T) {
	c, _ := newRaceCenter(t, 2)

	res, err := c.ProposeFileAccess(context.Background(), "B", "src/x.ts", "edit", "p")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if res.Status != "REQUIRES_ORCHESTRATION" {
		t.Errorf("status = %q, want REQUIRES_ORCHESTRATION", res.Status)
	}
	if res.CurrentLock != nil {
		t.Errorf("current_lock = %+v, want none", res.CurrentLock)
	}
}

func TestForceUnlock(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	if _, err := c.ProposeFileAccess(ctx, "A", "src/x.ts", "edit", "p"); err != nil {
		t.Fatalf("propose: %v", err)
	}

	res, err := c.ForceUnlock(ctx, "src/x.ts", "agent crashed")
	if err != nil {
		t.Fatalf("force unlock: %v", err)
	}
	if res.Status != "UNLOCKED" {
		t.Errorf("status = %q, want UNLOCKED", res.Status)
	}
	locks, _ := c.ListLocks(ctx)
	if len(locks) != 0 {
		t.Errorf("locks = %+v, want none", locks)
	}
}

func TestUnlockChecksOwner(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	if _, err := c.ProposeFileAccess(ctx, "A", "src/x.ts", "edit", "p"); err != nil {
		t.Fatalf("propose: %v", err)
	}

	if err := c.Unlock(ctx, "B", "src/x.ts"); !fault.Is(err, fault.Conflict) {
		t.Errorf("B unlocking A's live lock: err = %v, want Conflict", err)
	}
	if err := c.Unlock(ctx, "A", "src/x.ts"); err != nil {
		t.Errorf("A unlocking own lock: %v", err)
	}
	// Absent lock is a no-op.
	if err := c.Unlock(ctx, "A", "src/x.ts"); err != nil {
		t.Errorf("unlocking absent lock: %v", err)
	}
}

func TestNotepadGrowsMonotonically(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()

	prev := 0
	for _, note := range []string{"first", "second", "third"} {
		if err := c.UpdateSharedContext(ctx, "A", note); err != nil {
			t.Fatalf("update context: %v", err)
		}
		text, err := c.ReadNotepad(ctx)
		if err != nil {
			t.Fatalf("read notepad: %v", err)
		}
		if len(text) <= prev {
			t.Errorf("notepad shrank: %d -> %d", prev, len(text))
		}
		prev = len(text)
		if !strings.Contains(text, "- [A] "+note) {
			t.Errorf("notepad missing %q entry:\n%s", note, text)
		}
	}
}

// Scenario: after finalize no locks remain, terminal jobs are purged,
// the archive exists, and the notepad is the session-start marker.
func TestFinalizeSession(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()

	done := mustPost(t, c, "Done job", domain.PriorityHigh)
	mustPost(t, c, "Todo job", domain.PriorityLow)
	if _, err := c.ClaimNextJob(ctx, "A"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := c.CompleteJob(ctx, "A", done.JobID, "ok", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := c.ProposeFileAccess(ctx, "A", "a.go", "edit", "p"); err != nil {
		t.Fatalf("lock a: %v", err)
	}
	if _, err := c.ProposeFileAccess(ctx, "B", "b.go", "edit", "p"); err != nil {
		t.Fatalf("lock b: %v", err)
	}

	res, err := c.FinalizeSession(ctx, "")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if res.Status != "SESSION_FINALIZED" {
		t.Errorf("status = %q, want SESSION_FINALIZED", res.Status)
	}
	if res.ArchivePath == "" {
		t.Error("archive path is empty")
	}
	if _, err := os.Stat(res.ArchivePath); err != nil {
		t.Errorf("archive file: %v", err)
	}
	if res.JobsPurged != 1 {
		t.Errorf("jobs purged = %d, want 1", res.JobsPurged)
	}

	locks, _ := c.ListLocks(ctx)
	if len(locks) != 0 {
		t.Errorf("locks after finalize = %+v, want none", locks)
	}
	jobs, _ := c.ListJobs(ctx)
	if len(jobs) != 1 || jobs[0].Title != "Todo job" {
		t.Errorf("jobs after finalize = %+v, want the todo survivor", jobs)
	}
	notepad, _ := c.ReadNotepad(ctx)
	if !strings.HasPrefix(notepad, "Session Start: ") {
		t.Errorf("notepad = %q, want session-start marker", notepad)
	}
}

// Scenario: each finalize appends one line to activity.md in the
// instructions directory, naming the archive it produced.
func TestFinalizeSessionWritesActivityLog(t *testing.T) {
	c, dir := newTestCenter(t)
	ctx := context.Background()
	if err := c.UpdateSharedContext(ctx, "A", "did things"); err != nil {
		t.Fatalf("update context: %v", err)
	}

	res, err := c.FinalizeSession(ctx, "wrapped up")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".axis", "instructions", "activity.md"))
	if err != nil {
		t.Fatalf("activity log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "wrapped up") {
		t.Errorf("activity log missing summary:\n%s", text)
	}
	if !strings.Contains(text, res.ArchivePath) {
		t.Errorf("activity log missing archive path %q:\n%s", res.ArchivePath, text)
	}
	if _, err := os.Stat(filepath.Join(dir, "history", "activity.md")); !os.IsNotExist(err) {
		t.Errorf("history/activity.md: err = %v, want not-exist", err)
	}
}

func TestCoreContextSections(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	mustPost(t, c, "Visible job", domain.PriorityHigh)
	if _, err := c.ProposeFileAccess(ctx, "A", "src/x.ts", "edit", "p"); err != nil {
		t.Fatalf("propose: %v", err)
	}

	doc, err := c.CoreContext(ctx)
	if err != nil {
		t.Fatalf("core context: %v", err)
	}
	for _, want := range []string{"## Job Board", "## File Locks", "## Live Notepad", "Visible job", "src/x.ts"} {
		if !strings.Contains(doc, want) {
			t.Errorf("context missing %q:\n%s", want, doc)
		}
	}
}

func TestCoreContextHidesTerminalJobs(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	posted := mustPost(t, c, "Short-lived", domain.PriorityHigh)
	if _, err := c.CancelJob(ctx, posted.JobID, "nope"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	doc, err := c.CoreContext(ctx)
	if err != nil {
		t.Fatalf("core context: %v", err)
	}
	if !strings.Contains(doc, "No open jobs.") {
		t.Errorf("context should list no open jobs:\n%s", doc)
	}
}

func TestProjectSoul(t *testing.T) {
	c, dir := newTestCenter(t)

	soul := c.ProjectSoul()
	if !strings.Contains(soul, "No project instructions found") {
		t.Errorf("empty workspace soul = %q, want placeholder", soul)
	}

	instrDir := filepath.Join(dir, ".axis", "instructions")
	if err := os.MkdirAll(instrDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(instrDir, "context.md"), []byte("# Context\nAlpha."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(instrDir, "conventions.md"), []byte("# Conventions\nTabs."), 0o644); err != nil {
		t.Fatal(err)
	}

	soul = c.ProjectSoul()
	if !strings.Contains(soul, "Alpha.") || !strings.Contains(soul, "Tabs.") {
		t.Errorf("soul = %q, want both documents", soul)
	}
}

func TestUsageCounters(t *testing.T) {
	c, _ := newTestCenter(t)
	ctx := context.Background()
	mustPost(t, c, "One", domain.PriorityLow)
	mustPost(t, c, "Two", domain.PriorityHigh)
	if _, err := c.ClaimNextJob(ctx, "A"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := c.ProposeFileAccess(ctx, "A", "x", "edit", "p"); err != nil {
		t.Fatalf("propose: %v", err)
	}

	stats, err := c.Usage(ctx)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if stats.Jobs[domain.StatusTodo] != 1 || stats.Jobs[domain.StatusInProgress] != 1 {
		t.Errorf("job counts = %v", stats.Jobs)
	}
	if stats.Locks != 1 {
		t.Errorf("locks = %d, want 1", stats.Locks)
	}
	if stats.NotepadSize == 0 {
		t.Error("notepad size = 0, want > 0 after activity")
	}
}

func TestCompletionKeyUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		key, err := newCompletionKey()
		if err != nil {
			t.Fatalf("key %d: %v", i, err)
		}
		if seen[key] {
			t.Fatalf("duplicate key %q after %d draws", key, i)
		}
		seen[key] = true
	}
}
