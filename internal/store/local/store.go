// Package local implements the single-process file-backed store. State
// is an in-memory ProjectState flushed in full to one JSON file after
// every mutation; session archives are Markdown files under history/.
// Cross-process safety is out of scope here — the facade's mutex is the
// only writer.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/axis-sh/axis/internal/domain"
	"github.com/axis-sh/axis/internal/fault"
)

// Store implements store.Store for local mode. It scopes exactly one
// project — the on-disk layout `{locks, jobs, live_notepad}` has no
// project keying, matching the single-process ownership model.
type Store struct {
	mu         sync.Mutex
	statePath  string
	historyDir string
	state      *domain.ProjectState
	projectID  string
	project    string
	owner      string
}

// New loads (or initializes) the state file at statePath. Session
// archives go to historyDir.
func New(statePath, historyDir string) (*Store, error) {
	s := &Store{statePath: statePath, historyDir: historyDir}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.statePath)
	if os.IsNotExist(err) {
		s.state = domain.NewProjectState()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	state := domain.NewProjectState()
	if err := json.Unmarshal(data, state); err != nil {
		return fmt.Errorf("parse state file %s: %w", s.statePath, err)
	}
	if state.Locks == nil {
		state.Locks = make(map[string]*domain.Lock)
	}
	if state.Jobs == nil {
		state.Jobs = make(map[string]*domain.Job)
	}
	s.state = state
	return nil
}

// flush rewrites the whole state file. Write-then-rename keeps a crash
// from leaving a truncated file behind.
func (s *Store) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.statePath), 0o755); err != nil {
		return fault.Wrap(fault.StoreError, err, "create state dir")
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fault.Wrap(fault.StoreError, err, "encode state")
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fault.Wrap(fault.StoreError, err, "write state file")
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		return fault.Wrap(fault.StoreError, err, "replace state file")
	}
	return nil
}

// Close implements store.Store. The state file is already durable after
// every mutation, so there is nothing to release.
func (s *Store) Close() error { return nil }

// ResolveProject implements store.Store. The first resolution binds the
// store to that project; a different name afterwards is a caller bug.
func (s *Store) ResolveProject(_ context.Context, name, owner string) (string, error) {
	if name == "" {
		return "", fault.New(fault.BadRequest, "project name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectID == "" {
		s.projectID = "local-" + name
		s.project = name
		s.owner = owner
		return s.projectID, nil
	}
	if s.project != name || s.owner != owner {
		return "", fault.New(fault.BadRequest,
			"local store is bound to project %q; cannot resolve %q", s.project, name)
	}
	return s.projectID, nil
}

// InsertJob implements store.Store.
func (s *Store) InsertJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	cp.Dependencies = append([]string(nil), job.Dependencies...)
	s.state.Jobs[job.ID] = &cp
	return s.flush()
}

// ClaimJob implements store.Store.
func (s *Store) ClaimJob(_ context.Context, _, jobID, agentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.state.Jobs[jobID]
	if !ok || job.Status != domain.StatusTodo {
		return false, nil
	}
	job.Status = domain.StatusInProgress
	job.AssignedTo = agentID
	job.UpdatedAt = time.Now()
	if err := s.flush(); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateJob implements store.Store.
func (s *Store) UpdateJob(_ context.Context, _, jobID string, upd domain.JobUpdate) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.state.Jobs[jobID]
	if !ok {
		return nil, fault.New(fault.NotFound, "job %s not found", jobID)
	}
	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.Priority != nil {
		job.Priority = *upd.Priority
	}
	if upd.AssignedTo != nil {
		job.AssignedTo = *upd.AssignedTo
	}
	if upd.CancelReason != nil {
		job.CancelReason = *upd.CancelReason
	}
	if upd.Outcome != nil {
		job.Outcome = *upd.Outcome
	}
	job.UpdatedAt = time.Now()
	if err := s.flush(); err != nil {
		return nil, err
	}
	cp := *job
	return &cp, nil
}

// ListJobs implements store.Store, oldest first.
func (s *Store) ListJobs(_ context.Context, _ string) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]domain.Job, 0, len(s.state.Jobs))
	for _, j := range s.state.Jobs {
		jobs = append(jobs, *j)
	}
	sortJobsByAge(jobs)
	return jobs, nil
}

func sortJobsByAge(jobs []domain.Job) {
	for i := 1; i < len(jobs); i++ {
		for k := i; k > 0 && jobs[k].CreatedAt.Before(jobs[k-1].CreatedAt); k-- {
			jobs[k], jobs[k-1] = jobs[k-1], jobs[k]
		}
	}
}

// TryAcquireLock implements store.Store. The whole check-and-set runs
// under the store mutex, which is all the atomicity local mode needs.
func (s *Store) TryAcquireLock(_ context.Context, lock *domain.Lock, ttl time.Duration) (bool, *domain.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if cur, ok := s.state.Locks[lock.FilePath]; ok && cur != nil {
		if cur.AgentID != lock.AgentID && cur.Live(now, ttl) {
			cp := *cur
			return false, &cp, nil
		}
		// Owner refresh keeps the original acquisition time.
		if cur.AgentID == lock.AgentID {
			lock.CreatedAt = cur.CreatedAt
		} else {
			lock.CreatedAt = now
		}
	} else {
		lock.CreatedAt = now
	}
	lock.UpdatedAt = now
	cp := *lock
	s.state.Locks[lock.FilePath] = &cp
	if err := s.flush(); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}

// ListLocks implements store.Store.
func (s *Store) ListLocks(_ context.Context, _ string) ([]domain.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	locks := make([]domain.Lock, 0, len(s.state.Locks))
	for _, l := range s.state.Locks {
		locks = append(locks, *l)
	}
	return locks, nil
}

// DeleteLock implements store.Store.
func (s *Store) DeleteLock(_ context.Context, _, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.Locks, filePath)
	return s.flush()
}

// ReclaimStaleLocks implements store.Store.
func (s *Store) ReclaimStaleLocks(_ context.Context, _ string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for path, lock := range s.state.Locks {
		if lock != nil && !lock.Live(now, ttl) {
			delete(s.state.Locks, path)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.flush(); err != nil {
		return 0, err
	}
	return removed, nil
}

// ReadNotepad implements store.Store.
func (s *Store) ReadNotepad(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LiveNotepad, nil
}

// AppendNotepad implements store.Store.
func (s *Store) AppendNotepad(_ context.Context, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LiveNotepad += text
	return s.flush()
}

// ResetNotepad implements store.Store.
func (s *Store) ResetNotepad(_ context.Context, _, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LiveNotepad = text
	return s.flush()
}

// ArchiveSession implements store.Store: a timestamped Markdown file
// under history/. The write must succeed before finalize touches any
// live state, so failures surface as StoreError without side effects.
func (s *Store) ArchiveSession(_ context.Context, projectID, title, summary, full string) (*domain.SessionArchive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.historyDir, 0o755); err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "create history dir")
	}
	now := time.Now()
	path := filepath.Join(s.historyDir, "session-"+now.UTC().Format("2006-01-02T15-04-05Z")+".md")
	content := fmt.Sprintf("# %s\n\n%s\n", title, full)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "write session archive")
	}
	return &domain.SessionArchive{
		ID:        filepath.Base(path),
		ProjectID: projectID,
		Title:     title,
		Summary:   summary,
		Content:   full,
		Path:      path,
		CreatedAt: now,
	}, nil
}

// DeleteProjectLocks implements store.Store.
func (s *Store) DeleteProjectLocks(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Locks = make(map[string]*domain.Lock)
	return s.flush()
}

// PurgeTerminalJobs implements store.Store.
func (s *Store) PurgeTerminalJobs(_ context.Context, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, job := range s.state.Jobs {
		if job != nil && job.Status.Terminal() {
			delete(s.state.Jobs, id)
			purged++
		}
	}
	if purged == 0 {
		return 0, nil
	}
	if err := s.flush(); err != nil {
		return 0, err
	}
	return purged, nil
}
