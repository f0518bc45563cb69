// Package sqlite implements the shared relational store for hosted
// mode. Conditional operations are single statements checked by rows
// affected, so correctness does not depend on the caller's in-process
// mutex: concurrent writers from other processes race at the database,
// not in Go.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/axis-sh/axis/internal/domain"
	"github.com/axis-sh/axis/internal/fault"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	live_notepad TEXT NOT NULL DEFAULT '',
	UNIQUE (name, owner_id)
);
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT 'medium',
	status TEXT NOT NULL DEFAULT 'todo',
	assigned_to TEXT NOT NULL DEFAULT '',
	dependencies TEXT NOT NULL DEFAULT '[]',
	completion_key TEXT NOT NULL DEFAULT '',
	cancel_reason TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS locks (
	project_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	intent TEXT NOT NULL DEFAULT '',
	user_prompt TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (project_id, file_path)
);
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	title TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_project_status ON jobs(project_id, status);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
`

// Store implements store.Store over a SQLite database shared by every
// process on the machine (WAL mode, busy timeout).
type Store struct {
	db *sql.DB
}

// New opens the database at path, creating parent dirs and schema.
func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s, context string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: parse timestamp %q: %w", context, s, err)
	}
	return t, nil
}

// ResolveProject implements store.Store. Creation is an upsert so that
// two processes resolving the same (name, owner) concurrently converge
// on a single row.
func (s *Store) ResolveProject(ctx context.Context, name, owner string) (string, error) {
	if name == "" {
		return "", fault.New(fault.BadRequest, "project name is required")
	}
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, owner_id) VALUES (?, ?, ?)
		 ON CONFLICT(name, owner_id) DO NOTHING`, id, name, owner); err != nil {
		return "", fault.Wrap(fault.StoreError, err, "resolve project")
	}
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM projects WHERE name = ? AND owner_id = ?`, name, owner).Scan(&existing)
	if err != nil {
		return "", fault.Wrap(fault.StoreError, err, "resolve project")
	}
	return existing, nil
}

// InsertJob implements store.Store.
func (s *Store) InsertJob(ctx context.Context, job *domain.Job) error {
	deps, _ := json.Marshal(job.Dependencies)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, project_id, title, description, priority, status, assigned_to,
		 dependencies, completion_key, cancel_reason, outcome, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ProjectID, job.Title, job.Description, string(job.Priority), string(job.Status),
		job.AssignedTo, string(deps), job.CompletionKey, job.CancelReason, job.Outcome,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	return fault.Wrap(fault.StoreError, err, "insert job")
}

// ClaimJob implements store.Store. The update is gated on status='todo'
// so at most one claimant ever sees rows-affected = 1.
func (s *Store) ClaimJob(ctx context.Context, projectID, jobID, agentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'in_progress', assigned_to = ?, updated_at = ?
		 WHERE id = ? AND project_id = ? AND status = 'todo'`,
		agentID, formatTime(time.Now()), jobID, projectID)
	if err != nil {
		return false, fault.Wrap(fault.StoreError, err, "claim job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fault.Wrap(fault.StoreError, err, "claim job")
	}
	return n == 1, nil
}

// UpdateJob implements store.Store.
func (s *Store) UpdateJob(ctx context.Context, projectID, jobID string, upd domain.JobUpdate) (*domain.Job, error) {
	set := "updated_at = ?"
	args := []any{formatTime(time.Now())}
	if upd.Status != nil {
		set += ", status = ?"
		args = append(args, string(*upd.Status))
	}
	if upd.Priority != nil {
		set += ", priority = ?"
		args = append(args, string(*upd.Priority))
	}
	if upd.AssignedTo != nil {
		set += ", assigned_to = ?"
		args = append(args, *upd.AssignedTo)
	}
	if upd.CancelReason != nil {
		set += ", cancel_reason = ?"
		args = append(args, *upd.CancelReason)
	}
	if upd.Outcome != nil {
		set += ", outcome = ?"
		args = append(args, *upd.Outcome)
	}
	args = append(args, jobID, projectID)
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET "+set+" WHERE id = ? AND project_id = ?", args...)
	if err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "update job")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fault.New(fault.NotFound, "job %s not found", jobID)
	}
	return s.getJob(ctx, projectID, jobID)
}

func (s *Store) getJob(ctx context.Context, projectID, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, description, priority, status, assigned_to,
		 dependencies, completion_key, cancel_reason, outcome, created_at, updated_at
		 FROM jobs WHERE id = ? AND project_id = ?`, jobID, projectID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.NotFound, "job %s not found", jobID)
	}
	if err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "get job")
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*domain.Job, error) {
	var j domain.Job
	var prio, status, deps, ca, ua string
	if err := r.Scan(&j.ID, &j.ProjectID, &j.Title, &j.Description, &prio, &status,
		&j.AssignedTo, &deps, &j.CompletionKey, &j.CancelReason, &j.Outcome, &ca, &ua); err != nil {
		return nil, err
	}
	j.Priority = domain.Priority(prio)
	j.Status = domain.Status(status)
	if err := json.Unmarshal([]byte(deps), &j.Dependencies); err != nil {
		return nil, fmt.Errorf("jobs dependencies: %w", err)
	}
	var err error
	if j.CreatedAt, err = parseTime(ca, "jobs created_at"); err != nil {
		return nil, err
	}
	if j.UpdatedAt, err = parseTime(ua, "jobs updated_at"); err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobs implements store.Store. Jobs come back oldest first so the
// facade's ranking only has to sort on priority.
func (s *Store) ListJobs(ctx context.Context, projectID string) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, title, description, priority, status, assigned_to,
		 dependencies, completion_key, cancel_reason, outcome, created_at, updated_at
		 FROM jobs WHERE project_id = ? ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "list jobs")
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fault.Wrap(fault.StoreError, err, "list jobs")
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "list jobs iteration")
	}
	return jobs, nil
}

// TryAcquireLock implements store.Store. The conflict clause admits the
// upsert only when the incumbent is the requester or has gone stale, so
// acquisition is one statement end to end — never a read followed by a
// write in separate round trips.
func (s *Store) TryAcquireLock(ctx context.Context, lock *domain.Lock, ttl time.Duration) (bool, *domain.Lock, error) {
	now := time.Now()
	cutoff := formatTime(now.Add(-ttl))
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locks (project_id, file_path, agent_id, intent, user_prompt, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id, file_path) DO UPDATE SET
			agent_id = excluded.agent_id,
			intent = excluded.intent,
			user_prompt = excluded.user_prompt,
			created_at = CASE WHEN locks.agent_id = excluded.agent_id
				THEN locks.created_at ELSE excluded.created_at END,
			updated_at = excluded.updated_at
		 WHERE locks.agent_id = excluded.agent_id
			OR datetime(locks.updated_at) <= datetime(?)`,
		lock.ProjectID, lock.FilePath, lock.AgentID, lock.Intent, lock.UserPrompt,
		formatTime(now), formatTime(now), cutoff)
	if err != nil {
		return false, nil, fault.Wrap(fault.StoreError, err, "acquire lock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil, fault.Wrap(fault.StoreError, err, "acquire lock")
	}
	if n == 1 {
		lock.CreatedAt = now
		lock.UpdatedAt = now
		return true, nil, nil
	}
	incumbent, err := s.getLock(ctx, lock.ProjectID, lock.FilePath)
	if err != nil {
		return false, nil, err
	}
	return false, incumbent, nil
}

func (s *Store) getLock(ctx context.Context, projectID, filePath string) (*domain.Lock, error) {
	var l domain.Lock
	var ca, ua string
	err := s.db.QueryRowContext(ctx,
		`SELECT project_id, file_path, agent_id, intent, user_prompt, created_at, updated_at
		 FROM locks WHERE project_id = ? AND file_path = ?`, projectID, filePath).
		Scan(&l.ProjectID, &l.FilePath, &l.AgentID, &l.Intent, &l.UserPrompt, &ca, &ua)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "get lock")
	}
	if l.CreatedAt, err = parseTime(ca, "locks created_at"); err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "get lock")
	}
	if l.UpdatedAt, err = parseTime(ua, "locks updated_at"); err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "get lock")
	}
	return &l, nil
}

// ListLocks implements store.Store.
func (s *Store) ListLocks(ctx context.Context, projectID string) ([]domain.Lock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, file_path, agent_id, intent, user_prompt, created_at, updated_at
		 FROM locks WHERE project_id = ? ORDER BY file_path`, projectID)
	if err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "list locks")
	}
	defer rows.Close()
	var locks []domain.Lock
	for rows.Next() {
		var l domain.Lock
		var ca, ua string
		if err := rows.Scan(&l.ProjectID, &l.FilePath, &l.AgentID, &l.Intent, &l.UserPrompt, &ca, &ua); err != nil {
			return nil, fault.Wrap(fault.StoreError, err, "list locks")
		}
		if l.CreatedAt, err = parseTime(ca, "locks created_at"); err != nil {
			return nil, fault.Wrap(fault.StoreError, err, "list locks")
		}
		if l.UpdatedAt, err = parseTime(ua, "locks updated_at"); err != nil {
			return nil, fault.Wrap(fault.StoreError, err, "list locks")
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "list locks iteration")
	}
	return locks, nil
}

// DeleteLock implements store.Store.
func (s *Store) DeleteLock(ctx context.Context, projectID, filePath string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM locks WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	return fault.Wrap(fault.StoreError, err, "delete lock")
}

// ReclaimStaleLocks implements store.Store as a one-statement delete.
func (s *Store) ReclaimStaleLocks(ctx context.Context, projectID string, ttl time.Duration) (int, error) {
	cutoff := formatTime(time.Now().Add(-ttl))
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM locks WHERE project_id = ? AND datetime(updated_at) <= datetime(?)`,
		projectID, cutoff)
	if err != nil {
		return 0, fault.Wrap(fault.StoreError, err, "reclaim stale locks")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ReadNotepad implements store.Store.
func (s *Store) ReadNotepad(ctx context.Context, projectID string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT live_notepad FROM projects WHERE id = ?`, projectID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", fault.New(fault.NotFound, "project %s not found", projectID)
	}
	if err != nil {
		return "", fault.Wrap(fault.StoreError, err, "read notepad")
	}
	return text, nil
}

// AppendNotepad implements store.Store. The append happens in SQL so
// concurrent writers from different processes interleave whole lines,
// never partial ones.
func (s *Store) AppendNotepad(ctx context.Context, projectID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET live_notepad = live_notepad || ? WHERE id = ?`, text, projectID)
	if err != nil {
		return fault.Wrap(fault.StoreError, err, "append notepad")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.New(fault.NotFound, "project %s not found", projectID)
	}
	return nil
}

// ResetNotepad implements store.Store.
func (s *Store) ResetNotepad(ctx context.Context, projectID, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET live_notepad = ? WHERE id = ?`, text, projectID)
	if err != nil {
		return fault.Wrap(fault.StoreError, err, "reset notepad")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.New(fault.NotFound, "project %s not found", projectID)
	}
	return nil
}

// ArchiveSession implements store.Store.
func (s *Store) ArchiveSession(ctx context.Context, projectID, title, summary, full string) (*domain.SessionArchive, error) {
	arc := &domain.SessionArchive{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Title:     title,
		Summary:   summary,
		Content:   full,
		CreatedAt: time.Now(),
	}
	arc.Path = "sessions/" + arc.ID
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, project_id, title, summary, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		arc.ID, projectID, title, summary, full, formatTime(arc.CreatedAt))
	if err != nil {
		return nil, fault.Wrap(fault.StoreError, err, "archive session")
	}
	return arc, nil
}

// DeleteProjectLocks implements store.Store.
func (s *Store) DeleteProjectLocks(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE project_id = ?`, projectID)
	return fault.Wrap(fault.StoreError, err, "delete project locks")
}

// PurgeTerminalJobs implements store.Store.
func (s *Store) PurgeTerminalJobs(ctx context.Context, projectID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE project_id = ? AND status IN ('done', 'cancelled')`, projectID)
	if err != nil {
		return 0, fault.Wrap(fault.StoreError, err, "purge terminal jobs")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
