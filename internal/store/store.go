// Package store defines the persistence boundary of the nerve center.
// Three implementations exist: sqlite (shared relational store, hosted
// mode), local (single JSON file, local mode), and remote (HTTP client
// for agent processes in hosted mode). External behaviour is identical
// across implementations; only the scope of cross-process visibility
// differs.
package store

import (
	"context"
	"time"

	"github.com/axis-sh/axis/internal/domain"
)

// Store is the typed persistence interface the facade talks to. All
// conditional operations are atomic with respect to other writers of
// the same backend.
type Store interface {
	// ResolveProject resolves a project name and owner identity to a
	// stable project id, creating the project if absent.
	ResolveProject(ctx context.Context, name, owner string) (string, error)

	// InsertJob stores a freshly posted job.
	InsertJob(ctx context.Context, job *domain.Job) error
	// ClaimJob conditionally moves a todo job to in_progress with the
	// given assignee. Returns false when another claimant won.
	ClaimJob(ctx context.Context, projectID, jobID, agentID string) (bool, error)
	// UpdateJob applies the allow-listed fields of upd to a job.
	UpdateJob(ctx context.Context, projectID, jobID string, upd domain.JobUpdate) (*domain.Job, error)
	// ListJobs returns all jobs of a project.
	ListJobs(ctx context.Context, projectID string) ([]domain.Job, error)

	// TryAcquireLock upserts a lock in one atomic step, succeeding when
	// the path is unlocked, owned by the requester, or stale beyond ttl.
	// On denial the incumbent lock is returned.
	TryAcquireLock(ctx context.Context, lock *domain.Lock, ttl time.Duration) (bool, *domain.Lock, error)
	// ListLocks returns all lock rows of a project, stale ones included.
	ListLocks(ctx context.Context, projectID string) ([]domain.Lock, error)
	// DeleteLock removes the lock on filePath unconditionally.
	DeleteLock(ctx context.Context, projectID, filePath string) error
	// ReclaimStaleLocks deletes locks not refreshed within ttl.
	ReclaimStaleLocks(ctx context.Context, projectID string, ttl time.Duration) (int, error)

	// ReadNotepad returns the live notepad text.
	ReadNotepad(ctx context.Context, projectID string) (string, error)
	// AppendNotepad appends text to the live notepad.
	AppendNotepad(ctx context.Context, projectID, text string) error
	// ResetNotepad replaces the live notepad. Only finalize calls this.
	ResetNotepad(ctx context.Context, projectID, text string) error

	// ArchiveSession writes a write-once session snapshot.
	ArchiveSession(ctx context.Context, projectID, title, summary, full string) (*domain.SessionArchive, error)
	// DeleteProjectLocks removes every lock of the project.
	DeleteProjectLocks(ctx context.Context, projectID string) error
	// PurgeTerminalJobs deletes jobs in done or cancelled.
	PurgeTerminalJobs(ctx context.Context, projectID string) (int, error)

	Close() error
}
