// Package domain holds coordination entities and project state.
// It has no dependencies on other packages.
package domain

import "time"

// Priority is a job's urgency on the board.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities for claim selection. Lower is claimed first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// Valid reports whether p is one of the four board priorities.
func (p Priority) Valid() bool {
	return p.Rank() < 4
}

// Status is a job's lifecycle state. done and cancelled are sinks.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known job status.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s is a sink state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// Project is the coordination scope. (Name, OwnerID) is unique and
// immutable after create.
type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

// Job is a unit of work on the board.
type Job struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Priority      Priority  `json:"priority"`
	Status        Status    `json:"status"`
	AssignedTo    string    `json:"assigned_to,omitempty"`
	Dependencies  []string  `json:"dependencies"`
	CompletionKey string    `json:"completion_key,omitempty"`
	CancelReason  string    `json:"cancel_reason,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Lock is an advisory claim on a file path, held by one agent.
// (ProjectID, FilePath) is the primary key: at most one live lock per
// file per project. A lock is live while now-UpdatedAt is within TTL.
type Lock struct {
	ProjectID  string    `json:"project_id"`
	FilePath   string    `json:"file_path"`
	AgentID    string    `json:"agent_id"`
	Intent     string    `json:"intent"`
	UserPrompt string    `json:"user_prompt,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Live reports whether the lock is still current at now given ttl.
func (l *Lock) Live(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.UpdatedAt) <= ttl
}

// SessionArchive is a write-once snapshot taken at finalize.
type SessionArchive struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Content   string    `json:"content"`
	Path      string    `json:"path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// JobUpdate is the allow-list of fields a store will accept on a job
// update. Nil pointers mean "leave unchanged".
type JobUpdate struct {
	Status       *Status
	Priority     *Priority
	AssignedTo   *string
	CancelReason *string
	Outcome      *string
}

// SetStatus returns a JobUpdate that moves the job to s.
func SetStatus(s Status) JobUpdate { return JobUpdate{Status: &s} }

// SetPriority returns a JobUpdate that reprioritises the job.
func SetPriority(p Priority) JobUpdate { return JobUpdate{Priority: &p} }

// SetAssignee returns a JobUpdate that reassigns the job.
func SetAssignee(agent string) JobUpdate { return JobUpdate{AssignedTo: &agent} }

// SetCancelReason returns a JobUpdate recording why the job was cancelled.
func SetCancelReason(reason string) JobUpdate { return JobUpdate{CancelReason: &reason} }

// Empty reports whether the update changes nothing.
func (u JobUpdate) Empty() bool {
	return u.Status == nil && u.Priority == nil && u.AssignedTo == nil &&
		u.CancelReason == nil && u.Outcome == nil
}

// ProjectState is the aggregate coordination state of one project as the
// local store keeps it on disk: `{locks, jobs, live_notepad}`.
type ProjectState struct {
	Locks       map[string]*Lock `json:"locks"`
	Jobs        map[string]*Job  `json:"jobs"`
	LiveNotepad string           `json:"live_notepad"`
}

// NewProjectState returns an empty ProjectState with maps initialized.
func NewProjectState() *ProjectState {
	return &ProjectState{
		Locks: make(map[string]*Lock),
		Jobs:  make(map[string]*Job),
	}
}
