package nerve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FinalizeResult is the response to FinalizeSession.
type FinalizeResult struct {
	Status      string `json:"status"` // SESSION_FINALIZED
	ArchivePath string `json:"archive_path,omitempty"`
	JobsPurged  int    `json:"jobs_purged"`
}

const summaryLimit = 500

// FinalizeSession archives the live notepad and resets the working
// state for the next session. The order is fixed: read, archive, reset
// notepad, delete locks, purge terminal jobs. A failed archive aborts
// before anything live is touched, so the notepad is never lost.
func (c *Center) FinalizeSession(ctx context.Context, summary string) (*FinalizeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	notepad, err := c.store.ReadNotepad(ctx, c.projectID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	title := "Session " + now.UTC().Format(time.RFC3339)
	if summary == "" {
		summary = truncate(notepad, summaryLimit)
	}
	archive, err := c.store.ArchiveSession(ctx, c.projectID, title, summary, notepad)
	if err != nil {
		return nil, err
	}

	if err := c.store.ResetNotepad(ctx, c.projectID, sessionStartMarker(now)); err != nil {
		return nil, err
	}
	if err := c.store.DeleteProjectLocks(ctx, c.projectID); err != nil {
		return nil, err
	}
	purged, err := c.store.PurgeTerminalJobs(ctx, c.projectID)
	if err != nil {
		return nil, err
	}

	c.appendActivityLog(title, summary, archive.Path)
	c.touch()
	c.logger.Printf("finalize_session: archived %q, purged %d jobs", title, purged)
	return &FinalizeResult{Status: "SESSION_FINALIZED", ArchivePath: archive.Path, JobsPurged: purged}, nil
}

// appendActivityLog adds one line per finalized session to
// activity.md in the instructions directory, next to context.md and
// conventions.md, so the log surfaces through the project soul.
// Failures are logged and swallowed: the archive already holds the
// full record.
func (c *Center) appendActivityLog(title, summary, archivePath string) {
	dir := c.policy.InstructionsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.logger.Printf("Warning: activity log dir: %v", err)
		return
	}
	path := filepath.Join(dir, "activity.md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		c.logger.Printf("Warning: activity log open: %v", err)
		return
	}
	defer f.Close()
	line := fmt.Sprintf("- **%s** — %s (archive: %s)\n", title, firstLine(summary), archivePath)
	if _, err := f.WriteString(line); err != nil {
		c.logger.Printf("Warning: activity log write: %v", err)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
