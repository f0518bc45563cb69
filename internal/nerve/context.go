package nerve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CoreContext renders the shared working state as one Markdown document
// with three sections: job board, live file locks, and the notepad.
// This is the payload behind the context resource and read_context.
func (c *Center) CoreContext(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	jobs, err := c.store.ListJobs(ctx, c.projectID)
	if err != nil {
		return "", err
	}
	if _, err := c.store.ReclaimStaleLocks(ctx, c.projectID, c.policy.LockTTL()); err != nil {
		return "", err
	}
	locks, err := c.store.ListLocks(ctx, c.projectID)
	if err != nil {
		return "", err
	}
	notepad, err := c.store.ReadNotepad(ctx, c.projectID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Nerve Center: %s\n\n", c.project)

	b.WriteString("## Job Board\n\n")
	active := 0
	for _, j := range jobs {
		if j.Status.Terminal() {
			continue
		}
		active++
		fmt.Fprintf(&b, "- [%s] (%s) %s", j.Status, j.Priority, j.Title)
		if j.AssignedTo != "" {
			fmt.Fprintf(&b, " — assigned to %s", j.AssignedTo)
		}
		if len(j.Dependencies) > 0 {
			fmt.Fprintf(&b, " (after %s)", strings.Join(j.Dependencies, ", "))
		}
		fmt.Fprintf(&b, " `%s`\n", j.ID)
	}
	if active == 0 {
		b.WriteString("No open jobs.\n")
	}

	b.WriteString("\n## File Locks\n\n")
	if len(locks) == 0 {
		b.WriteString("No active locks.\n")
	}
	for _, l := range locks {
		fmt.Fprintf(&b, "- `%s` held by %s (%s), last touched %s\n",
			l.FilePath, l.AgentID, l.Intent, l.UpdatedAt.UTC().Format(time.RFC3339))
	}

	b.WriteString("\n## Live Notepad\n\n")
	if strings.TrimSpace(notepad) == "" {
		b.WriteString("(empty)\n")
	} else {
		b.WriteString(notepad)
		if !strings.HasSuffix(notepad, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

const soulPlaceholder = "No project instructions found. Seed %s with context.md " +
	"and conventions.md to give agents a shared starting point.\n"

// ProjectSoul returns the durable project instructions: context.md and
// conventions.md from the instructions directory, concatenated. Missing
// files degrade to a placeholder rather than an error so a fresh
// workspace still answers.
func (c *Center) ProjectSoul() string {
	dir := c.policy.InstructionsDir()
	var parts []string
	for _, name := range []string{"context.md", "conventions.md"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		parts = append(parts, strings.TrimRight(string(data), "\n"))
	}
	if len(parts) == 0 {
		return fmt.Sprintf(soulPlaceholder, dir)
	}
	return strings.Join(parts, "\n\n---\n\n") + "\n"
}

// WriteInstructions persists an instructions document (context.md or
// conventions.md) under the instructions directory.
func (c *Center) WriteInstructions(name, content string) error {
	if name != "context.md" && name != "conventions.md" {
		name = "context.md"
	}
	dir := c.policy.InstructionsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create instructions dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write instructions: %w", err)
	}
	c.touch()
	return nil
}
