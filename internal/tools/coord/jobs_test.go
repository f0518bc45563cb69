package coord

import (
	"strings"
	"testing"
)

func TestPostJobTool(t *testing.T) {
	srv := testServer(t, newTestCenter(t))

	result, err := callTool(t, srv, "post_job", map[string]any{
		"agent_id":    "planner",
		"title":       "Refactor the parser",
		"description": "Split lexing from parsing",
		"priority":    "high",
	})
	if err != nil {
		t.Fatalf("post_job: %v", err)
	}
	body := resultJSON(t, result)
	if body["status"] != "POSTED" {
		t.Errorf("status = %v, want POSTED", body["status"])
	}
	key, _ := body["completion_key"].(string)
	if len(key) != 8 {
		t.Errorf("completion_key = %q, want 8 chars", key)
	}
	if body["job_id"] == "" {
		t.Error("job_id missing")
	}
}

func TestPostJobTool_MissingTitle(t *testing.T) {
	srv := testServer(t, newTestCenter(t))
	if _, err := callTool(t, srv, "post_job", map[string]any{"agent_id": "a"}); err == nil {
		t.Fatal("expected error for missing title")
	}
}

func TestPostJobTool_BadDependencyType(t *testing.T) {
	srv := testServer(t, newTestCenter(t))
	_, err := callTool(t, srv, "post_job", map[string]any{
		"agent_id":     "a",
		"title":        "T",
		"dependencies": []any{1, 2},
	})
	if err == nil {
		t.Fatal("expected error for non-string dependencies")
	}
}

func TestClaimNextJobTool_PriorityOrder(t *testing.T) {
	srv := testServer(t, newTestCenter(t))

	for _, job := range []map[string]any{
		{"agent_id": "p", "title": "Low job", "priority": "low"},
		{"agent_id": "p", "title": "Critical job", "priority": "critical"},
	} {
		if _, err := callTool(t, srv, "post_job", job); err != nil {
			t.Fatalf("post %v: %v", job["title"], err)
		}
	}

	result, err := callTool(t, srv, "claim_next_job", map[string]any{"agent_id": "worker"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	body := resultJSON(t, result)
	if body["status"] != "CLAIMED" {
		t.Fatalf("status = %v, want CLAIMED", body["status"])
	}
	job, _ := body["job"].(map[string]any)
	if job == nil || job["title"] != "Critical job" {
		t.Errorf("claimed %v, want the critical job", job)
	}
	if key, ok := job["completion_key"].(string); ok && key != "" {
		t.Error("claim leaked the completion key")
	}
}

func TestClaimNextJobTool_EmptyBoard(t *testing.T) {
	srv := testServer(t, newTestCenter(t))
	result, err := callTool(t, srv, "claim_next_job", map[string]any{"agent_id": "worker"})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if body := resultJSON(t, result); body["status"] != "NO_JOBS_AVAILABLE" {
		t.Errorf("status = %v, want NO_JOBS_AVAILABLE", body["status"])
	}
}

func TestCompleteJobTool_WithKey(t *testing.T) {
	srv := testServer(t, newTestCenter(t))

	posted, err := callTool(t, srv, "post_job", map[string]any{"agent_id": "p", "title": "Orphaned work"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body := resultJSON(t, posted)
	jobID := body["job_id"].(string)
	key := body["completion_key"].(string)

	if _, err := callTool(t, srv, "claim_next_job", map[string]any{"agent_id": "A"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// B finishes A's abandoned job with the key.
	result, err := callTool(t, srv, "complete_job", map[string]any{
		"agent_id":       "B",
		"job_id":         jobID,
		"outcome":        "done by B",
		"completion_key": key,
	})
	if err != nil {
		t.Fatalf("complete by key: %v", err)
	}
	if body := resultJSON(t, result); body["status"] != "COMPLETED" {
		t.Errorf("status = %v, want COMPLETED", body["status"])
	}
}

func TestCompleteJobTool_WrongIdentityNoKey(t *testing.T) {
	srv := testServer(t, newTestCenter(t))

	posted, err := callTool(t, srv, "post_job", map[string]any{"agent_id": "p", "title": "Guarded"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	jobID := resultJSON(t, posted)["job_id"].(string)
	if _, err := callTool(t, srv, "claim_next_job", map[string]any{"agent_id": "A"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	_, err = callTool(t, srv, "complete_job", map[string]any{
		"agent_id": "B",
		"job_id":   jobID,
		"outcome":  "stolen",
	})
	if err == nil {
		t.Fatal("expected error: not the assignee and no key")
	}
	if !strings.Contains(err.Error(), "completion key") {
		t.Errorf("error = %v, want a completion-key hint", err)
	}
}

func TestCancelJobTool(t *testing.T) {
	srv := testServer(t, newTestCenter(t))

	posted, err := callTool(t, srv, "post_job", map[string]any{"agent_id": "p", "title": "Doomed"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	jobID := resultJSON(t, posted)["job_id"].(string)

	result, err := callTool(t, srv, "cancel_job", map[string]any{
		"job_id": jobID,
		"reason": "requirements changed",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if body := resultJSON(t, result); body["status"] != "CANCELLED" {
		t.Errorf("status = %v, want CANCELLED", body["status"])
	}

	// Cancelling again hits the terminal guard.
	if _, err := callTool(t, srv, "cancel_job", map[string]any{"job_id": jobID, "reason": "again"}); err == nil {
		t.Fatal("expected error cancelling a cancelled job")
	}
}

func TestCancelJobTool_RequiresReason(t *testing.T) {
	srv := testServer(t, newTestCenter(t))
	if _, err := callTool(t, srv, "cancel_job", map[string]any{"job_id": "x"}); err == nil {
		t.Fatal("expected error for missing reason")
	}
}
