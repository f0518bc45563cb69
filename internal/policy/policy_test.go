package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestModeSelection(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
		want Mode
	}{
		{"defaults are local", func(c *Config) {}, ModeLocal},
		{"shared store path is hosted", func(c *Config) {
			c.SharedStorePath = "/tmp/state.sqlite"
		}, ModeHosted},
		{"store credentials are hosted", func(c *Config) {
			c.StoreURL = "https://db.example.com"
			c.StoreServiceKey = "service-key"
		}, ModeHosted},
		{"store URL without key stays local", func(c *Config) {
			c.StoreURL = "https://db.example.com"
		}, ModeLocal},
		{"remote API wins over everything", func(c *Config) {
			c.RemoteAPIURL = "https://api.example.com"
			c.SharedStorePath = "/tmp/state.sqlite"
		}, ModeRemote},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultConfig()
			c.mut(cfg)
			if got := New(cfg).Mode(); got != c.want {
				t.Errorf("Mode() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestLoadConfigYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "axis.yaml")
	yamlDoc := `
project_name: from-file
lock_ttl_minutes: 5
api_keys:
  sk_sc_abc:
    owner: alice
    plan: pro
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	// Environment beats the file.
	t.Setenv("PROJECT_NAME", "from-env")
	t.Setenv("APP_SESSION_SECRET", "env-secret")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ProjectName != "from-env" {
		t.Errorf("ProjectName = %q, want env override", cfg.ProjectName)
	}
	if cfg.SessionSecret != "env-secret" {
		t.Errorf("SessionSecret = %q, want env value", cfg.SessionSecret)
	}
	if cfg.LockTTLMinutes != 5 {
		t.Errorf("LockTTLMinutes = %d, want 5 from file", cfg.LockTTLMinutes)
	}

	p := New(cfg)
	entry, ok := p.LookupAPIKey("sk_sc_abc")
	if !ok || entry.Owner != "alice" || entry.Plan != "pro" {
		t.Errorf("LookupAPIKey = %+v, %v", entry, ok)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadConfig of a missing file should fail")
	}
}

func TestLookupAPIKeyRequiresPrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKeys = map[string]APIKeyEntry{"raw-key": {Owner: "bob"}}
	p := New(cfg)

	// Even a configured key is rejected without the sk_sc_ prefix.
	if _, ok := p.LookupAPIKey("raw-key"); ok {
		t.Error("unprefixed key accepted")
	}
	if _, ok := p.LookupAPIKey("sk_sc_unknown"); ok {
		t.Error("unknown key accepted")
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkspaceRoot = "/ws"
	p := New(cfg)

	if got := p.HistoryDir(); got != filepath.Join("/ws", "history") {
		t.Errorf("HistoryDir = %q", got)
	}
	if got := p.StateFile(); got != filepath.Join("/ws", "history", "nerve-center-state.json") {
		t.Errorf("StateFile = %q", got)
	}
	if got := p.InstructionsDir(); got != filepath.Join("/ws", ".axis", "instructions") {
		t.Errorf("InstructionsDir = %q", got)
	}
	// The embeddings database sits beside the state file, not inside it.
	if got := p.EmbeddingDBPath(); got != filepath.Join("/ws", "history", "embeddings.db") {
		t.Errorf("EmbeddingDBPath = %q", got)
	}
	if got := p.SignalFilePath(); filepath.Dir(got) != filepath.Join("/ws", "history") {
		t.Errorf("SignalFilePath = %q, want under the state dir", got)
	}

	// An absolute state file wins over the derived default.
	cfg.StateFile = "/var/lib/axis/state.json"
	if got := p.StateFile(); got != "/var/lib/axis/state.json" {
		t.Errorf("StateFile = %q, want the absolute override", got)
	}
}

func TestDurations(t *testing.T) {
	p := New(DefaultConfig())
	if got := p.LockTTL(); got != 30*time.Minute {
		t.Errorf("LockTTL = %v, want 30m", got)
	}
	if got := p.StoreTimeout(); got != 15*time.Second {
		t.Errorf("StoreTimeout = %v, want 15s", got)
	}

	cfg := DefaultConfig()
	cfg.LockTTLMinutes = -1
	cfg.StoreTimeoutSeconds = 0
	p = New(cfg)
	if got := p.LockTTL(); got != 30*time.Minute {
		t.Errorf("LockTTL with bad config = %v, want the default", got)
	}
	if got := p.StoreTimeout(); got != 15*time.Second {
		t.Errorf("StoreTimeout with bad config = %v, want the default", got)
	}
}

func TestValidatePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkspaceRoot = "/ws/project"
	p := New(cfg)

	got, err := p.ValidatePath("src/main.go")
	if err != nil {
		t.Fatalf("relative path: %v", err)
	}
	if got != "/ws/project/src/main.go" {
		t.Errorf("ValidatePath = %q", got)
	}

	if _, err := p.ValidatePath("../secrets"); err == nil {
		t.Error("escape via .. accepted")
	}
	if _, err := p.ValidatePath("/etc/passwd"); err == nil {
		t.Error("absolute path outside workspace accepted")
	}
	if !strings.Contains(func() string {
		_, err := p.ValidatePath("../x")
		return err.Error()
	}(), "outside workspace") {
		t.Error("escape error should name the workspace boundary")
	}
}

func TestSetWorkspaceRoot(t *testing.T) {
	p := New(DefaultConfig())
	p.SetWorkspaceRoot("/elsewhere")
	if got := p.WorkspaceRoot(); got != "/elsewhere" {
		t.Errorf("WorkspaceRoot = %q", got)
	}
}
