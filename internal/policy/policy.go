// Package policy implements configuration and guards: execution mode
// selection, state and history paths, lock TTL, timeouts, credentials,
// and workspace path validation.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode is the execution mode picked once at startup.
type Mode string

const (
	// ModeLocal is the single-process file-backed store.
	ModeLocal Mode = "local"
	// ModeHosted is the server side of hosted mode: this process owns the
	// shared relational store and serves the HTTP API over it.
	ModeHosted Mode = "hosted"
	// ModeRemote is the client side of hosted mode: state lives behind the
	// shared-context HTTP API.
	ModeRemote Mode = "remote"
)

// APIKeyEntry maps a raw API key to its owner and plan.
type APIKeyEntry struct {
	Owner string `yaml:"owner"`
	Plan  string `yaml:"plan"`
}

// Config holds policy configuration. Environment variables override the
// file where noted.
type Config struct {
	WorkspaceRoot string `yaml:"workspace_root"`
	ProjectName   string `yaml:"project_name"` // env PROJECT_NAME
	OwnerID       string `yaml:"owner_id"`

	StateFile       string `yaml:"state_file"` // env NERVE_CENTER_STATE_FILE
	HistoryDir      string `yaml:"history_dir"`
	InstructionsDir string `yaml:"instructions_dir"`
	SharedStorePath string `yaml:"shared_store_path"`
	LogFile         string `yaml:"log_file"`

	HTTPPort            int `yaml:"http_port"`
	LockTTLMinutes      int `yaml:"lock_ttl_minutes"`
	StoreTimeoutSeconds int `yaml:"store_timeout_seconds"`

	// Hosted-mode credentials. All overridable by environment.
	RemoteAPIURL    string `yaml:"remote_api_url"`    // env SHARED_CONTEXT_API_URL
	RemoteAPISecret string `yaml:"remote_api_secret"` // env SHARED_CONTEXT_API_SECRET
	StoreURL        string `yaml:"store_url"`         // env NEXT_PUBLIC_SUPABASE_URL
	StoreServiceKey string `yaml:"store_service_key"` // env SUPABASE_SERVICE_ROLE_KEY
	SessionSecret   string `yaml:"session_secret"`    // env APP_SESSION_SECRET
	OpenAIAPIKey    string `yaml:"openai_api_key"`    // env OPENAI_API_KEY

	APIKeys map[string]APIKeyEntry `yaml:"api_keys"`
}

// DefaultConfig returns sensible defaults for local mode.
func DefaultConfig() *Config {
	return &Config{
		ProjectName:         "default",
		OwnerID:             "local",
		HistoryDir:          "history",
		InstructionsDir:     filepath.Join(".axis", "instructions"),
		HTTPPort:            0,
		LockTTLMinutes:      30,
		StoreTimeoutSeconds: 15,
	}
}

// LoadConfig loads configuration from a YAML file and applies
// environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv applies environment-variable overrides.
func (c *Config) applyEnv() {
	for _, ov := range []struct {
		env string
		dst *string
	}{
		{"PROJECT_NAME", &c.ProjectName},
		{"NERVE_CENTER_STATE_FILE", &c.StateFile},
		{"SHARED_CONTEXT_API_URL", &c.RemoteAPIURL},
		{"SHARED_CONTEXT_API_SECRET", &c.RemoteAPISecret},
		{"NEXT_PUBLIC_SUPABASE_URL", &c.StoreURL},
		{"SUPABASE_SERVICE_ROLE_KEY", &c.StoreServiceKey},
		{"APP_SESSION_SECRET", &c.SessionSecret},
		{"OPENAI_API_KEY", &c.OpenAIAPIKey},
	} {
		if v := os.Getenv(ov.env); v != "" {
			*ov.dst = v
		}
	}
}

// GlobalStateDir returns the default global state directory (~/.config/axis).
func GlobalStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "axis")
}

// Policy wraps a Config with accessor methods and path validation.
type Policy struct {
	config *Config
	mu     sync.RWMutex // protects workspaceRoot for dynamic updates
}

// New creates a new policy from cfg.
func New(cfg *Config) *Policy {
	return &Policy{config: cfg}
}

// Mode returns the execution mode. Remote wins when a shared-context API
// is configured; a shared store path or store credentials select hosted;
// otherwise local.
func (p *Policy) Mode() Mode {
	if p.config.RemoteAPIURL != "" {
		return ModeRemote
	}
	if p.config.SharedStorePath != "" || (p.config.StoreURL != "" && p.config.StoreServiceKey != "") {
		return ModeHosted
	}
	return ModeLocal
}

// WorkspaceRoot returns the current workspace root.
func (p *Policy) WorkspaceRoot() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.WorkspaceRoot
}

// SetWorkspaceRoot dynamically changes the workspace root at runtime.
func (p *Policy) SetWorkspaceRoot(root string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.WorkspaceRoot = root
}

// ProjectName returns the default project name for this process.
func (p *Policy) ProjectName() string { return p.config.ProjectName }

// OwnerID returns the owner identity used when resolving projects.
func (p *Policy) OwnerID() string { return p.config.OwnerID }

// StateFile returns the local-mode state file path
// (default {workspace}/history/nerve-center-state.json).
func (p *Policy) StateFile() string {
	if sf := p.config.StateFile; sf != "" {
		if filepath.IsAbs(sf) {
			return sf
		}
		return filepath.Join(p.WorkspaceRoot(), sf)
	}
	return filepath.Join(p.HistoryDir(), "nerve-center-state.json")
}

// SharedStorePath returns the hosted-mode relational store path
// (default ~/.config/axis/state.sqlite).
func (p *Policy) SharedStorePath() string {
	if sp := p.config.SharedStorePath; sp != "" {
		return sp
	}
	return filepath.Join(GlobalStateDir(), "state.sqlite")
}

// HistoryDir returns the session archive directory.
func (p *Policy) HistoryDir() string {
	hd := p.config.HistoryDir
	if hd == "" {
		hd = "history"
	}
	if filepath.IsAbs(hd) {
		return hd
	}
	return filepath.Join(p.WorkspaceRoot(), hd)
}

// InstructionsDir returns the on-disk instructions directory
// ({workspace}/.axis/instructions by default).
func (p *Policy) InstructionsDir() string {
	id := p.config.InstructionsDir
	if filepath.IsAbs(id) {
		return id
	}
	return filepath.Join(p.WorkspaceRoot(), id)
}

// EmbeddingDBPath returns the path for the vector index database. It
// lives alongside the state, never inside it: the local store uses a
// full-replace save that would destroy an embedded index on every write.
func (p *Policy) EmbeddingDBPath() string {
	if p.Mode() == ModeHosted {
		return filepath.Join(filepath.Dir(p.SharedStorePath()), "embeddings.db")
	}
	return filepath.Join(filepath.Dir(p.StateFile()), "embeddings.db")
}

// SignalFilePath returns the path to the notify signal file. Watchers
// use it to detect state changes without watching the store itself.
func (p *Policy) SignalFilePath() string {
	if p.Mode() == ModeHosted {
		return filepath.Join(filepath.Dir(p.SharedStorePath()), ".axis-notify")
	}
	return filepath.Join(filepath.Dir(p.StateFile()), ".axis-notify")
}

// LogFile returns the configured log file path. Set to "none" or "off"
// to disable file logging entirely.
func (p *Policy) LogFile() string {
	if lf := p.config.LogFile; lf != "" {
		return lf
	}
	return filepath.Join(GlobalStateDir(), "axis-server.log")
}

// LockTTL returns the file-lock TTL (default 30 minutes).
func (p *Policy) LockTTL() time.Duration {
	m := p.config.LockTTLMinutes
	if m <= 0 {
		m = 30
	}
	return time.Duration(m) * time.Minute
}

// StoreTimeout returns the bound on any single store call (default 15s).
func (p *Policy) StoreTimeout() time.Duration {
	s := p.config.StoreTimeoutSeconds
	if s <= 0 {
		s = 15
	}
	return time.Duration(s) * time.Second
}

// HTTPPort returns the HTTP API port (0 = auto-assign).
func (p *Policy) HTTPPort() int { return p.config.HTTPPort }

// RemoteAPIURL returns the shared-context API endpoint for remote mode.
func (p *Policy) RemoteAPIURL() string { return p.config.RemoteAPIURL }

// RemoteAPISecret returns the bearer secret for the shared-context API.
func (p *Policy) RemoteAPISecret() string { return p.config.RemoteAPISecret }

// SessionSecret returns the JWT signing secret, or "" when unset.
func (p *Policy) SessionSecret() string { return p.config.SessionSecret }

// OpenAIAPIKey returns the embeddings credential, or "" when unset.
func (p *Policy) OpenAIAPIKey() string { return p.config.OpenAIAPIKey }

// LookupAPIKey resolves a raw API key to its entry. API keys are
// prefixed sk_sc_; anything else is rejected outright.
func (p *Policy) LookupAPIKey(key string) (APIKeyEntry, bool) {
	if !strings.HasPrefix(key, "sk_sc_") {
		return APIKeyEntry{}, false
	}
	e, ok := p.config.APIKeys[key]
	return e, ok
}

// ValidatePath checks that a path stays within the workspace and
// returns its cleaned absolute form.
func (p *Policy) ValidatePath(path string) (string, error) {
	wsRoot := p.WorkspaceRoot()

	if !filepath.IsAbs(path) {
		path = filepath.Join(wsRoot, path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	relPath, err := filepath.Rel(wsRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("relative path: %w", err)
	}
	if strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("path %s is outside workspace", path)
	}
	return absPath, nil
}
