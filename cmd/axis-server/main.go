// Axis Nerve Center server.
// Stdio MCP for the local agent, HTTP for browser UI and hosted-mode clients.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/axis-sh/axis/internal/httpapi"
	"github.com/axis-sh/axis/internal/nerve"
	"github.com/axis-sh/axis/internal/policy"
	"github.com/axis-sh/axis/internal/rag"
	"github.com/axis-sh/axis/internal/store"
	"github.com/axis-sh/axis/internal/store/local"
	"github.com/axis-sh/axis/internal/store/remote"
	"github.com/axis-sh/axis/internal/store/sqlite"
	"github.com/axis-sh/axis/internal/tools/coord"
)

// Version is set by -ldflags at build time.
var Version = "dev"

func main() {
	// Handle CLI subcommands before starting the MCP server.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			runStatusCommand()
			return
		case "--version", "-v", "version":
			fmt.Println("axis-server " + Version)
			return
		}
	}

	tmpLogger := log.New(os.Stderr, "[axis] ", log.LstdFlags|log.Lshortfile)
	cfg := loadConfig(tmpLogger)
	pol := policy.New(cfg)

	logger := setupLogger(pol.LogFile())
	logger.Println("Starting Axis nerve center...")
	logger.Printf("Mode: %s", pol.Mode())
	logger.Printf("Workspace root: %s", pol.WorkspaceRoot())

	st, err := openStore(pol)
	if err != nil {
		logger.Fatalf("Store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	center, err := nerve.New(ctx, st, pol, pol.ProjectName(), logger)
	if err != nil {
		logger.Fatalf("Nerve center: %v", err)
	}

	// Semantic index, when embeddings are configured.
	var search *rag.Service
	if key := pol.OpenAIAPIKey(); key != "" {
		vs, err := rag.NewVectorStore(pol.EmbeddingDBPath())
		if err != nil {
			logger.Printf("Warning: vector store init failed: %v (semantic search disabled)", err)
		} else {
			embedder, err := rag.NewOpenAIEmbedder(key, 0)
			if err != nil {
				logger.Printf("Warning: embedder init failed: %v (semantic search disabled)", err)
				_ = vs.Close()
			} else {
				search = rag.NewService(vs, embedder, logger)
				logger.Printf("Semantic index: %s", pol.EmbeddingDBPath())
			}
		}
	}

	// Session store for push notifications.
	sessions := newSessionStore()

	hooks := &server.Hooks{}
	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if message != nil {
			logger.Printf("Calling tool: %s", message.Params.Name)
		}
	})
	hooks.AddBeforeInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest) {
		if session := server.ClientSessionFromContext(ctx); session != nil {
			sessions.set(session.SessionID(), session)
			logger.Printf("Client session registered: %s", session.SessionID())
		}
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		sessions.remove(session.SessionID())
		logger.Printf("Client session unregistered: %s", session.SessionID())
	})

	mcpServer := server.NewMCPServer(
		"axis-nerve-center",
		Version,
		server.WithInstructions(serverInstructions(pol)),
		server.WithHooks(hooks),
		server.WithResourceCapabilities(false, true), // subscribe=false, listChanged=true
	)

	regOpts := []coord.RegisterOption{}
	if search != nil {
		regOpts = append(regOpts, coord.WithSearch(search))
	}
	if pol.Mode() == policy.ModeRemote {
		regOpts = append(regOpts, coord.WithSubscription(remoteSubscription(pol, logger)))
	}
	coord.Register(mcpServer, center, logger, regOpts...)

	signal.Ignore(syscall.SIGHUP)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Push resources/updated to every connected session when shared
	// state changes (another process touching the signal file included).
	pushFunc := func(method string, params any) error {
		for _, session := range sessions.all() {
			if !session.Initialized() {
				continue
			}
			notification := mcp.JSONRPCNotification{
				JSONRPC: "2.0",
				Notification: mcp.Notification{
					Method: method,
					Params: mcp.NotificationParams{AdditionalFields: map[string]any{"params": params}},
				},
			}
			select {
			case session.NotificationChannel() <- notification:
			default:
				logger.Printf("Notifier: push to %s dropped (channel full)", session.SessionID())
			}
		}
		return nil
	}
	notifier := nerve.NewNotifier(pol.SignalFilePath(), pushFunc, logger)
	center.SetNotifier(notifier)
	go notifier.Start(ctx)

	// HTTP API in the background; stdio MCP in the foreground.
	httpShutdown := startHTTPServer(st, pol, search, logger)

	logger.Println("Stdio ready")
	stdioSrv := server.NewStdioServer(mcpServer)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Printf("Stdio server stopped: %v", err)
	}

	cancel()
	httpShutdown()
	notifier.Stop()

	if search != nil {
		if err := search.Close(); err != nil {
			logger.Printf("Warning: close semantic index: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		logger.Printf("Warning: close store: %v", err)
	}
	logger.Println("Server stopped")
}

// openStore picks the store implementation from the execution mode,
// once. Everything above the store is mode-blind.
func openStore(pol *policy.Policy) (store.Store, error) {
	switch pol.Mode() {
	case policy.ModeRemote:
		return remote.New(pol.RemoteAPIURL(), pol.RemoteAPISecret(),
			remote.WithTimeout(pol.StoreTimeout()))
	case policy.ModeHosted:
		return sqlite.New(pol.SharedStorePath())
	default:
		return local.New(pol.StateFile(), pol.HistoryDir())
	}
}

// startHTTPServer serves the REST API and health endpoint. Returns a
// shutdown function. Port 0 auto-assigns so multiple instances can run.
func startHTTPServer(st store.Store, pol *policy.Policy, search *rag.Service, logger *log.Logger) func() {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", pol.HTTPPort()))
	if err != nil {
		logger.Fatalf("HTTP listen: %v", err)
	}
	actualPort := ln.Addr().(*net.TCPAddr).Port
	logger.Printf("HTTP API on :%d", actualPort)

	hub := nerve.NewHub(st, pol, logger)
	apiOpts := []httpapi.HandlerOption{httpapi.WithVersion(Version)}
	if search != nil {
		apiOpts = append(apiOpts, httpapi.WithSearch(search))
	}
	if os.Getenv("AXIS_ENV") == "production" {
		apiOpts = append(apiOpts, httpapi.WithProduction(true))
	}
	api := httpapi.NewHandler(hub, pol, logger, apiOpts...)

	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	httpServer := &http.Server{Handler: mux}
	go func() {
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
	}
}

// remoteSubscription checks the hosted endpoint's /v1/verify for the
// plan behind get_subscription_status. Failures degrade to invalid
// rather than erroring the tool.
func remoteSubscription(pol *policy.Policy, logger *log.Logger) func() coord.SubscriptionStatus {
	client := &http.Client{Timeout: pol.StoreTimeout()}
	url := strings.TrimRight(pol.RemoteAPIURL(), "/") + "/v1/verify"
	return func() coord.SubscriptionStatus {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		if err != nil {
			return coord.SubscriptionStatus{}
		}
		req.Header.Set("Authorization", "Bearer "+pol.RemoteAPISecret())
		resp, err := client.Do(req)
		if err != nil {
			logger.Printf("verify: %v", err)
			return coord.SubscriptionStatus{}
		}
		defer resp.Body.Close()
		var body struct {
			Valid      bool      `json:"valid"`
			Plan       string    `json:"plan"`
			ValidUntil time.Time `json:"validUntil"`
		}
		if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil {
			return coord.SubscriptionStatus{}
		}
		return coord.SubscriptionStatus{Valid: body.Valid, Plan: body.Plan, ValidUntil: body.ValidUntil}
	}
}

// serverInstructions is the session-start briefing every client sees.
func serverInstructions(pol *policy.Policy) string {
	return fmt.Sprintf(`Axis coordinates multiple agents working on the %q project.

Before editing any file, call propose_file_access. GRANTED means the
path is yours until the lock expires; REQUIRES_ORCHESTRATION means
another agent holds it — pick different work instead of waiting.

Work flows through the job board: post_job to add work (save the
completion key), claim_next_job to take the best available job,
complete_job when done. Completing a job does not release your locks;
unlock explicitly or let finalize_session clear them.

Share decisions and findings with update_shared_context; read the full
live picture with read_context or subscribe to %s.`,
		pol.ProjectName(), nerve.ContextResourceURI)
}

// sessionStore holds active ClientSession objects for push notifications.
type sessionStore struct {
	mu   sync.RWMutex
	data map[string]server.ClientSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{data: make(map[string]server.ClientSession)}
}

func (ss *sessionStore) set(id string, s server.ClientSession) {
	ss.mu.Lock()
	ss.data[id] = s
	ss.mu.Unlock()
}

func (ss *sessionStore) remove(id string) {
	ss.mu.Lock()
	delete(ss.data, id)
	ss.mu.Unlock()
}

func (ss *sessionStore) all() []server.ClientSession {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := make([]server.ClientSession, 0, len(ss.data))
	for _, s := range ss.data {
		out = append(out, s)
	}
	return out
}

// setupLogger writes to the log file and, when stderr is an interactive
// terminal, to stderr as well. Stdout is the MCP wire — never log there.
func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "[axis] Warning: cannot open log file %s: %v\n", logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "[axis] Warning: cannot create log dir %s: %v\n", filepath.Dir(logFilePath), err)
		}
	}

	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), "[axis] ", log.LstdFlags|log.Lshortfile)
}

// loadConfig loads policy configuration from AXIS_CONFIG or defaults.
func loadConfig(logger *log.Logger) *policy.Config {
	var cfg *policy.Config
	if configPath := os.Getenv("AXIS_CONFIG"); configPath != "" {
		var err error
		cfg, err = policy.LoadConfig(configPath)
		if err != nil {
			logger.Printf("Warning: failed to load config %s: %v, using defaults", configPath, err)
			cfg = nil
		}
	}
	if cfg == nil {
		var err error
		cfg, err = policy.LoadConfig("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load defaults: %v\n", err)
			os.Exit(1)
		}
	}
	if cfg.WorkspaceRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get working directory: %v\n", err)
			os.Exit(1)
		}
		cfg.WorkspaceRoot = cwd
	}
	return cfg
}

// runStatusCommand implements "axis-server status": open job and lock
// counts for the default project.
func runStatusCommand() {
	logger := log.New(os.Stderr, "", 0)
	cfg := loadConfig(logger)
	pol := policy.New(cfg)

	st, err := openStore(pol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pol.StoreTimeout())
	defer cancel()

	center, err := nerve.New(ctx, st, pol, pol.ProjectName(), log.New(io.Discard, "", 0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	stats, err := center.Usage(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	open := 0
	for status, n := range stats.Jobs {
		if !status.Terminal() {
			open += n
		}
	}
	fmt.Printf("mode=%s open_jobs=%d locks=%d notepad_bytes=%d\n",
		pol.Mode(), open, stats.Locks, stats.NotepadSize)
}
