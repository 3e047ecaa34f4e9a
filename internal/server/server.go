// Package server exposes run execution, history, and logs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jakvbs/claude-mcp-go/internal/api"
	"github.com/jakvbs/claude-mcp-go/internal/claude"
	"github.com/jakvbs/claude-mcp-go/internal/config"
	"github.com/jakvbs/claude-mcp-go/internal/history"
	"github.com/jakvbs/claude-mcp-go/internal/logging"
)

// RunRequest is the body of POST /run.
type RunRequest struct {
	Prompt         string   `json:"prompt"`
	WorkingDir     string   `json:"working_dir,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	AdditionalArgs []string `json:"additional_args,omitempty"`
}

// RunResponse is the body of a completed POST /run.
type RunResponse struct {
	RunID string `json:"run_id"`
	claude.Outcome
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Type          string       `json:"type"`
	Interfaces    []string     `json:"interfaces"`
	Version       string       `json:"version"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	ActiveRuns    []ActiveRun  `json:"active_runs"`
	Config        StatusConfig `json:"config"`
}

// ActiveRun previews an in-flight run in status responses.
type ActiveRun struct {
	RunID         string `json:"run_id"`
	StartedAt     string `json:"started_at"`
	PromptPreview string `json:"prompt_preview"`
}

// StatusConfig shows server config in status.
type StatusConfig struct {
	Port           int `json:"port"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

type activeRun struct {
	id        string
	prompt    string
	startedAt time.Time
	cancel    context.CancelFunc
}

// Server runs the HTTP adapter. Runs execute concurrently; a run in
// flight never blocks another.
type Server struct {
	config    *config.Config
	version   string
	startTime time.Time
	history   *history.Store
	log       *logging.Logger
	guard     *TokenGuard

	mu      sync.RWMutex
	running map[string]*activeRun

	server   *http.Server
	shutdown chan struct{}
	once     sync.Once
}

// New creates a Server from resolved configuration.
func New(cfg *config.Config, version string) (*Server, error) {
	log := logging.New(logging.Config{
		Output:     os.Stderr,
		Level:      logging.ParseLevel(cfg.LogLevel),
		Component:  "server",
		MaxEntries: 1000,
	})

	var historyStore *history.Store
	if cfg.HistoryDir != "" {
		var err error
		historyStore, err = history.NewStore(cfg.HistoryDir)
		if err != nil {
			log.Warn("failed to initialize history store", map[string]any{"error": err.Error()})
			historyStore = nil
		}
	}

	guard, err := NewTokenGuard(cfg.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("configuring auth: %w", err)
	}

	return &Server{
		config:    cfg,
		version:   version,
		startTime: time.Now(),
		history:   historyStore,
		log:       log,
		guard:     guard,
		running:   make(map[string]*activeRun),
		shutdown:  make(chan struct{}),
	}, nil
}

// Log exposes the server's logger, mainly for the main package.
func (s *Server) Log() *logging.Logger {
	return s.log
}

// ShutdownRequested is closed when a shutdown has been initiated via the API.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

// Router returns the HTTP router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.guard.Middleware)

	r.Get("/status", s.handleStatus)
	r.Post("/run", s.handleRun)
	r.Post("/shutdown", s.handleShutdown)

	// History endpoints
	r.Get("/history", s.handleListHistory)
	r.Get("/history/{id}", s.handleGetHistory)
	r.Get("/history/{id}/debug", s.handleGetHistoryDebug)

	// Logging endpoints
	r.Get("/logs", s.handleLogs)
	r.Get("/logs/stats", s.handleLogStats)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Bind, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	s.log.Info("server starting", map[string]any{
		"addr":    addr,
		"version": s.version,
		"auth":    s.guard.Enabled(),
	})
	return s.server.ListenAndServe()
}

// Shutdown cancels in-flight runs and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.once.Do(func() { close(s.shutdown) })

	s.mu.Lock()
	for _, run := range s.running {
		run.cancel()
	}
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleStatus reports version, uptime, active runs, and config.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	active := make([]ActiveRun, 0, len(s.running))
	for _, run := range s.running {
		preview := run.prompt
		if len(preview) > 50 {
			preview = preview[:50] + "..."
		}
		active = append(active, ActiveRun{
			RunID:         run.id,
			StartedAt:     run.startedAt.Format(time.RFC3339),
			PromptPreview: preview,
		})
	}
	s.mu.RUnlock()

	api.WriteJSON(w, http.StatusOK, StatusResponse{
		Type:          "claude-mcp",
		Interfaces:    []string{api.InterfaceStatusable, api.InterfaceRunnable, api.InterfaceObservable},
		Version:       s.version,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		ActiveRuns:    active,
		Config: StatusConfig{
			Port:           s.config.Port,
			TimeoutSeconds: int(s.config.Timeout().Seconds()),
		},
	})
}

// handleRun executes one CLI run synchronously and returns its outcome.
// Returns 400 if validation fails. Execution failures are reported in
// the outcome body with status 200, not as HTTP errors.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "Invalid JSON: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "prompt is required")
		return
	}

	workingDir := req.WorkingDir
	if workingDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			api.WriteError(w, http.StatusInternalServerError, "internal_error", "resolving working directory: "+err.Error())
			return
		}
		workingDir = cwd
	}

	// A blank session_id means a fresh session
	sessionID := strings.TrimSpace(req.SessionID)

	timeout := s.config.Timeout()
	if req.TimeoutSeconds > 0 {
		requested := time.Duration(req.TimeoutSeconds) * time.Second
		if requested > config.MaxTimeoutSecs*time.Second {
			requested = config.MaxTimeoutSecs * time.Second
		}
		timeout = requested
	}

	additionalArgs := s.config.AdditionalArgs
	if len(req.AdditionalArgs) > 0 {
		additionalArgs = append(append([]string{}, additionalArgs...), req.AdditionalArgs...)
	}

	runID := "run-" + uuid.New().String()[:8]
	runCtx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.mu.Lock()
	s.running[runID] = &activeRun{
		id:        runID,
		prompt:    req.Prompt,
		startedAt: time.Now(),
		cancel:    cancel,
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, runID)
		s.mu.Unlock()
	}()

	runLog := s.log.WithRun(runID)
	runLog.Info("run started", map[string]any{
		"session_id":      sessionID,
		"timeout_seconds": timeout.Seconds(),
	})

	startedAt := time.Now()
	outcome := claude.Execute(runCtx, claude.Options{
		Prompt:         req.Prompt,
		WorkingDir:     workingDir,
		SessionID:      sessionID,
		AdditionalArgs: additionalArgs,
		Timeout:        timeout,
	}, runLog)
	completedAt := time.Now()

	if outcome.Success {
		runLog.Info("run completed", map[string]any{
			"session_id":       outcome.SessionID,
			"duration_seconds": outcome.DurationSeconds,
		})
	} else {
		runLog.Error("run failed", map[string]any{
			"error_type":       outcome.Error.Type,
			"duration_seconds": outcome.DurationSeconds,
		})
	}

	s.saveRunHistory(runID, req.Prompt, workingDir, startedAt, completedAt, outcome)

	api.WriteJSON(w, http.StatusOK, RunResponse{RunID: runID, Outcome: outcome})
}

// handleShutdown initiates graceful shutdown.
// If force=false and runs are in flight, returns 409.
// If force=true, in-flight runs are cancelled.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TimeoutSeconds int  `json:"timeout_seconds"`
		Force          bool `json:"force"`
	}
	req.TimeoutSeconds = 30

	// Ignore decode errors - defaults are safe
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.RLock()
	activeCount := len(s.running)
	s.mu.RUnlock()

	if activeCount > 0 && !req.Force {
		api.WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"error":       "runs_in_progress",
			"message":     fmt.Sprintf("%d run(s) in flight. Use force=true to terminate.", activeCount),
			"active_runs": activeCount,
		})
		return
	}

	api.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":       "Shutdown initiated",
		"drain_timeout": req.TimeoutSeconds,
	})

	// Trigger shutdown in background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	}()
}

// saveRunHistory persists a finished run to the history store.
func (s *Server) saveRunHistory(runID, prompt, workingDir string, startedAt, completedAt time.Time, outcome claude.Outcome) {
	if s.history == nil {
		return
	}

	entry := &history.Entry{
		RunID:           runID,
		SessionID:       outcome.SessionID,
		Success:         outcome.Success,
		Prompt:          prompt,
		WorkingDir:      workingDir,
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		DurationSeconds: outcome.DurationSeconds,
		ExitCode:        outcome.ExitCode,
		Message:         outcome.Message,
		Warnings:        outcome.Warnings,
		Steps:           history.ExtractSteps(outcome.RawLog),
	}
	if outcome.Error != nil {
		entry.Error = &history.EntryError{
			Type:    outcome.Error.Type,
			Message: outcome.Error.Message,
		}
	}

	if err := s.history.Save(entry); err != nil {
		s.log.WithRun(runID).Warn("failed to save run history", map[string]any{
			"error": err.Error(),
		})
	}

	if len(outcome.RawLog) > 0 {
		if err := s.history.SaveDebugLog(runID, outcome.RawLog); err != nil {
			s.log.WithRun(runID).Warn("failed to save debug log", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// handleListHistory returns paginated run history.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		api.WriteError(w, http.StatusServiceUnavailable, api.ErrorUnavailable, "History storage not configured")
		return
	}

	page, err := api.ParseIntParam(r.URL.Query().Get("page"), 1, 1000000, 1)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "page "+err.Error())
		return
	}
	limit, err := api.ParseIntParam(r.URL.Query().Get("limit"), 1, 100, 20)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "limit "+err.Error())
		return
	}

	api.WriteJSON(w, http.StatusOK, s.history.List(history.ListOptions{
		Page:  page,
		Limit: limit,
	}))
}

// handleGetHistory returns a single history entry with outline.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		api.WriteError(w, http.StatusServiceUnavailable, api.ErrorUnavailable, "History storage not configured")
		return
	}

	runID := chi.URLParam(r, "id")
	entry, err := s.history.Get(runID)
	if err != nil {
		api.WriteError(w, http.StatusNotFound, api.ErrorNotFound, err.Error())
		return
	}

	api.WriteJSON(w, http.StatusOK, entry)
}

// handleGetHistoryDebug returns the raw event log for a run.
func (s *Server) handleGetHistoryDebug(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		api.WriteError(w, http.StatusServiceUnavailable, api.ErrorUnavailable, "History storage not configured")
		return
	}

	runID := chi.URLParam(r, "id")
	debugLog, err := s.history.GetDebugLog(runID)
	if err != nil {
		api.WriteError(w, http.StatusNotFound, api.ErrorNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	w.Write(debugLog)
}

// handleLogs returns log entries with optional filtering.
// Query params:
//   - level: minimum log level (debug, info, warn, error)
//   - run_id: filter by run ID
//   - since: RFC3339 timestamp to filter entries after
//   - until: RFC3339 timestamp to filter entries before
//   - limit: max entries to return (default 100)
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := logging.Query{
		Limit: 100, // Default limit
	}

	if level := r.URL.Query().Get("level"); level != "" {
		q.Level = logging.Level(level)
	}
	if runID := r.URL.Query().Get("run_id"); runID != "" {
		q.RunID = runID
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			q.Since = t
		}
	}
	if until := r.URL.Query().Get("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			q.Until = t
		}
	}
	limit, err := api.ParseIntParam(r.URL.Query().Get("limit"), 1, 1000, 100)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, api.ErrorValidation, "limit "+err.Error())
		return
	}
	q.Limit = limit

	api.WriteJSON(w, http.StatusOK, s.log.Query(q))
}

// handleLogStats returns log statistics without entries.
func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, s.log.Stats())
}
