// Package claude runs the Claude CLI as a subprocess, streaming its
// line-delimited JSON output into a structured outcome.
package claude

import "time"

// Options describes one CLI invocation. Immutable once constructed;
// consumed by a single Execute call.
type Options struct {
	// Prompt is the task instruction, required.
	Prompt string
	// WorkingDir is where the CLI runs; must exist and be a directory.
	WorkingDir string
	// SessionID resumes an earlier session when non-empty. An empty string
	// means a fresh session; it is never forwarded as a resume token.
	SessionID string
	// AdditionalArgs are operator-configured flags inserted verbatim.
	AdditionalArgs []string
	// Timeout bounds wall-clock run time from spawn.
	Timeout time.Duration
}

// Error types carried on failed outcomes. Errors reported by the CLI
// itself pass through under their own classification (e.g. error_max_turns).
const (
	ErrTypeInvalidInput  = "invalid_input"
	ErrTypeSpawn         = "spawn_error"
	ErrTypeTimeout       = "timeout"
	ErrTypeProcessFailed = "process_failed"
	ErrTypeNoSession     = "session_init_failed"
	ErrTypeEmptyResponse = "empty_response"
)

// ErrorInfo describes why a run failed.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Outcome is the final classified result of one run.
// Success is true only when a session identifier and at least one
// assistant message were observed and no failure condition applies.
type Outcome struct {
	Success          bool             `json:"success"`
	SessionID        string           `json:"session_id,omitempty"`
	Message          string           `json:"message"`
	MessageTruncated bool             `json:"message_truncated,omitempty"`
	RawLog           []map[string]any `json:"-"`
	RawLogTruncated  bool             `json:"raw_log_truncated,omitempty"`
	Error            *ErrorInfo       `json:"error,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
	ExitCode         int              `json:"exit_code"`
	DurationSeconds  float64          `json:"duration_seconds,omitempty"`
}

// ExitInfo captures how the process ended.
type ExitInfo struct {
	ExitCode int
	TimedOut bool
	Stderr   string
	Timeout  time.Duration
}
