package claude

import (
	"fmt"
	"strings"

	"github.com/jakvbs/claude-mcp-go/internal/stream"
)

// Classify turns accumulated stream state and process exit information
// into a final Outcome. Checks run in a fixed order so that each failure
// reports its most specific cause: timeout first, then process failure,
// then CLI-reported errors, then stream-level problems.
func Classify(result *stream.RunResult, info ExitInfo) Outcome {
	out := Outcome{
		SessionID:        result.SessionID,
		Message:          result.Message(),
		MessageTruncated: result.AssistantTruncated,
		RawLog:           result.RawLog,
		RawLogTruncated:  result.RawLogTruncated,
		Warnings:         result.Warnings,
		ExitCode:         info.ExitCode,
	}

	switch {
	case info.TimedOut:
		out.Error = &ErrorInfo{
			Type:    ErrTypeTimeout,
			Message: fmt.Sprintf("run exceeded timeout of %.0f seconds and was killed", info.Timeout.Seconds()),
		}

	case info.ExitCode != 0 && !result.Completed:
		msg := fmt.Sprintf("process exited with code %d before reporting a result", info.ExitCode)
		if stderr := strings.TrimSpace(info.Stderr); stderr != "" {
			msg += "\nstderr: " + stderr
		}
		out.Error = &ErrorInfo{Type: ErrTypeProcessFailed, Message: msg}

	case result.Completed && !result.CompletedSuccess:
		// The CLI classified its own failure; pass that through
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("run failed with %s", result.ErrorClass)
		}
		if stderr := strings.TrimSpace(info.Stderr); stderr != "" {
			msg += "\nstderr: " + stderr
		}
		out.Message = ""
		out.Error = &ErrorInfo{Type: result.ErrorClass, Message: msg}

	case result.SessionID == "":
		out.Error = &ErrorInfo{
			Type:    ErrTypeNoSession,
			Message: "no session identifier observed in process output",
		}

	case out.Message == "":
		out.Error = &ErrorInfo{
			Type:    ErrTypeEmptyResponse,
			Message: "process produced no assistant output",
		}

	default:
		out.Success = true
		if stderr := strings.TrimSpace(info.Stderr); stderr != "" {
			out.Warnings = append(out.Warnings, "stderr: "+stderr)
		}
	}

	return out
}
