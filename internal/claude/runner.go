package claude

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jakvbs/claude-mcp-go/internal/logging"
	"github.com/jakvbs/claude-mcp-go/internal/stream"
)

const (
	// maxLineBytes bounds a single stdout/stderr line to keep one giant
	// line from ballooning memory. Longer lines are consumed but skipped.
	maxLineBytes = 1024 * 1024
	// maxStderrBytes caps the captured stderr diagnostics.
	maxStderrBytes = 1024 * 1024
	// waitDelay bounds how long Wait blocks on pipe closure after the
	// process is killed.
	waitDelay = 5 * time.Second
	// defaultTimeout applies when the caller passes no timeout. The
	// config layer normally resolves this before Options reach here.
	defaultTimeout = 10 * time.Minute
)

// EnvClaudeBin overrides the executable name, for tests or custom setups.
const EnvClaudeBin = "CLAUDE_BIN"

func resolveBin() string {
	if bin := os.Getenv(EnvClaudeBin); bin != "" {
		return bin
	}
	return "claude"
}

// Execute runs the Claude CLI with the given options and classifies the
// result. Every failure path yields an Outcome with a non-nil Error; the
// caller never has to interpret exit codes or stream state itself.
func Execute(ctx context.Context, opts Options, log *logging.RunLogger) Outcome {
	args, err := BuildArgs(opts.Prompt, opts.SessionID, opts.AdditionalArgs)
	if err != nil {
		return Outcome{
			Error: &ErrorInfo{Type: ErrTypeInvalidInput, Message: err.Error()},
		}
	}

	started := time.Now()
	result, info, err := run(ctx, args, opts, log)
	if err != nil {
		log.Error("spawn failed", map[string]any{"error": err.Error()})
		return Outcome{
			Error: &ErrorInfo{Type: ErrTypeSpawn, Message: err.Error()},
		}
	}

	out := Classify(result, info)
	out.DurationSeconds = time.Since(started).Seconds()
	return out
}

// run spawns the process and drives the parser/accumulator over its
// stdout while it executes. A returned error means the process never
// produced a result (spawn failure); stream-level anomalies never
// surface as errors here.
func run(ctx context.Context, args []string, opts Options, log *logging.RunLogger) (*stream.RunResult, ExitInfo, error) {
	fi, err := os.Stat(opts.WorkingDir)
	if err != nil {
		return nil, ExitInfo{}, fmt.Errorf("working directory %s: %w", opts.WorkingDir, err)
	}
	if !fi.IsDir() {
		return nil, ExitInfo{}, fmt.Errorf("working directory %s is not a directory", opts.WorkingDir)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := resolveBin()
	cmd := exec.CommandContext(runCtx, bin, args...)
	cmd.Dir = opts.WorkingDir
	setupProcessGroup(cmd)
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, ExitInfo{}, fmt.Errorf("attaching stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, ExitInfo{}, fmt.Errorf("attaching stderr: %w", err)
	}

	// Stdin stays disconnected: the CLI must never block on input

	if err := cmd.Start(); err != nil {
		return nil, ExitInfo{}, fmt.Errorf("starting %s: %w", bin, err)
	}

	log.Debug("process started", map[string]any{
		"bin":             bin,
		"timeout_seconds": timeout.Seconds(),
	})

	stderrCh := make(chan string, 1)
	go func() {
		stderrCh <- drainStderr(stderr)
	}()

	result := stream.NewRunResult()
	parser := stream.NewParser()
	reader := bufio.NewReader(stdout)

	for {
		line, truncated, readErr := readLimitedLine(reader, maxLineBytes)
		if truncated {
			log.Warn("output line exceeded limit", map[string]any{"limit_bytes": maxLineBytes})
			result.AddWarning(fmt.Sprintf("output line exceeded %d bytes and was skipped", maxLineBytes))
		} else if len(line) > 0 {
			for _, ev := range parser.ParseLine(line) {
				result.Apply(ev)
				logEvent(log, ev)
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				log.Warn("reading process output", map[string]any{"error": readErr.Error()})
			}
			break
		}
	}

	waitErr := cmd.Wait()
	info := ExitInfo{
		Stderr:   <-stderrCh,
		TimedOut: runCtx.Err() == context.DeadlineExceeded,
		Timeout:  timeout,
	}
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			info.ExitCode = exitErr.ExitCode()
		} else {
			log.Warn("waiting for process", map[string]any{"error": waitErr.Error()})
			info.ExitCode = -1
		}
	}

	return result, info, nil
}

// readLimitedLine reads one line, storing at most max bytes of it. The
// remainder of an over-long line is consumed so the next read starts at
// the following line. Returns io.EOF together with any final unterminated
// line content.
func readLimitedLine(r *bufio.Reader, max int) ([]byte, bool, error) {
	var (
		buf   []byte
		total int
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if err == nil {
			// Strip the terminator before accounting
			chunk = chunk[:len(chunk)-1]
			if n := len(chunk); n > 0 && chunk[n-1] == '\r' {
				chunk = chunk[:n-1]
			}
		}
		total += len(chunk)
		if room := max - len(buf); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			buf = append(buf, chunk...)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return buf, total > max, err
	}
}

// drainStderr captures stderr up to maxStderrBytes, then keeps consuming
// so the child cannot block on a full pipe.
func drainStderr(r io.Reader) string {
	var sb strings.Builder
	reader := bufio.NewReader(r)
	truncated := false

	for {
		line, _, err := readLimitedLine(reader, maxLineBytes)
		if len(line) > 0 && !truncated {
			if sb.Len()+len(line)+1 > maxStderrBytes {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString("[... stderr truncated due to size limit ...]")
				truncated = true
			} else {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.Write(line)
			}
		}
		if err != nil {
			return sb.String()
		}
	}
}

func logEvent(log *logging.RunLogger, ev stream.Event) {
	switch ev.Type {
	case stream.EventSessionStarted:
		log.Debug("session started", map[string]any{"session_id": ev.SessionID})
	case stream.EventAssistantText:
		log.Debug("assistant text", map[string]any{"length": len(ev.Text)})
	case stream.EventCompleted:
		log.Debug("result event", map[string]any{
			"success":     ev.Success,
			"error_class": ev.ErrorClass,
		})
	case stream.EventUnparseable:
		log.Warn("unparseable output line", map[string]any{"length": len(ev.Line)})
	}
}
