package claude

import (
	"errors"
	"strings"
)

// ErrEmptyPrompt is returned when the prompt is empty after trimming.
var ErrEmptyPrompt = errors.New("prompt must be a non-empty string")

// BuildArgs constructs the argument vector for the Claude CLI. The fixed
// flags request a non-interactive single-shot run with streaming JSON
// output. Operator-configured additionalArgs follow verbatim, then the
// resume flag when sessionID is non-empty. The prompt goes last, after a
// "--" guard so a prompt starting with dashes is never parsed as a flag.
// Arguments are passed as a vector, never through a shell.
func BuildArgs(prompt, sessionID string, additionalArgs []string) ([]string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
	}

	args = append(args, additionalArgs...)

	if sessionID != "" {
		args = append(args, "--resume", sessionID)
	}

	args = append(args, "--", prompt)
	return args, nil
}
