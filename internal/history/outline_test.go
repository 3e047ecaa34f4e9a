package history

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func assistantEvent(blocks ...map[string]any) map[string]any {
	content := make([]any, len(blocks))
	for i, b := range blocks {
		content[i] = b
	}
	return map[string]any{
		"type":    "assistant",
		"message": map[string]any{"role": "assistant", "content": content},
	}
}

func TestExtractSteps_Text(t *testing.T) {
	t.Parallel()

	events := []map[string]any{
		assistantEvent(map[string]any{"type": "text", "text": "Let me look at the file."}),
	}

	steps := ExtractSteps(events)
	require.Len(t, steps, 1)
	require.Equal(t, "text", steps[0].Type)
	require.Equal(t, "Let me look at the file.", steps[0].OutputPreview)
	require.False(t, steps[0].Truncated)
}

func TestExtractSteps_ToolCallWithResult(t *testing.T) {
	t.Parallel()

	events := []map[string]any{
		assistantEvent(map[string]any{
			"type":  "tool_use",
			"id":    "tool-1",
			"name":  "Read",
			"input": map[string]any{"file_path": "/tmp/auth.go"},
		}),
		{
			"type": "user",
			"message": map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{
						"type":        "tool_result",
						"tool_use_id": "tool-1",
						"content":     "package auth",
					},
				},
			},
		},
	}

	steps := ExtractSteps(events)
	require.Len(t, steps, 1)
	require.Equal(t, "tool_call", steps[0].Type)
	require.Equal(t, "Read", steps[0].Tool)
	require.Contains(t, steps[0].InputPreview, "file_path: /tmp/auth.go")
	require.Equal(t, "package auth", steps[0].OutputPreview)
}

func TestExtractSteps_ResultEvent(t *testing.T) {
	t.Parallel()

	events := []map[string]any{
		{"type": "system", "subtype": "init", "session_id": "sess-1"},
		assistantEvent(map[string]any{"type": "text", "text": "Done."}),
		{"type": "result", "subtype": "success", "result": "All fixed."},
	}

	steps := ExtractSteps(events)
	require.Len(t, steps, 2)
	require.Equal(t, "text", steps[0].Type)
	require.Equal(t, "result", steps[1].Type)
	require.Equal(t, "All fixed.", steps[1].OutputPreview)
}

func TestExtractSteps_TruncatesLongContent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 500)
	events := []map[string]any{
		assistantEvent(map[string]any{"type": "text", "text": long}),
	}

	steps := ExtractSteps(events)
	require.Len(t, steps, 1)
	require.True(t, steps[0].Truncated)
	require.Len(t, steps[0].OutputPreview, PreviewLength+3) // "..." suffix
}

func TestExtractSteps_ToolResultBlocks(t *testing.T) {
	t.Parallel()

	// Tool results may arrive as arrays of text blocks
	events := []map[string]any{
		assistantEvent(map[string]any{
			"type": "tool_use", "id": "tool-2", "name": "Bash",
			"input": map[string]any{"command": "ls"},
		}),
		{
			"type": "user",
			"message": map[string]any{
				"content": []any{
					map[string]any{
						"type":        "tool_result",
						"tool_use_id": "tool-2",
						"content": []any{
							map[string]any{"type": "text", "text": "file1"},
							map[string]any{"type": "text", "text": "file2"},
						},
					},
				},
			},
		},
	}

	steps := ExtractSteps(events)
	require.Len(t, steps, 1)
	require.Equal(t, "file1\nfile2", steps[0].OutputPreview)
}

func TestExtractSteps_IgnoresUnrelatedEvents(t *testing.T) {
	t.Parallel()

	events := []map[string]any{
		{"type": "system", "subtype": "init", "session_id": "sess-1"},
		{"type": "something_new", "payload": "whatever"},
	}

	steps := ExtractSteps(events)
	require.Empty(t, steps)
}

func TestExtractSteps_SkipsBlankText(t *testing.T) {
	t.Parallel()

	events := []map[string]any{
		assistantEvent(map[string]any{"type": "text", "text": "   \n  "}),
	}

	require.Empty(t, ExtractSteps(events))
}
