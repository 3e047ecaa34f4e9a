package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_SaveAndGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	entry := &Entry{
		RunID:           "run-123",
		SessionID:       "session-456",
		Success:         true,
		Prompt:          "Fix the bug in auth.go",
		WorkingDir:      "/tmp/project",
		StartedAt:       time.Now().Add(-time.Minute),
		CompletedAt:     time.Now(),
		DurationSeconds: 60.0,
		Message:         "I've fixed the bug in auth.go",
	}

	err = store.Save(entry)
	require.NoError(t, err)

	// Check file was created
	_, err = os.Stat(filepath.Join(dir, "run-123.json"))
	require.NoError(t, err)

	// Retrieve and verify
	got, err := store.Get("run-123")
	require.NoError(t, err)
	require.Equal(t, entry.RunID, got.RunID)
	require.Equal(t, entry.SessionID, got.SessionID)
	require.Equal(t, entry.Prompt, got.Prompt)
	require.Equal(t, entry.Prompt, got.PromptPreview) // Under 200 chars
}

func TestStore_PreviewTruncation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	longPrompt := strings.Repeat("a", 300)

	entry := &Entry{
		RunID:       "run-long",
		Prompt:      longPrompt,
		Message:     longPrompt,
		CompletedAt: time.Now(),
	}

	err = store.Save(entry)
	require.NoError(t, err)

	got, err := store.Get("run-long")
	require.NoError(t, err)

	// Preview should be truncated to 200 chars + "..."
	require.Len(t, got.PromptPreview, 203)
	require.True(t, len(got.PromptPreview) < len(got.Prompt))
}

func TestStore_DebugLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	entry := &Entry{
		RunID:       "run-debug",
		CompletedAt: time.Now(),
	}

	err = store.Save(entry)
	require.NoError(t, err)

	events := []map[string]any{
		{"type": "system", "subtype": "init", "session_id": "sess-1"},
		{"type": "result", "subtype": "success"},
	}
	err = store.SaveDebugLog("run-debug", events)
	require.NoError(t, err)

	// Verify HasDebugLog is set
	got, err := store.Get("run-debug")
	require.NoError(t, err)
	require.True(t, got.HasDebugLog)

	// Retrieve debug log as NDJSON, one line per event
	retrieved, err := store.GetDebugLog("run-debug")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(retrieved)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"session_id":"sess-1"`)
}

func TestStore_List(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	// Create 5 entries with different completion times
	for i := 0; i < 5; i++ {
		entry := &Entry{
			RunID:       "run-" + string(rune('a'+i)),
			CompletedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		err = store.Save(entry)
		require.NoError(t, err)
	}

	// List with defaults (should return all, newest first)
	result := store.List(ListOptions{})
	require.Equal(t, 5, result.Total)
	require.Len(t, result.Entries, 5)
	require.Equal(t, "run-e", result.Entries[0].RunID) // Newest first

	// Test pagination
	result = store.List(ListOptions{Page: 1, Limit: 2})
	require.Equal(t, 5, result.Total)
	require.Equal(t, 3, result.TotalPages)
	require.Len(t, result.Entries, 2)
	require.Equal(t, "run-e", result.Entries[0].RunID)
	require.Equal(t, "run-d", result.Entries[1].RunID)

	// Page 2
	result = store.List(ListOptions{Page: 2, Limit: 2})
	require.Len(t, result.Entries, 2)
	require.Equal(t, "run-c", result.Entries[0].RunID)
}

func TestStore_Pruning(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	// Create MaxOutlineEntries + 5 entries
	for i := 0; i < MaxOutlineEntries+5; i++ {
		entry := &Entry{
			RunID:       "run-" + itoa(i),
			CompletedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		err = store.Save(entry)
		require.NoError(t, err)
	}

	// Should have pruned to MaxOutlineEntries
	result := store.List(ListOptions{Limit: 200})
	require.Equal(t, MaxOutlineEntries, result.Total)

	// Oldest entries should be gone
	_, err = store.Get("run-0")
	require.Error(t, err)
	_, err = store.Get("run-4")
	require.Error(t, err)

	// Newest entries should still exist
	_, err = store.Get("run-" + itoa(MaxOutlineEntries+4))
	require.NoError(t, err)
}

func TestStore_DebugPruning(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	// Create MaxDebugEntries + 5 entries with debug logs
	for i := 0; i < MaxDebugEntries+5; i++ {
		entry := &Entry{
			RunID:       "run-" + itoa(i),
			CompletedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		err = store.Save(entry)
		require.NoError(t, err)

		err = store.SaveDebugLog(entry.RunID, []map[string]any{{"type": "result"}})
		require.NoError(t, err)
	}

	// Oldest debug logs should be pruned, but entries should remain
	for i := 0; i < 5; i++ {
		runID := "run-" + itoa(i)
		entry, err := store.Get(runID)
		require.NoError(t, err)
		require.False(t, entry.HasDebugLog, "old debug log should be pruned for %s", runID)

		_, err = store.GetDebugLog(runID)
		require.Error(t, err)
	}

	// Newest debug logs should still exist
	for i := 5; i < MaxDebugEntries+5; i++ {
		runID := "run-" + itoa(i)
		entry, err := store.Get(runID)
		require.NoError(t, err)
		require.True(t, entry.HasDebugLog, "recent debug log should exist for %s", runID)
	}
}

func TestStore_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	// Create store and add entries
	store1, err := NewStore(dir)
	require.NoError(t, err)

	entry := &Entry{
		RunID:       "run-persist",
		SessionID:   "session-abc",
		Prompt:      "Test persistence",
		CompletedAt: time.Now(),
	}
	err = store1.Save(entry)
	require.NoError(t, err)

	err = store1.SaveDebugLog("run-persist", []map[string]any{{"type": "system"}})
	require.NoError(t, err)

	// Create new store from same directory (simulates restart)
	store2, err := NewStore(dir)
	require.NoError(t, err)

	// Entry should be loaded
	got, err := store2.Get("run-persist")
	require.NoError(t, err)
	require.Equal(t, "run-persist", got.RunID)
	require.True(t, got.HasDebugLog)
}

func TestStore_NotFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	_, err = store.Get("nonexistent")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")

	_, err = store.GetDebugLog("nonexistent")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

// itoa is a simple int to string converter for test run IDs
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	result := ""
	for i > 0 {
		result = string(rune('0'+i%10)) + result
		i /= 10
	}
	return result
}
