package stream

import (
	"fmt"
	"strings"
)

// Size bounds carried over from the subprocess protocol: they keep a
// misbehaving child from growing the accumulated result without limit.
const (
	// MaxAssistantBytes caps the joined assistant text.
	MaxAssistantBytes = 10 * 1024 * 1024
	// MaxRawLogBytes caps the raw event log as JSON-serialized size.
	MaxRawLogBytes = 50 * 1024 * 1024
	// MaxWarnings caps how many unparseable lines are individually reported.
	MaxWarnings = 20
	// warningPreviewLen bounds how much of a bad line a warning quotes.
	warningPreviewLen = 200
)

// RunResult is the accumulator state for one run. It is mutated only through
// Apply while the process streams, and read after the process exits.
type RunResult struct {
	// SessionID is set by the first SessionStarted event; later ones are
	// recorded in the raw log but never overwrite it.
	SessionID string

	// Assistant holds assistant-visible text chunks in arrival order.
	Assistant          []string
	AssistantTruncated bool
	assistantBytes     int

	// RawLog holds every decoded event for diagnostics.
	RawLog          []map[string]any
	RawLogTruncated bool
	rawBytes        int

	// Completed and its companions reflect the terminal result event.
	Completed        bool
	CompletedSuccess bool
	ErrorClass       string

	// UnparseableCount counts undecodable lines; Warnings quotes the first
	// MaxWarnings of them.
	UnparseableCount int
	Warnings         []string
}

// NewRunResult returns an empty accumulator.
func NewRunResult() *RunResult {
	return &RunResult{}
}

// Apply folds one event into the state.
func (r *RunResult) Apply(ev Event) {
	if ev.Raw != nil {
		r.recordRaw(ev.Raw)
	}

	switch ev.Type {
	case EventSessionStarted:
		if r.SessionID == "" {
			r.SessionID = ev.SessionID
		}

	case EventAssistantText:
		r.appendAssistant(ev.Text)

	case EventCompleted:
		r.Completed = true
		r.CompletedSuccess = ev.Success
		r.ErrorClass = ev.ErrorClass

	case EventUnparseable:
		r.UnparseableCount++
		if len(r.Warnings) < MaxWarnings {
			preview := ev.Line
			if len(preview) > warningPreviewLen {
				preview = preview[:warningPreviewLen] + "..."
			}
			r.Warnings = append(r.Warnings, fmt.Sprintf("unparseable output line: %s", preview))
		}

	case EventUnknown:
		// Recorded in the raw log above; nothing else to do
	}
}

func (r *RunResult) appendAssistant(text string) {
	if r.AssistantTruncated || text == "" {
		return
	}
	if r.assistantBytes+len(text) > MaxAssistantBytes {
		r.AssistantTruncated = true
		return
	}
	r.assistantBytes += len(text)
	r.Assistant = append(r.Assistant, text)
}

func (r *RunResult) recordRaw(raw map[string]any) {
	if r.RawLogTruncated {
		return
	}
	size := estimateSize(raw)
	if r.rawBytes+size > MaxRawLogBytes {
		r.RawLogTruncated = true
		return
	}
	r.rawBytes += size
	r.RawLog = append(r.RawLog, raw)
}

// AddWarning records a caller-supplied warning, subject to the same cap
// as unparseable-line warnings.
func (r *RunResult) AddWarning(msg string) {
	if len(r.Warnings) < MaxWarnings {
		r.Warnings = append(r.Warnings, msg)
	}
}

// Message returns the assistant text chunks joined by newlines.
func (r *RunResult) Message() string {
	return strings.Join(r.Assistant, "\n")
}

// estimateSize approximates the JSON-serialized size of a decoded event
// without re-marshaling it.
func estimateSize(v any) int {
	switch val := v.(type) {
	case map[string]any:
		size := 2
		for k, item := range val {
			size += len(k) + 4 + estimateSize(item)
		}
		return size
	case []any:
		size := 2
		for _, item := range val {
			size += estimateSize(item) + 1
		}
		return size
	case string:
		return len(val) + 2
	case nil:
		return 4
	default:
		// Numbers and bools
		return 8
	}
}
