// Package stream parses and accumulates Claude CLI stream-json output.
package stream

// EventType represents the type of stream event
type EventType int

const (
	// EventSessionStarted indicates the session init event carrying the session ID
	EventSessionStarted EventType = iota
	// EventAssistantText indicates one extractable assistant text chunk
	EventAssistantText
	// EventCompleted indicates the terminal result event
	EventCompleted
	// EventUnknown indicates a structurally valid event of an unrecognized shape
	EventUnknown
	// EventUnparseable indicates a line that could not be decoded as JSON
	EventUnparseable
)

// Event is one decoded stream event. A single output line may yield several
// events (one per extractable text chunk); Raw is set on the first event of
// each structurally valid line so the accumulator records it exactly once.
type Event struct {
	Type EventType

	// For SessionStarted events
	SessionID string

	// For AssistantText events
	Text string

	// For Completed events
	Success    bool
	ErrorClass string

	// Raw is the decoded line, set once per valid line
	Raw map[string]any

	// Line is the raw text of an unparseable line
	Line string
}
