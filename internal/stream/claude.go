package stream

import (
	"encoding/json"
)

// Parser decodes single lines of Claude CLI stream-json output into events.
// It is stateless; one parser may be shared across lines of a single run.
type Parser struct{}

// NewParser creates a parser for Claude stream output.
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses one line from the stream. Returns nil for blank lines.
// A line that is not valid JSON yields a single Unparseable event; a valid
// line of unrecognized shape yields a single Unknown event. Decoding never
// fails the run.
func (p *Parser) ParseLine(line []byte) []Event {
	if len(line) == 0 {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return []Event{{Type: EventUnparseable, Line: string(line)}}
	}

	lineType, _ := raw["type"].(string)
	var events []Event

	switch lineType {
	case "system":
		if subtype, _ := raw["subtype"].(string); subtype == "init" {
			id, _ := raw["session_id"].(string)
			if id == "" {
				// Init event without a usable identifier
				return []Event{{Type: EventUnparseable, Raw: raw, Line: string(line)}}
			}
			events = append(events, Event{Type: EventSessionStarted, SessionID: id})
		}

	case "session":
		// Compact init shape: {"type":"session","id":"..."}
		id, _ := raw["id"].(string)
		if id == "" {
			id, _ = raw["session_id"].(string)
		}
		if id == "" {
			return []Event{{Type: EventUnparseable, Raw: raw, Line: string(line)}}
		}
		events = append(events, Event{Type: EventSessionStarted, SessionID: id})

	case "assistant":
		for _, text := range assistantTexts(raw) {
			events = append(events, Event{Type: EventAssistantText, Text: text})
		}

	case "result":
		// A string result field counts as assistant-visible text
		if text, _ := raw["result"].(string); text != "" {
			events = append(events, Event{Type: EventAssistantText, Text: text})
		}
		success, class := completion(raw)
		events = append(events, Event{Type: EventCompleted, Success: success, ErrorClass: class})
	}

	if len(events) == 0 {
		return []Event{{Type: EventUnknown, Raw: raw}}
	}

	// Attach the decoded line to the first event so it is recorded once
	events[0].Raw = raw
	return events
}

// assistantTexts extracts the textual content portions of an assistant
// message event, ignoring tool_use and other non-text blocks. A compact
// top-level "text" field is accepted as a single chunk.
func assistantTexts(raw map[string]any) []string {
	var texts []string

	if message, ok := raw["message"].(map[string]any); ok {
		if content, ok := message["content"].([]any); ok {
			for _, item := range content {
				block, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if blockType, _ := block["type"].(string); blockType != "text" {
					continue
				}
				if text, _ := block["text"].(string); text != "" {
					texts = append(texts, text)
				}
			}
			return texts
		}
	}

	if text, _ := raw["text"].(string); text != "" {
		texts = append(texts, text)
	}
	return texts
}

// completion reads the success flag and error classification from a
// terminal result event. Success comes from an explicit "success" flag
// when present, otherwise from "is_error"; absent both, an error subtype
// decides. The classification falls back to "error" when the event gives
// no usable error-type field.
func completion(raw map[string]any) (bool, string) {
	subtype, _ := raw["subtype"].(string)

	success := true
	if v, ok := raw["success"].(bool); ok {
		success = v
	} else if v, ok := raw["is_error"].(bool); ok {
		success = !v
	} else if subtype != "" {
		success = subtype == "success"
	}

	if success {
		return true, ""
	}

	class := subtype
	if class == "" || class == "success" {
		class, _ = raw["error"].(string)
	}
	if class == "" {
		class = "error"
	}
	return false, class
}
