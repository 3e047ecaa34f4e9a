package history

import (
	"encoding/json"
	"strings"
)

// ExtractSteps walks a run's decoded stream events and extracts an outline
// of what happened: assistant text, tool calls paired with their results,
// and the terminal result event.
func ExtractSteps(events []map[string]any) []Step {
	toolCalls := make(map[string]*Step)
	var steps []Step

	for _, ev := range events {
		evType, _ := ev["type"].(string)

		switch evType {
		case "assistant":
			for _, block := range contentBlocks(ev) {
				switch blockType(block) {
				case "text":
					if text := strings.TrimSpace(stringField(block, "text")); text != "" {
						steps = append(steps, Step{
							Type:          "text",
							OutputPreview: truncate(text, PreviewLength),
							Truncated:     len(text) > PreviewLength,
						})
					}

				case "tool_use":
					inputStr := formatInput(block["input"])
					step := Step{
						Type:         "tool_call",
						Tool:         stringField(block, "name"),
						InputPreview: truncate(inputStr, PreviewLength),
						Truncated:    len(inputStr) > PreviewLength,
					}
					steps = append(steps, step)
					if id := stringField(block, "id"); id != "" {
						toolCalls[id] = &steps[len(steps)-1]
					}
				}
			}

		case "user":
			// Tool results come back as user-role messages
			for _, block := range contentBlocks(ev) {
				if blockType(block) != "tool_result" {
					continue
				}
				contentStr := formatContent(block["content"])
				if step, ok := toolCalls[stringField(block, "tool_use_id")]; ok {
					step.OutputPreview = truncate(contentStr, PreviewLength)
					if len(contentStr) > PreviewLength {
						step.Truncated = true
					}
				}
			}

		case "result":
			if text, _ := ev["result"].(string); text != "" {
				steps = append(steps, Step{
					Type:          "result",
					OutputPreview: truncate(text, PreviewLength),
					Truncated:     len(text) > PreviewLength,
				})
			}
		}
	}

	return steps
}

// contentBlocks returns the content array of an event's nested message,
// or nil if the event has no such structure.
func contentBlocks(ev map[string]any) []map[string]any {
	message, ok := ev["message"].(map[string]any)
	if !ok {
		return nil
	}
	content, ok := message["content"].([]any)
	if !ok {
		return nil
	}
	blocks := make([]map[string]any, 0, len(content))
	for _, item := range content {
		if block, ok := item.(map[string]any); ok {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func blockType(block map[string]any) string {
	return stringField(block, "type")
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func formatInput(input any) string {
	if input == nil {
		return ""
	}

	switch v := input.(type) {
	case string:
		return v
	case map[string]any:
		// Format as key: value pairs, one per line
		var parts []string
		for key, val := range v {
			valStr := formatValue(val)
			parts = append(parts, key+": "+valStr)
		}
		return strings.Join(parts, "\n")
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

func formatContent(content any) string {
	if content == nil {
		return ""
	}

	switch v := content.(type) {
	case string:
		return v
	case []any:
		// Array of content blocks
		var parts []string
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		// For multi-line strings, show first few lines
		lines := strings.Split(val, "\n")
		if len(lines) > 3 {
			return strings.Join(lines[:3], "\n") + "\n..."
		}
		return val
	case bool, int, int64, float64:
		return jsonString(val)
	default:
		return jsonString(val)
	}
}

func jsonString(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}
