package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    json.RawMessage  `json:"content"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type OpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function OpenAIFunctionCall `json:"function"`
}

type OpenAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type OpenAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *OpenAIImageURL `json:"image_url,omitempty"`
}

type OpenAIImageURL struct {
	URL string `json:"url"`
}

func (p OpenAIPart) MarshalJSON() ([]byte, error) {
	if p.Type == "text" {
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{p.Type, p.Text})
	}
	type plain OpenAIPart
	return json.Marshal(plain(p))
}

var jsonNull = json.RawMessage("null")

// ToOpenAI renders normalized messages as chat-completions messages.
func ToOpenAI(msgs []Message) []OpenAIMessage {
	out := make([]OpenAIMessage, 0, len(msgs))
	for _, m := range msgs {
		wire := OpenAIMessage{Role: m.Role, ToolCallID: m.ToolCallID}
		switch {
		case m.Role == RoleAssistant && len(m.ToolCalls) > 0:
			wire.Content = jsonNull
			if m.Content.PlainText() != "" {
				wire.Content = mustJSON(m.Content.PlainText())
			}
			for _, tc := range m.ToolCalls {
				wire.ToolCalls = append(wire.ToolCalls, OpenAIToolCall{
					ID:       tc.ID,
					Type:     "function",
					Function: OpenAIFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
				})
			}
		case m.Content.HasParts():
			parts := make([]OpenAIPart, 0, len(m.Content.Parts))
			for _, p := range m.Content.Parts {
				switch p.Type {
				case PartText:
					parts = append(parts, OpenAIPart{Type: "text", Text: p.Text})
				case PartImage:
					parts = append(parts, OpenAIPart{
						Type:     "image_url",
						ImageURL: &OpenAIImageURL{URL: "data:" + p.MediaType + ";base64," + p.Data},
					})
				}
			}
			wire.Content = mustJSON(parts)
		default:
			wire.Content = mustJSON(m.Content.Text)
		}
		out = append(out, wire)
	}
	return out
}

// FromOpenAI folds chat-completions messages back into normalized form.
func FromOpenAI(wire []OpenAIMessage) ([]Message, error) {
	out := make([]Message, 0, len(wire))
	for i, w := range wire {
		m := Message{Role: w.Role, ToolCallID: w.ToolCallID}
		content, err := decodeOpenAIContent(w.Content)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		m.Content = content
		for _, tc := range w.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeOpenAIContent(raw json.RawMessage) (Content, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Content{}, nil
	}
	if trimmed[0] != '[' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Content{}, fmt.Errorf("decode content: %w", err)
		}
		return TextContent(s), nil
	}

	var wireParts []OpenAIPart
	if err := json.Unmarshal(raw, &wireParts); err != nil {
		return Content{}, fmt.Errorf("decode content parts: %w", err)
	}
	parts := make([]Part, 0, len(wireParts))
	for _, wp := range wireParts {
		switch wp.Type {
		case "text":
			parts = append(parts, Part{Type: PartText, Text: wp.Text})
		case "image_url":
			if wp.ImageURL == nil {
				continue
			}
			mediaType, data, ok := parseDataURI(wp.ImageURL.URL)
			if !ok {
				return Content{}, fmt.Errorf("unsupported image url %q", truncateForError(wp.ImageURL.URL))
			}
			parts = append(parts, Part{Type: PartImage, MediaType: mediaType, Data: data})
		}
	}
	return PartsContent(parts...), nil
}

func parseDataURI(uri string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return "", "", false
	}
	mediaType, data, found = strings.Cut(rest, ";base64,")
	if !found {
		return "", "", false
	}
	return mediaType, data, true
}

func truncateForError(s string) string {
	if len(s) <= 40 {
		return s
	}
	return s[:40] + "..."
}

func mustJSON(v any) json.RawMessage {
	buf, err := json.Marshal(v)
	if err != nil {
		// Only strings and part slices reach here.
		panic(err)
	}
	return buf
}
