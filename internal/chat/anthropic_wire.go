package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type AnthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// AnthropicBlock is one content block. Only the fields of its Type are
// encoded; decoding accepts any of them.
type AnthropicBlock struct {
	Type      string                `json:"type"`
	Text      string                `json:"text,omitempty"`
	Source    *AnthropicImageSource `json:"source,omitempty"`
	ID        string                `json:"id,omitempty"`
	Name      string                `json:"name,omitempty"`
	Input     json.RawMessage       `json:"input,omitempty"`
	ToolUseID string                `json:"tool_use_id,omitempty"`
	Content   string                `json:"content,omitempty"`
}

type AnthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func (b AnthropicBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case "text":
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{b.Type, b.Text})
	case "image":
		return json.Marshal(struct {
			Type   string                `json:"type"`
			Source *AnthropicImageSource `json:"source"`
		}{b.Type, b.Source})
	case "tool_use":
		input := b.Input
		if len(input) == 0 {
			input = json.RawMessage("{}")
		}
		return json.Marshal(struct {
			Type  string          `json:"type"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}{b.Type, b.ID, b.Name, input})
	case "tool_result":
		return json.Marshal(struct {
			Type      string `json:"type"`
			ToolUseID string `json:"tool_use_id"`
			Content   string `json:"content"`
		}{b.Type, b.ToolUseID, b.Content})
	}
	type plain AnthropicBlock
	return json.Marshal(plain(b))
}

// ToAnthropic renders normalized messages as Messages API turns. System
// messages are dropped, and each run of consecutive tool messages becomes a
// single user turn of tool_result blocks.
func ToAnthropic(msgs []Message) []AnthropicMessage {
	out := make([]AnthropicMessage, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		switch {
		case m.Role == RoleSystem:
			continue
		case m.Role == RoleTool:
			var results []AnthropicBlock
			for ; i < len(msgs) && msgs[i].Role == RoleTool; i++ {
				results = append(results, AnthropicBlock{
					Type:      "tool_result",
					ToolUseID: msgs[i].ToolCallID,
					Content:   msgs[i].Content.PlainText(),
				})
			}
			i--
			out = append(out, AnthropicMessage{Role: RoleUser, Content: mustJSON(results)})
		case m.Role == RoleAssistant && len(m.ToolCalls) > 0:
			blocks := make([]AnthropicBlock, 0, len(m.ToolCalls)+1)
			if text := m.Content.PlainText(); text != "" {
				blocks = append(blocks, AnthropicBlock{Type: "text", Text: text})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, AnthropicBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: argumentsAsInput(tc.Arguments),
				})
			}
			out = append(out, AnthropicMessage{Role: RoleAssistant, Content: mustJSON(blocks)})
		case m.Content.HasParts():
			blocks := make([]AnthropicBlock, 0, len(m.Content.Parts))
			for _, p := range m.Content.Parts {
				switch p.Type {
				case PartText:
					blocks = append(blocks, AnthropicBlock{Type: "text", Text: p.Text})
				case PartImage:
					blocks = append(blocks, AnthropicBlock{
						Type:   "image",
						Source: &AnthropicImageSource{Type: "base64", MediaType: p.MediaType, Data: p.Data},
					})
				}
			}
			out = append(out, AnthropicMessage{Role: m.Role, Content: mustJSON(blocks)})
		default:
			out = append(out, AnthropicMessage{Role: m.Role, Content: mustJSON(m.Content.Text)})
		}
	}
	return out
}

// FromAnthropic folds Messages API turns back into normalized form. A user
// turn made only of tool_result blocks expands into one tool message each.
func FromAnthropic(wire []AnthropicMessage) ([]Message, error) {
	out := make([]Message, 0, len(wire))
	for i, w := range wire {
		trimmed := bytes.TrimSpace(w.Content)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			var s string
			if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
				if err := json.Unmarshal(trimmed, &s); err != nil {
					return nil, fmt.Errorf("message %d: decode content: %w", i, err)
				}
			}
			out = append(out, Message{Role: w.Role, Content: TextContent(s)})
			continue
		}

		var blocks []AnthropicBlock
		if err := json.Unmarshal(trimmed, &blocks); err != nil {
			return nil, fmt.Errorf("message %d: decode blocks: %w", i, err)
		}

		if w.Role == RoleUser && len(blocks) > 0 && allToolResults(blocks) {
			for _, b := range blocks {
				out = append(out, Message{Role: RoleTool, ToolCallID: b.ToolUseID, Content: TextContent(b.Content)})
			}
			continue
		}

		if w.Role == RoleAssistant && hasToolUse(blocks) {
			m := Message{Role: RoleAssistant}
			var text []string
			for _, b := range blocks {
				switch b.Type {
				case "text":
					text = append(text, b.Text)
				case "tool_use":
					m.ToolCalls = append(m.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Arguments: compactArguments(b.Input)})
				}
			}
			m.Content = TextContent(strings.Join(text, ""))
			out = append(out, m)
			continue
		}

		parts := make([]Part, 0, len(blocks))
		for _, b := range blocks {
			switch b.Type {
			case "text":
				parts = append(parts, Part{Type: PartText, Text: b.Text})
			case "image":
				if b.Source == nil {
					continue
				}
				parts = append(parts, Part{Type: PartImage, MediaType: b.Source.MediaType, Data: b.Source.Data})
			}
		}
		out = append(out, Message{Role: w.Role, Content: PartsContent(parts...)})
	}
	return out, nil
}

// CompactArguments re-serializes a JSON arguments buffer without whitespace.
// Buffers that are empty or do not parse become "{}".
func CompactArguments(raw string) string {
	return compactArguments(json.RawMessage(raw))
}

func compactArguments(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil || !json.Valid(buf.Bytes()) {
		return "{}"
	}
	return buf.String()
}

func argumentsAsInput(args string) json.RawMessage {
	return json.RawMessage(compactArguments(json.RawMessage(args)))
}

func allToolResults(blocks []AnthropicBlock) bool {
	for _, b := range blocks {
		if b.Type != "tool_result" {
			return false
		}
	}
	return true
}

func hasToolUse(blocks []AnthropicBlock) bool {
	for _, b := range blocks {
		if b.Type == "tool_use" {
			return true
		}
	}
	return false
}
