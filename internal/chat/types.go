// Package chat holds the provider-agnostic message representation that is
// both sent (after rendering) and stored, together with the translations to
// and from the OpenAI and Anthropic wire shapes.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

const (
	PartText  = "text"
	PartImage = "image"
)

type ProviderType string

const (
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
)

func ParseProviderType(v string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(v))); p {
	case ProviderOpenAI, ProviderAnthropic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider type %q", v)
	}
}

type Part struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// Content is either plain text or, when Parts is non-nil, a list of typed
// parts. It encodes as a JSON string or a JSON array accordingly.
type Content struct {
	Text  string
	Parts []Part
}

func TextContent(s string) Content {
	return Content{Text: s}
}

func PartsContent(parts ...Part) Content {
	if parts == nil {
		parts = []Part{}
	}
	return Content{Parts: parts}
}

func (c Content) HasParts() bool {
	return c.Parts != nil
}

// PlainText returns the text, joining text parts when the content is multi-part.
func (c Content) PlainText() string {
	if !c.HasParts() {
		return c.Text
	}
	texts := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		if p.Type == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.HasParts() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*c = Content{}
		return nil
	case data[0] == '[':
		var parts []Part
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("decode content parts: %w", err)
		}
		*c = PartsContent(parts...)
		return nil
	default:
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode content text: %w", err)
		}
		*c = Content{Text: s}
		return nil
	}
}

// Message is the normalized chat message. ToolCalls is only set on assistant
// messages that requested tools, ToolCallID only on tool results.
type Message struct {
	Role       string     `json:"role"`
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolResult struct {
	CallID  string
	Content string
}

// FileArtifact is what the upload normalizer produces for one file.
type FileArtifact struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Base64   string `json:"base64,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type CapabilityError struct {
	Model string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("Model %s does not support image inputs. Please use a vision-capable model like gpt-4o or claude-3.", e.Model)
}

func DecodeMessages(raw string) ([]Message, error) {
	if strings.TrimSpace(raw) == "" {
		return []Message{}, nil
	}
	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

func EncodeMessages(msgs []Message) (string, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	buf, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("encode messages: %w", err)
	}
	return string(buf), nil
}
