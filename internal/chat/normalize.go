package chat

import (
	"strings"
)

var visionModelFragments = []string{
	"gpt-4o",
	"gpt-4-turbo",
	"gpt-4-vision",
	"claude-3",
	"claude-opus",
	"claude-sonnet",
	"claude-haiku",
	"vision",
}

// SupportsVision reports whether model is known to accept image input.
func SupportsVision(model string) bool {
	m := strings.ToLower(model)
	for _, fragment := range visionModelFragments {
		if strings.Contains(m, fragment) {
			return true
		}
	}
	return false
}

// BuildUserMessage folds text artifacts into the message text and turns image
// artifacts into parts laid out the way provider expects them. Images sent to
// a model without vision support yield a *CapabilityError.
func BuildUserMessage(content string, files []FileArtifact, model string, provider ProviderType) (Message, error) {
	var text strings.Builder
	text.WriteString(content)

	var images []FileArtifact
	for _, f := range files {
		switch f.Type {
		case "text":
			text.WriteString("\n\n[File: ")
			text.WriteString(f.Filename)
			text.WriteString("]\n")
			text.WriteString(f.Content)
		case "image":
			images = append(images, f)
		}
	}

	if len(images) == 0 {
		return Message{Role: RoleUser, Content: TextContent(text.String())}, nil
	}
	if !SupportsVision(model) {
		return Message{}, &CapabilityError{Model: model}
	}

	textPart := Part{Type: PartText, Text: text.String()}
	parts := make([]Part, 0, len(images)+1)
	if provider != ProviderAnthropic {
		parts = append(parts, textPart)
	}
	for _, img := range images {
		parts = append(parts, Part{Type: PartImage, MediaType: img.MimeType, Data: img.Base64})
	}
	if provider == ProviderAnthropic {
		parts = append(parts, textPart)
	}
	return Message{Role: RoleUser, Content: PartsContent(parts...)}, nil
}

// AppendToolRound appends the assistant message that requested calls followed
// by one tool message per result, in result order.
func AppendToolRound(msgs []Message, text string, calls []ToolCall, results []ToolResult) []Message {
	out := make([]Message, 0, len(msgs)+1+len(results))
	out = append(out, msgs...)
	out = append(out, Message{
		Role:      RoleAssistant,
		Content:   TextContent(text),
		ToolCalls: append([]ToolCall(nil), calls...),
	})
	for _, r := range results {
		out = append(out, Message{
			Role:       RoleTool,
			Content:    TextContent(r.Content),
			ToolCallID: r.CallID,
		})
	}
	return out
}

// PrepareForProvider returns the list to send. OpenAI-style providers receive
// the system prompt as a leading system message; Anthropic-style providers get
// it out of band, so msgs is returned as is.
func PrepareForProvider(provider ProviderType, systemPrompt string, msgs []Message) []Message {
	if provider != ProviderOpenAI || systemPrompt == "" {
		return msgs
	}
	for _, m := range msgs {
		if m.Role == RoleSystem {
			return msgs
		}
	}
	out := make([]Message, 0, len(msgs)+1)
	out = append(out, Message{Role: RoleSystem, Content: TextContent(systemPrompt)})
	return append(out, msgs...)
}

// FoldForStorage drops system messages; the system prompt lives on the project.
func FoldForStorage(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}
