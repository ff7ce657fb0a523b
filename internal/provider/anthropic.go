package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/user/llmchat/internal/chat"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// Anthropic talks to the Messages API of any Anthropic-compatible server.
type Anthropic struct {
	httpClient *http.Client
}

func NewAnthropic(client *http.Client) *Anthropic {
	return &Anthropic{httpClient: defaultClient(client)}
}

type anthropicRequest struct {
	Model     string                  `json:"model"`
	MaxTokens int                     `json:"max_tokens"`
	Messages  []chat.AnthropicMessage `json:"messages"`
	Stream    bool                    `json:"stream"`
	System    string                  `json:"system,omitempty"`
	Tools     []anthropicTool         `json:"tools,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicStreamEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type toolUseBlock struct {
	id    string
	name  string
	input strings.Builder
}

func (a *Anthropic) StreamChat(ctx context.Context, req Request, cb Callbacks) {
	body := anthropicRequest{
		Model:     req.Model,
		MaxTokens: anthropicMaxTokens,
		Messages:  chat.ToAnthropic(req.Messages),
		Stream:    true,
		System:    req.SystemPrompt,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: toolParameters(t.Parameters),
		})
	}

	buf, err := json.Marshal(body)
	if err != nil {
		cb.fail(fmt.Errorf("encode anthropic request: %w", err))
		return
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, trimBaseURL(req.Backend.BaseURL)+"/v1/messages", bytes.NewReader(buf))
	if err != nil {
		cb.fail(err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if req.Backend.APIKey != "" {
		httpReq.Header.Set("x-api-key", req.Backend.APIKey)
	}
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		cb.fail(fmt.Errorf("anthropic request: %w", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cb.fail(statusError("anthropic", resp))
		return
	}

	var full bytes.Buffer
	stopReason := "end_turn"
	blocks := map[int]*toolUseBlock{}
	var streamErr error

	err = readSSE(resp.Body, func(eventName, data string) {
		if streamErr != nil || data == "" {
			return
		}
		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return
		}
		evType := event.Type
		if evType == "" {
			evType = eventName
		}

		switch evType {
		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				blocks[event.Index] = &toolUseBlock{id: event.ContentBlock.ID, name: event.ContentBlock.Name}
			}
		case "content_block_delta":
			if event.Delta == nil {
				return
			}
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text == "" {
					return
				}
				full.WriteString(event.Delta.Text)
				cb.chunk(event.Delta.Text)
			case "input_json_delta":
				if b, ok := blocks[event.Index]; ok {
					b.input.WriteString(event.Delta.PartialJSON)
				}
			}
		case "error":
			msg := "anthropic stream error"
			if event.Error != nil && event.Error.Message != "" {
				msg = fmt.Sprintf("anthropic stream error: %s: %s", event.Error.Type, event.Error.Message)
			}
			streamErr = errors.New(msg)
		}
	})
	if err != nil {
		cb.fail(fmt.Errorf("read anthropic stream: %w", err))
		return
	}
	if streamErr != nil {
		cb.fail(streamErr)
		return
	}

	indexes := make([]int, 0, len(blocks))
	for idx := range blocks {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	toolCalls := make([]chat.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		b := blocks[idx]
		if b.name == "" {
			continue
		}
		toolCalls = append(toolCalls, chat.ToolCall{
			ID:        b.id,
			Name:      b.name,
			Arguments: chat.CompactArguments(b.input.String()),
		})
	}
	cb.done(stopReason, toolCalls, full.String())
}

// Ping sends a one-token request to check that the key and model work.
func (a *Anthropic) Ping(ctx context.Context, backend Backend, model string) error {
	client := anthropic.NewClient(
		option.WithBaseURL(trimBaseURL(backend.BaseURL)+"/"),
		option.WithAPIKey(backend.APIKey),
		option.WithHTTPClient(a.httpClient),
		option.WithMaxRetries(0),
	)
	_, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("anthropic ping failed: %w", err)
	}
	return nil
}
