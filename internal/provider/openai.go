package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/user/llmchat/internal/chat"
)

// OpenAI talks to /v1/chat/completions on any OpenAI-compatible server.
type OpenAI struct {
	httpClient *http.Client
}

func NewOpenAI(client *http.Client) *OpenAI {
	return &OpenAI{httpClient: defaultClient(client)}
}

type openAIRequest struct {
	Model      string               `json:"model"`
	Messages   []chat.OpenAIMessage `json:"messages"`
	Stream     bool                 `json:"stream"`
	Tools      []openAITool         `json:"tools,omitempty"`
	ToolChoice string               `json:"tool_choice,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIStreamFrame struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    *int   `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamChat ignores req.SystemPrompt; the system message is expected in
// req.Messages already.
func (a *OpenAI) StreamChat(ctx context.Context, req Request, cb Callbacks) {
	body := openAIRequest{
		Model:    req.Model,
		Messages: chat.ToOpenAI(req.Messages),
		Stream:   true,
	}
	if len(req.Tools) > 0 {
		for _, t := range req.Tools {
			body.Tools = append(body.Tools, openAITool{
				Type: "function",
				Function: openAIToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  toolParameters(t.Parameters),
				},
			})
		}
		body.ToolChoice = "auto"
	}

	buf, err := json.Marshal(body)
	if err != nil {
		cb.fail(fmt.Errorf("encode openai request: %w", err))
		return
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, trimBaseURL(req.Backend.BaseURL)+"/v1/chat/completions", bytes.NewReader(buf))
	if err != nil {
		cb.fail(err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if req.Backend.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Backend.APIKey)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		cb.fail(fmt.Errorf("openai request: %w", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cb.fail(statusError("openai", resp))
		return
	}

	var full bytes.Buffer
	calls := map[int]*chat.ToolCall{}
	err = readSSE(resp.Body, func(_, data string) {
		if data == "" || data == "[DONE]" {
			return
		}
		var frame openAIStreamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			return
		}
		if len(frame.Choices) == 0 {
			return
		}
		delta := frame.Choices[0].Delta
		if delta.Content != "" {
			full.WriteString(delta.Content)
			cb.chunk(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			acc, ok := calls[idx]
			if !ok {
				acc = &chat.ToolCall{}
				calls[idx] = acc
			}
			acc.ID += tc.ID
			acc.Name += tc.Function.Name
			acc.Arguments += tc.Function.Arguments
		}
	})
	if err != nil {
		cb.fail(fmt.Errorf("read openai stream: %w", err))
		return
	}

	toolCalls := orderedCalls(calls)
	reason := "stop"
	if len(toolCalls) > 0 {
		reason = "tool_calls"
	}
	cb.done(reason, toolCalls, full.String())
}

// ListModels returns the model ids served by the backend, sorted.
func (a *OpenAI) ListModels(ctx context.Context, backend Backend) ([]string, error) {
	client := openai.NewClient(
		option.WithBaseURL(trimBaseURL(backend.BaseURL)+"/v1/"),
		option.WithAPIKey(backend.APIKey),
		option.WithHTTPClient(a.httpClient),
	)
	page, err := client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	models := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	sort.Strings(models)
	return models, nil
}

// orderedCalls drops calls without a name and returns the rest by index.
func orderedCalls(calls map[int]*chat.ToolCall) []chat.ToolCall {
	indexes := make([]int, 0, len(calls))
	for idx := range calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]chat.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		if calls[idx].Name == "" {
			continue
		}
		out = append(out, *calls[idx])
	}
	return out
}
