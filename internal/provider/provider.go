// Package provider streams chat completions from OpenAI-style and
// Anthropic-style HTTP APIs and reports them through a common callback set.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/user/llmchat/internal/chat"
)

const maxErrorBody = 1 << 20

// Backend is the connection data an adapter needs. APIKey is plaintext.
type Backend struct {
	Type    chat.ProviderType
	BaseURL string
	APIKey  string
}

type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Request struct {
	Backend      Backend
	Model        string
	Messages     []chat.Message
	SystemPrompt string
	Tools        []ToolDef
}

// Callbacks receive the stream. OnChunk fires once per text delta in arrival
// order; exactly one of OnDone and OnError fires, last.
type Callbacks struct {
	OnChunk func(text string)
	OnDone  func(finishReason string, toolCalls []chat.ToolCall, fullText string)
	OnError func(err error)
}

func (c Callbacks) chunk(text string) {
	if c.OnChunk != nil {
		c.OnChunk(text)
	}
}

func (c Callbacks) done(reason string, calls []chat.ToolCall, text string) {
	if c.OnDone != nil {
		c.OnDone(reason, calls, text)
	}
}

func (c Callbacks) fail(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// Adapter streams one model call. StreamChat blocks until the stream ends,
// the request fails, or ctx is cancelled.
type Adapter interface {
	StreamChat(ctx context.Context, req Request, cb Callbacks)
}

// StatusError is returned through OnError when the provider answers with a
// non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api status=%d body=%s", e.Provider, e.Code, e.Body)
}

// ForType returns the adapter for a backend's provider type.
func ForType(t chat.ProviderType, client *http.Client) (Adapter, error) {
	switch t {
	case chat.ProviderOpenAI:
		return NewOpenAI(client), nil
	case chat.ProviderAnthropic:
		return NewAnthropic(client), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", t)
	}
}

func trimBaseURL(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Provider: provider, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// Streams are bounded by the request context, not a client timeout.
func defaultClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{}
}

func toolParameters(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return params
}
