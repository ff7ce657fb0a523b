package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/user/llmchat/internal/chat"
)

type streamResult struct {
	chunks []string
	reason string
	calls  []chat.ToolCall
	text   string
	err    error
	dones  int
}

func collect(t *testing.T, a Adapter, req Request) *streamResult {
	t.Helper()
	res := &streamResult{}
	a.StreamChat(context.Background(), req, Callbacks{
		OnChunk: func(text string) { res.chunks = append(res.chunks, text) },
		OnDone: func(reason string, calls []chat.ToolCall, text string) {
			res.dones++
			res.reason, res.calls, res.text = reason, calls, text
		},
		OnError: func(err error) { res.err = err },
	})
	return res
}

func sseServer(t *testing.T, path string, body string, inspect func(r *http.Request, payload map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("path = %s, want %s", r.URL.Path, path)
		}
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}
		if inspect != nil {
			inspect(r, payload)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIStreamsTextAndReassemblesToolCalls(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: not-json`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"get_datetime","arguments":""}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"web_search","arguments":"{\"a\":1"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":",\"b\":2}"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":2,"id":"call_c","function":{"arguments":"{}"}}]}}]}`,
		`data: [DONE]`,
		``,
	}, "\n\n")

	srv := sseServer(t, "/v1/chat/completions", stream, func(r *http.Request, payload map[string]any) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if payload["stream"] != true || payload["tool_choice"] != "auto" {
			t.Errorf("payload = %#v", payload)
		}
		tools, _ := payload["tools"].([]any)
		if len(tools) != 1 {
			t.Errorf("tools = %#v", payload["tools"])
		}
		msgs, _ := payload["messages"].([]any)
		if len(msgs) != 2 {
			t.Errorf("messages = %#v", payload["messages"])
		}
	})

	res := collect(t, NewOpenAI(srv.Client()), Request{
		Backend: Backend{Type: chat.ProviderOpenAI, BaseURL: srv.URL + "/", APIKey: "sk-test"},
		Model:   "gpt-4o",
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: chat.TextContent("sys")},
			{Role: chat.RoleUser, Content: chat.TextContent("hi")},
		},
		Tools: []ToolDef{{Name: "web_search", Description: "search"}},
	})

	if res.err != nil {
		t.Fatalf("OnError(%v)", res.err)
	}
	if res.dones != 1 {
		t.Fatalf("OnDone called %d times", res.dones)
	}
	if !reflect.DeepEqual(res.chunks, []string{"Hel", "lo"}) || res.text != "Hello" {
		t.Fatalf("chunks = %#v text = %q", res.chunks, res.text)
	}
	want := []chat.ToolCall{
		{ID: "call_a", Name: "web_search", Arguments: `{"a":1,"b":2}`},
		{ID: "call_b", Name: "get_datetime", Arguments: ""},
	}
	if !reflect.DeepEqual(res.calls, want) {
		t.Fatalf("calls = %#v", res.calls)
	}
	if res.reason != "tool_calls" {
		t.Fatalf("reason = %q", res.reason)
	}
}

func TestOpenAIOmitsToolsWhenEmpty(t *testing.T) {
	srv := sseServer(t, "/v1/chat/completions", "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n", func(_ *http.Request, payload map[string]any) {
		if _, ok := payload["tools"]; ok {
			t.Errorf("tools should be omitted: %#v", payload)
		}
		if _, ok := payload["tool_choice"]; ok {
			t.Errorf("tool_choice should be omitted: %#v", payload)
		}
	})

	res := collect(t, NewOpenAI(srv.Client()), Request{
		Backend:  Backend{BaseURL: srv.URL},
		Model:    "gpt-4o",
		Messages: []chat.Message{{Role: chat.RoleUser, Content: chat.TextContent("hi")}},
	})
	if res.err != nil || res.reason != "stop" || len(res.calls) != 0 {
		t.Fatalf("result = %#v", res)
	}
}

func TestOpenAINon2xxReportsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	res := collect(t, NewOpenAI(srv.Client()), Request{Backend: Backend{BaseURL: srv.URL}, Model: "gpt-4o"})
	var statusErr *StatusError
	if !errors.As(res.err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", res.err)
	}
	if statusErr.Code != http.StatusUnauthorized || !strings.Contains(statusErr.Body, "bad key") {
		t.Fatalf("StatusError = %#v", statusErr)
	}
	if res.dones != 0 || len(res.chunks) != 0 {
		t.Fatalf("no further processing expected: %#v", res)
	}
}

func TestOpenAIConnectionFailureReportsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := collect(t, NewOpenAI(nil), Request{Backend: Backend{BaseURL: url}, Model: "gpt-4o"})
	if res.err == nil || res.dones != 0 {
		t.Fatalf("result = %#v", res)
	}
}

func TestOpenAIListModelsSorted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"gpt-4o","object":"model","created":1,"owned_by":"x"},{"id":"gpt-3.5-turbo","object":"model","created":1,"owned_by":"x"}]}`)
	}))
	defer srv.Close()

	models, err := NewOpenAI(srv.Client()).ListModels(context.Background(), Backend{BaseURL: srv.URL + "/", APIKey: "k"})
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if !reflect.DeepEqual(models, []string{"gpt-3.5-turbo", "gpt-4o"}) {
		t.Fatalf("models = %#v", models)
	}
}

func TestAnthropicStreamsTextAndToolUse(t *testing.T) {
	stream := strings.Join([]string{
		"event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"m\"}}",
		"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Let me \"}}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"check.\"}}",
		"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":1,\"content_block\":{\"type\":\"tool_use\",\"id\":\"toolu_1\",\"name\":\"web_search\",\"input\":{}}}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":1,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\\\"a\\\":1\"}}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":1,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\",\\\"b\\\":2}\"}}",
		"event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":2,\"content_block\":{\"type\":\"tool_use\",\"id\":\"toolu_2\",\"name\":\"get_datetime\",\"input\":{}}}",
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":2,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{broken\"}}",
		"event: message_delta\ndata: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"tool_use\"}}",
		"event: message_stop\ndata: {\"type\":\"message_stop\"}",
		"",
	}, "\n\n")

	srv := sseServer(t, "/v1/messages", stream, func(r *http.Request, payload map[string]any) {
		if r.Header.Get("x-api-key") != "sk-ant" || r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("headers = %#v", r.Header)
		}
		if payload["system"] != "be brief" || payload["max_tokens"] != float64(4096) {
			t.Errorf("payload = %#v", payload)
		}
		msgs, _ := payload["messages"].([]any)
		if len(msgs) != 1 {
			t.Errorf("system messages should be filtered: %#v", payload["messages"])
		}
		tools, _ := payload["tools"].([]any)
		if len(tools) != 1 {
			t.Errorf("tools = %#v", payload["tools"])
			return
		}
		if _, ok := tools[0].(map[string]any)["input_schema"]; !ok {
			t.Errorf("tool missing input_schema: %#v", tools[0])
		}
	})

	res := collect(t, NewAnthropic(srv.Client()), Request{
		Backend: Backend{BaseURL: srv.URL, APIKey: "sk-ant"},
		Model:   "claude-3-5-sonnet-20241022",
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: chat.TextContent("ignored")},
			{Role: chat.RoleUser, Content: chat.TextContent("hi")},
		},
		SystemPrompt: "be brief",
		Tools:        []ToolDef{{Name: "web_search", Description: "search"}},
	})

	if res.err != nil {
		t.Fatalf("OnError(%v)", res.err)
	}
	if !reflect.DeepEqual(res.chunks, []string{"Let me ", "check."}) || res.text != "Let me check." {
		t.Fatalf("chunks = %#v text = %q", res.chunks, res.text)
	}
	want := []chat.ToolCall{
		{ID: "toolu_1", Name: "web_search", Arguments: `{"a":1,"b":2}`},
		{ID: "toolu_2", Name: "get_datetime", Arguments: `{}`},
	}
	if !reflect.DeepEqual(res.calls, want) {
		t.Fatalf("calls = %#v", res.calls)
	}
	if res.reason != "tool_use" || res.dones != 1 {
		t.Fatalf("reason = %q dones = %d", res.reason, res.dones)
	}
}

func TestAnthropicDefaultsToEndTurnAndOmitsEmptySystem(t *testing.T) {
	stream := "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"hi\"}}\n\nevent: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"
	srv := sseServer(t, "/v1/messages", stream, func(_ *http.Request, payload map[string]any) {
		if _, ok := payload["system"]; ok {
			t.Errorf("system should be omitted: %#v", payload)
		}
	})

	res := collect(t, NewAnthropic(srv.Client()), Request{
		Backend:  Backend{BaseURL: srv.URL},
		Model:    "claude-3-haiku",
		Messages: []chat.Message{{Role: chat.RoleUser, Content: chat.TextContent("hi")}},
	})
	if res.err != nil || res.reason != "end_turn" || res.text != "hi" || len(res.calls) != 0 {
		t.Fatalf("result = %#v", res)
	}
}

func TestAnthropicErrorEventReportsError(t *testing.T) {
	stream := "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n"
	srv := sseServer(t, "/v1/messages", stream, nil)

	res := collect(t, NewAnthropic(srv.Client()), Request{Backend: Backend{BaseURL: srv.URL}, Model: "claude-3-haiku"})
	if res.err == nil || !strings.Contains(res.err.Error(), "Overloaded") || res.dones != 0 {
		t.Fatalf("result = %#v", res)
	}
}

func TestForType(t *testing.T) {
	if a, err := ForType(chat.ProviderOpenAI, nil); err != nil || a == nil {
		t.Fatalf("ForType(openai) = %v, %v", a, err)
	}
	if _, ok := mustAdapter(t, chat.ProviderAnthropic).(*Anthropic); !ok {
		t.Fatal("ForType(anthropic) should return *Anthropic")
	}
	if _, err := ForType("gemini", nil); err == nil {
		t.Fatal("expected error for unknown provider type")
	}
}

func mustAdapter(t *testing.T, pt chat.ProviderType) Adapter {
	t.Helper()
	a, err := ForType(pt, nil)
	if err != nil {
		t.Fatalf("ForType(%s) error = %v", pt, err)
	}
	return a
}
