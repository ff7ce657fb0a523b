package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/llmchat/internal/chat"
	"github.com/user/llmchat/internal/db"
	"github.com/user/llmchat/internal/orchestrator"
	"github.com/user/llmchat/internal/provider"
	"github.com/user/llmchat/internal/tools"
)

type fakeProber struct {
	models   []string
	err      error
	pingedAs string
	listed   int
}

func (f *fakeProber) ListModels(context.Context, provider.Backend) ([]string, error) {
	f.listed++
	return f.models, f.err
}

func (f *fakeProber) Ping(_ context.Context, _ provider.Backend, model string) error {
	f.pingedAs = model
	return f.err
}

// greeter answers every turn with two chunks.
type greeter struct{}

func (greeter) StreamChat(_ context.Context, _ provider.Request, cb provider.Callbacks) {
	cb.OnChunk("Hi")
	cb.OnChunk(" there")
	cb.OnDone("stop", nil, "Hi there")
}

type testAPI struct {
	handler       http.Handler
	backends      *db.BackendRepo
	projects      *db.ProjectRepo
	conversations *db.ConversationRepo
	prober        *fakeProber
}

func openAPI(t *testing.T, rateLimit int) *testAPI {
	t.Helper()
	database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	a := &testAPI{
		backends:      db.NewBackendRepo(database.SQL(), nil),
		projects:      db.NewProjectRepo(database.SQL()),
		conversations: db.NewConversationRepo(database.SQL()),
		prober:        &fakeProber{},
	}
	registry := tools.Builtin(tools.Deps{Todos: db.NewTodoRepo(database.SQL())})
	if _, err := a.projects.EnsureDefault(context.Background(), registry.Names()); err != nil {
		t.Fatalf("EnsureDefault() error = %v", err)
	}
	orch := orchestrator.New(orchestrator.Options{
		Projects:      a.projects,
		Backends:      a.backends,
		Conversations: a.conversations,
		Tools:         registry,
		AdapterFor: func(chat.ProviderType) (provider.Adapter, error) {
			return greeter{}, nil
		},
	})
	a.handler = NewRouter(Options{
		Backends:      a.backends,
		Projects:      a.projects,
		Conversations: a.conversations,
		Tools:         registry,
		Orchestrator:  orch,
		Prober:        a.prober,
		RateLimit:     rateLimit,
		RateWindow:    time.Minute,
	})
	return a
}

func apiRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body: %v body=%s", err, rr.Body.String())
	}
}

func createBackend(t *testing.T, a *testAPI, body map[string]any) backendResponse {
	t.Helper()
	rr := apiRequest(t, a.handler, http.MethodPost, "/api/backends", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create backend status=%d body=%s", rr.Code, rr.Body.String())
	}
	var out backendResponse
	decodeBody(t, rr, &out)
	return out
}

func TestBackendLifecycle(t *testing.T) {
	a := openAPI(t, 0)

	bad := apiRequest(t, a.handler, http.MethodPost, "/api/backends", map[string]any{"name": "x"})
	if bad.Code != http.StatusBadRequest || !strings.Contains(bad.Body.String(), "name, provider_type, and base_url are required") {
		t.Fatalf("bad create status=%d body=%s", bad.Code, bad.Body.String())
	}
	unknown := apiRequest(t, a.handler, http.MethodPost, "/api/backends", map[string]any{"name": "x", "provider_type": "ollama", "base_url": "http://x"})
	if unknown.Code != http.StatusBadRequest {
		t.Fatalf("unknown provider status=%d", unknown.Code)
	}

	first := createBackend(t, a, map[string]any{
		"name": "OpenAI", "provider_type": "openai", "base_url": "https://api.openai.com",
		"api_key": "sk-test-1234567890", "models": []string{"gpt-4o"},
	})
	if first.APIKeyMasked != "sk-t...7890" || !first.IsDefault || len(first.Models) != 1 {
		t.Fatalf("created backend = %#v", first)
	}
	if strings.Contains(apiRequest(t, a.handler, http.MethodGet, "/api/backends", nil).Body.String(), "sk-test-1234567890") {
		t.Fatal("list leaked the plaintext key")
	}

	second := createBackend(t, a, map[string]any{
		"name": "Claude", "provider_type": "anthropic", "base_url": "https://api.anthropic.com", "is_default": true,
	})
	if !second.IsDefault {
		t.Fatalf("second backend = %#v", second)
	}

	rr := apiRequest(t, a.handler, http.MethodPut, "/api/backends/"+first.ID, map[string]any{"name": "Renamed", "api_key": "***"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	stored, err := a.backends.Get(context.Background(), first.ID)
	if err != nil || stored == nil {
		t.Fatalf("Get() = %v, %v", stored, err)
	}
	if stored.Name != "Renamed" || stored.APIKey != "sk-test-1234567890" || stored.IsDefault {
		t.Fatalf("stored backend = %#v", stored)
	}

	if rr := apiRequest(t, a.handler, http.MethodPut, "/api/backends/missing", map[string]any{"name": "x"}); rr.Code != http.StatusNotFound {
		t.Fatalf("update missing status=%d", rr.Code)
	}

	rr = apiRequest(t, a.handler, http.MethodDelete, "/api/backends/"+second.ID, nil)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"success":true}` {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}
	promoted, _ := a.backends.Get(context.Background(), first.ID)
	if promoted == nil || !promoted.IsDefault {
		t.Fatalf("remaining backend not promoted: %#v", promoted)
	}
}

func TestBackendTestAndModels(t *testing.T) {
	a := openAPI(t, 0)
	openai := createBackend(t, a, map[string]any{"name": "o", "provider_type": "openai", "base_url": "http://o"})
	claude := createBackend(t, a, map[string]any{"name": "c", "provider_type": "anthropic", "base_url": "http://c", "models": []string{"claude-3-haiku"}})

	a.prober.models = []string{"gpt-4o", "gpt-4o-mini"}
	rr := apiRequest(t, a.handler, http.MethodGet, "/api/backends/"+openai.ID+"/models", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "gpt-4o-mini") {
		t.Fatalf("models status=%d body=%s", rr.Code, rr.Body.String())
	}
	stored, _ := a.backends.Get(context.Background(), openai.ID)
	if len(stored.KnownModels) != 2 {
		t.Fatalf("known models not stored: %#v", stored.KnownModels)
	}

	var models modelsResponse
	rr = apiRequest(t, a.handler, http.MethodGet, "/api/backends/"+claude.ID+"/models", nil)
	decodeBody(t, rr, &models)
	if len(models.Models) != 1 || models.Models[0] != "claude-3-haiku" {
		t.Fatalf("anthropic models = %#v", models)
	}

	var result backendTestResponse
	decodeBody(t, apiRequest(t, a.handler, http.MethodPost, "/api/backends/"+openai.ID+"/test", nil), &result)
	if !result.Success || len(result.Models) != 2 {
		t.Fatalf("openai test = %#v", result)
	}

	decodeBody(t, apiRequest(t, a.handler, http.MethodPost, "/api/backends/"+claude.ID+"/test", nil), &result)
	if !result.Success || a.prober.pingedAs != "claude-3-haiku" {
		t.Fatalf("anthropic test = %#v pinged=%q", result, a.prober.pingedAs)
	}

	a.prober.err = errors.New("401 unauthorized")
	result = backendTestResponse{}
	rr = apiRequest(t, a.handler, http.MethodPost, "/api/backends/"+openai.ID+"/test", nil)
	decodeBody(t, rr, &result)
	if rr.Code != http.StatusOK || result.Success || result.Error != "401 unauthorized" {
		t.Fatalf("failed test = %d %#v", rr.Code, result)
	}
	if rr := apiRequest(t, a.handler, http.MethodGet, "/api/backends/"+openai.ID+"/models", nil); rr.Code != http.StatusInternalServerError {
		t.Fatalf("models with failing backend status=%d", rr.Code)
	}
	if rr := apiRequest(t, a.handler, http.MethodPost, "/api/backends/missing/test", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("test missing status=%d", rr.Code)
	}
}

func TestBackendProviderTypeIsNormalized(t *testing.T) {
	a := openAPI(t, 0)
	created := createBackend(t, a, map[string]any{"name": "o", "provider_type": " OpenAI ", "base_url": "http://o"})
	if created.ProviderType != "openai" {
		t.Fatalf("provider_type = %q, want openai", created.ProviderType)
	}

	a.prober.models = []string{"gpt-4o"}
	var result backendTestResponse
	decodeBody(t, apiRequest(t, a.handler, http.MethodPost, "/api/backends/"+created.ID+"/test", nil), &result)
	if !result.Success || a.prober.listed != 1 || a.prober.pingedAs != "" {
		t.Fatalf("test = %#v listed=%d pinged=%q", result, a.prober.listed, a.prober.pingedAs)
	}

	var updated backendResponse
	rr := apiRequest(t, a.handler, http.MethodPut, "/api/backends/"+created.ID, map[string]any{"provider_type": "ANTHROPIC"})
	decodeBody(t, rr, &updated)
	if rr.Code != http.StatusOK || updated.ProviderType != "anthropic" {
		t.Fatalf("update status=%d provider_type=%q", rr.Code, updated.ProviderType)
	}
	stored, _ := a.backends.Get(context.Background(), created.ID)
	if stored.ProviderType != "anthropic" {
		t.Fatalf("stored provider_type = %q", stored.ProviderType)
	}
}

func TestProjectRoutes(t *testing.T) {
	a := openAPI(t, 0)

	var projects []db.Project
	decodeBody(t, apiRequest(t, a.handler, http.MethodGet, "/api/projects", nil), &projects)
	if len(projects) != 1 || projects[0].Name != db.DefaultProjectName {
		t.Fatalf("projects = %#v", projects)
	}
	if rr := apiRequest(t, a.handler, http.MethodDelete, "/api/projects/"+projects[0].ID, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("delete default status=%d", rr.Code)
	}

	if rr := apiRequest(t, a.handler, http.MethodPost, "/api/projects", map[string]any{"system_prompt": "x"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("create without name status=%d", rr.Code)
	}
	if rr := apiRequest(t, a.handler, http.MethodPost, "/api/projects", map[string]any{"name": "x", "default_backend_id": "nope"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("create with unknown backend status=%d", rr.Code)
	}

	rr := apiRequest(t, a.handler, http.MethodPost, "/api/projects", map[string]any{
		"name": "Research", "system_prompt": "Be terse.", "enabled_tools": []string{"web_search"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	var created db.Project
	decodeBody(t, rr, &created)

	rr = apiRequest(t, a.handler, http.MethodPut, "/api/projects/"+created.ID, map[string]any{"default_model": "gpt-4o-mini"})
	var updated db.Project
	decodeBody(t, rr, &updated)
	if updated.DefaultModel != "gpt-4o-mini" || updated.SystemPrompt != "Be terse." || len(updated.EnabledTools) != 1 {
		t.Fatalf("updated project = %#v", updated)
	}

	if rr := apiRequest(t, a.handler, http.MethodPut, "/api/projects/missing", map[string]any{"name": "x"}); rr.Code != http.StatusNotFound {
		t.Fatalf("update missing status=%d", rr.Code)
	}
	if rr := apiRequest(t, a.handler, http.MethodDelete, "/api/projects/"+created.ID, nil); rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
}

func TestConversationRoutes(t *testing.T) {
	a := openAPI(t, 0)
	for _, title := range []string{"Trip to Paris", "Grocery list", "Paris budget"} {
		if rr := apiRequest(t, a.handler, http.MethodPost, "/api/conversations", map[string]any{"title": title}); rr.Code != http.StatusCreated {
			t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	var all []db.Conversation
	decodeBody(t, apiRequest(t, a.handler, http.MethodGet, "/api/conversations", nil), &all)
	if len(all) != 3 {
		t.Fatalf("conversations = %#v", all)
	}

	var found []db.Conversation
	decodeBody(t, apiRequest(t, a.handler, http.MethodGet, "/api/conversations?q=paris", nil), &found)
	if len(found) != 2 {
		t.Fatalf("fuzzy results = %#v", found)
	}
	for _, c := range found {
		if !strings.Contains(c.Title, "Paris") {
			t.Fatalf("unexpected match %q", c.Title)
		}
	}

	id := all[0].ID
	rr := apiRequest(t, a.handler, http.MethodPut, "/api/conversations/"+id, map[string]any{"title": "Renamed", "model_override": "gpt-4o"})
	var renamed db.Conversation
	decodeBody(t, rr, &renamed)
	if renamed.Title != "Renamed" || renamed.ModelOverride != "gpt-4o" {
		t.Fatalf("renamed = %#v", renamed)
	}

	rr = apiRequest(t, a.handler, http.MethodGet, "/api/conversations/"+id+"/messages", nil)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"messages":[]}` {
		t.Fatalf("messages status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := apiRequest(t, a.handler, http.MethodGet, "/api/conversations/missing/messages", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing messages status=%d", rr.Code)
	}
	if rr := apiRequest(t, a.handler, http.MethodPost, "/api/conversations", map[string]any{"project_id": "missing"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("create with unknown project status=%d", rr.Code)
	}
	if rr := apiRequest(t, a.handler, http.MethodDelete, "/api/conversations/"+id, nil); rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
}

func TestChatSSE(t *testing.T) {
	a := openAPI(t, 0)
	createBackend(t, a, map[string]any{"name": "o", "provider_type": "openai", "base_url": "http://o"})

	if rr := apiRequest(t, a.handler, http.MethodPost, "/api/chat", map[string]any{"message": ""}); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty message status=%d", rr.Code)
	}

	rr := apiRequest(t, a.handler, http.MethodPost, "/api/chat", map[string]any{"message": "hello"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	if rr.Header().Get("Cache-Control") != "no-cache" {
		t.Fatalf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}

	frames := strings.Split(strings.TrimSuffix(rr.Body.String(), "\n\n"), "\n\n")
	if len(frames) != 3 {
		t.Fatalf("frames = %q", frames)
	}
	if frames[0] != `data: {"type":"chunk","content":"Hi"}` || frames[1] != `data: {"type":"chunk","content":" there"}` {
		t.Fatalf("chunk frames = %q", frames[:2])
	}
	var done struct {
		Type           string `json:"type"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(frames[2], "data: ")), &done); err != nil || done.Type != "done" {
		t.Fatalf("done frame = %q (%v)", frames[2], err)
	}
	conv, err := a.conversations.Get(context.Background(), done.ConversationID)
	if err != nil || conv == nil || len(conv.Messages) != 2 {
		t.Fatalf("conversation = %#v, %v", conv, err)
	}
}

func TestChatSSEReportsConfigurationErrors(t *testing.T) {
	a := openAPI(t, 0)
	rr := apiRequest(t, a.handler, http.MethodPost, "/api/chat", map[string]any{"message": "hello"})
	want := `data: {"type":"error","message":"No backend configured. Please add an AI backend in Settings."}` + "\n\n"
	if rr.Code != http.StatusOK || rr.Body.String() != want {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
}

func TestChatWebSocket(t *testing.T) {
	a := openAPI(t, 0)
	createBackend(t, a, map[string]any{"name": "o", "provider_type": "openai", "base_url": "http://o"})
	srv := httptest.NewServer(a.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/chat/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	readEvent := func() map[string]any {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var ev map[string]any
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		return ev
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := readEvent(); ev["type"] != "error" {
		t.Fatalf("event = %#v", ev)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"message":"hello"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var types []string
	for {
		ev := readEvent()
		types = append(types, ev["type"].(string))
		if ev["type"] == "done" || ev["type"] == "error" {
			break
		}
	}
	if strings.Join(types, ",") != "chunk,chunk,done" {
		t.Fatalf("events = %v", types)
	}
}

func TestListTools(t *testing.T) {
	a := openAPI(t, 0)
	var list []toolInfo
	decodeBody(t, apiRequest(t, a.handler, http.MethodGet, "/api/tools", nil), &list)
	if len(list) == 0 || list[0].Name != "get_datetime" || list[0].Description == "" {
		t.Fatalf("tools = %#v", list)
	}
}

func TestRateLimiter(t *testing.T) {
	a := openAPI(t, 2)
	for i := 0; i < 2; i++ {
		if rr := apiRequest(t, a.handler, http.MethodGet, "/api/tools", nil); rr.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := apiRequest(t, a.handler, http.MethodGet, "/api/tools", nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d want %d", rr.Code, http.StatusTooManyRequests)
	}

	other := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
	other.RemoteAddr = "198.51.100.7:4000"
	otherRR := httptest.NewRecorder()
	a.handler.ServeHTTP(otherRR, other)
	if otherRR.Code != http.StatusOK {
		t.Fatalf("other client status=%d", otherRR.Code)
	}
}
