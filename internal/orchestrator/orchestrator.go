// Package orchestrator runs one chat turn: it resolves the project, backend
// and model, streams the model's reply, dispatches tool calls and persists
// the conversation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/user/llmchat/internal/chat"
	"github.com/user/llmchat/internal/db"
	"github.com/user/llmchat/internal/provider"
	"github.com/user/llmchat/internal/tools"
)

const (
	DefaultMaxIterations = 8

	fallbackAnthropicModel = "claude-3-5-sonnet-20241022"
	fallbackOpenAIModel    = "gpt-4o"
	titleMaxRunes          = 60
	eventBuffer            = 32
)

var (
	errProjectNotFound = errors.New("Project not found")
	errBackendNotFound = errors.New("Backend not found")
	errNoBackend       = errors.New("No backend configured. Please add an AI backend in Settings.")
)

type Options struct {
	Projects      *db.ProjectRepo
	Backends      *db.BackendRepo
	Conversations *db.ConversationRepo
	Tools         *tools.Registry

	// AdapterFor picks the streaming adapter for a provider type. Defaults to
	// provider.ForType with HTTPClient.
	AdapterFor    func(chat.ProviderType) (provider.Adapter, error)
	HTTPClient    *http.Client
	MaxIterations int
	Logger        *slog.Logger
}

type Orchestrator struct {
	projects      *db.ProjectRepo
	backends      *db.BackendRepo
	conversations *db.ConversationRepo
	tools         *tools.Registry
	adapterFor    func(chat.ProviderType) (provider.Adapter, error)
	maxIterations int
	logger        *slog.Logger
}

func New(opts Options) *Orchestrator {
	adapterFor := opts.AdapterFor
	if adapterFor == nil {
		client := opts.HTTPClient
		adapterFor = func(t chat.ProviderType) (provider.Adapter, error) {
			return provider.ForType(t, client)
		}
	}
	registry := opts.Tools
	if registry == nil {
		registry = tools.NewRegistry()
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		projects:      opts.Projects,
		backends:      opts.Backends,
		conversations: opts.Conversations,
		tools:         registry,
		adapterFor:    adapterFor,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// turn is the resolved state of one Chat call.
type turn struct {
	req          Request
	project      *db.Project
	conversation *db.Conversation
	backend      provider.Backend
	adapter      provider.Adapter
	model        string
	toolDefs     []provider.ToolDef

	// messages is history, the new user message and everything appended by
	// the loop. It never holds the system prompt.
	messages []chat.Message
	// textCaptured records that the final assistant text is already in messages.
	textCaptured bool
	finalText    string
}

// Chat starts a turn and returns its event stream. The channel is closed
// after the terminal done or error event. Cancelling ctx abandons the
// provider stream; tool side effects already applied are kept.
func (o *Orchestrator) Chat(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event, eventBuffer)
	go func() {
		defer close(ch)
		if err := o.run(ctx, req, ch); err != nil {
			o.logger.Warn("chat turn failed", "conversation_id", req.ConversationID, "error", err)
			send(ctx, ch, Event{Type: EventError, Message: err.Error()})
		}
	}()
	return ch
}

func (o *Orchestrator) run(ctx context.Context, req Request, ch chan<- Event) error {
	if strings.TrimSpace(req.Message) == "" && len(req.Files) == 0 {
		return errors.New("message is required")
	}

	t, err := o.resolve(ctx, req)
	if err != nil {
		return err
	}

	userMsg, err := chat.BuildUserMessage(req.Message, req.Files, t.model, t.backend.Type)
	if err != nil {
		return err
	}
	t.messages = append(t.messages, userMsg)

	systemPrompt := t.project.SystemPrompt
	for iteration := 0; iteration < o.maxIterations; iteration++ {
		res := o.stream(ctx, t, systemPrompt, ch)
		if res.err != nil {
			return res.err
		}

		if len(res.calls) == 0 {
			t.finalText = res.text
			if res.text != "" {
				t.messages = append(t.messages, chat.Message{Role: chat.RoleAssistant, Content: chat.TextContent(res.text)})
				t.textCaptured = true
			}
			break
		}

		calls := make([]chat.ToolCall, len(res.calls))
		for i, call := range res.calls {
			call.Arguments = chat.CompactArguments(call.Arguments)
			calls[i] = call
		}
		results := make([]chat.ToolResult, 0, len(calls))
		for _, call := range calls {
			send(ctx, ch, Event{Type: EventToolStart, Tool: call.Name, ID: call.ID})
			result := o.tools.Execute(ctx, call.Name, call.Arguments)
			o.logger.Debug("tool executed", "tool", call.Name, "id", call.ID, "iteration", iteration)
			send(ctx, ch, Event{Type: EventToolDone, Tool: call.Name, ID: call.ID, Result: result})
			results = append(results, chat.ToolResult{CallID: call.ID, Content: result})
		}
		t.messages = chat.AppendToolRound(t.messages, res.text, calls, results)
	}

	if !t.textCaptured && t.finalText != "" {
		t.messages = append(t.messages, chat.Message{Role: chat.RoleAssistant, Content: chat.TextContent(t.finalText)})
		t.textCaptured = true
	}

	convID, err := o.persist(context.WithoutCancel(ctx), t)
	if err != nil {
		return err
	}
	send(ctx, ch, Event{Type: EventDone, ConversationID: convID})
	return nil
}

type streamResult struct {
	calls []chat.ToolCall
	text  string
	err   error
}

// stream runs one provider call, relaying chunks as they arrive.
func (o *Orchestrator) stream(ctx context.Context, t *turn, systemPrompt string, ch chan<- Event) streamResult {
	var res streamResult
	finished := false
	t.adapter.StreamChat(ctx, provider.Request{
		Backend:      t.backend,
		Model:        t.model,
		Messages:     chat.PrepareForProvider(t.backend.Type, systemPrompt, t.messages),
		SystemPrompt: systemPrompt,
		Tools:        t.toolDefs,
	}, provider.Callbacks{
		OnChunk: func(text string) {
			send(ctx, ch, Event{Type: EventChunk, Content: text})
		},
		OnDone: func(_ string, calls []chat.ToolCall, text string) {
			res.calls, res.text = calls, text
			finished = true
		},
		OnError: func(err error) {
			res.err = err
			finished = true
		},
	})
	if !finished {
		if err := ctx.Err(); err != nil {
			res.err = err
		} else {
			res.err = errors.New("provider stream ended without a result")
		}
	}
	return res
}

func (o *Orchestrator) resolve(ctx context.Context, req Request) (*turn, error) {
	t := &turn{req: req}

	if id := strings.TrimSpace(req.ConversationID); id != "" {
		conv, err := o.conversations.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		t.conversation = conv
	}

	project, err := o.resolveProject(ctx, req, t.conversation)
	if err != nil {
		return nil, err
	}
	t.project = project

	backend, err := o.resolveBackend(ctx, req, project, t.conversation)
	if err != nil {
		return nil, err
	}
	providerType, err := chat.ParseProviderType(backend.ProviderType)
	if err != nil {
		return nil, err
	}
	t.backend = provider.Backend{Type: providerType, BaseURL: backend.BaseURL, APIKey: backend.APIKey}
	t.adapter, err = o.adapterFor(providerType)
	if err != nil {
		return nil, err
	}

	t.model = resolveModel(req, project, t.conversation, providerType)
	t.toolDefs = o.tools.Definitions(project.EnabledTools)

	if t.conversation != nil {
		t.messages = chat.FoldForStorage(t.conversation.Messages)
	}
	return t, nil
}

func (o *Orchestrator) resolveProject(ctx context.Context, req Request, conv *db.Conversation) (*db.Project, error) {
	id := strings.TrimSpace(req.ProjectID)
	if id == "" && conv != nil {
		id = conv.ProjectID
	}
	var (
		project *db.Project
		err     error
	)
	if id != "" {
		project, err = o.projects.Get(ctx, id)
	} else {
		project, err = o.projects.First(ctx)
	}
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, errProjectNotFound
	}
	return project, nil
}

// resolveBackend tries, in order: the request, the conversation override,
// the project default, the global default and the oldest backend.
func (o *Orchestrator) resolveBackend(ctx context.Context, req Request, project *db.Project, conv *db.Conversation) (*db.Backend, error) {
	if id := strings.TrimSpace(req.BackendID); id != "" {
		backend, err := o.backends.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if backend == nil {
			return nil, errBackendNotFound
		}
		return backend, nil
	}

	candidates := []string{}
	if conv != nil && conv.ProviderOverride != "" {
		candidates = append(candidates, conv.ProviderOverride)
	}
	if project.DefaultBackendID != "" {
		candidates = append(candidates, project.DefaultBackendID)
	}
	for _, id := range candidates {
		backend, err := o.backends.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if backend != nil {
			return backend, nil
		}
	}

	backend, err := o.backends.GetDefault(ctx)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		if backend, err = o.backends.Oldest(ctx); err != nil {
			return nil, err
		}
	}
	if backend == nil {
		return nil, errNoBackend
	}
	return backend, nil
}

func resolveModel(req Request, project *db.Project, conv *db.Conversation, t chat.ProviderType) string {
	if m := strings.TrimSpace(req.Model); m != "" {
		return m
	}
	if conv != nil && conv.ModelOverride != "" {
		return conv.ModelOverride
	}
	if project.DefaultModel != "" {
		return project.DefaultModel
	}
	if t == chat.ProviderAnthropic {
		return fallbackAnthropicModel
	}
	return fallbackOpenAIModel
}

// persist writes the turn's messages, creating the conversation on its first
// successful turn, and returns the conversation id.
func (o *Orchestrator) persist(ctx context.Context, t *turn) (string, error) {
	stored := chat.FoldForStorage(t.messages)

	if t.conversation == nil {
		conv := &db.Conversation{
			ProjectID: t.project.ID,
			Title:     titleFor(t.req.Message),
			Messages:  stored,
		}
		if err := o.conversations.Create(ctx, conv); err != nil {
			return "", fmt.Errorf("failed to save conversation: %w", err)
		}
		return conv.ID, nil
	}

	conv := t.conversation
	conv.Messages = stored
	if conv.Title == db.DefaultConversationTitle && strings.TrimSpace(t.req.Message) != "" {
		conv.Title = titleFor(t.req.Message)
	}
	if err := o.conversations.Update(ctx, conv); err != nil {
		return "", fmt.Errorf("failed to save conversation: %w", err)
	}
	return conv.ID, nil
}

func titleFor(message string) string {
	runes := []rune(message)
	if len(runes) > titleMaxRunes {
		runes = runes[:titleMaxRunes]
	}
	if title := string(runes); strings.TrimSpace(title) != "" {
		return title
	}
	return db.DefaultConversationTitle
}

// send delivers ev unless the consumer has gone away.
func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
