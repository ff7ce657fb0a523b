package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/user/llmchat/internal/chat"
	"github.com/user/llmchat/internal/db"
	"github.com/user/llmchat/internal/provider"
	"github.com/user/llmchat/internal/secret"
)

const (
	keepExistingKey = "***"
	pingModel       = "claude-3-5-sonnet-20241022"
)

// Prober talks to a backend outside of a chat turn.
type Prober interface {
	ListModels(ctx context.Context, backend provider.Backend) ([]string, error)
	Ping(ctx context.Context, backend provider.Backend, model string) error
}

type providerProber struct {
	openai    *provider.OpenAI
	anthropic *provider.Anthropic
}

// NewProviderProber lists models through the OpenAI-style API and pings
// Anthropic-style backends with a one-token message.
func NewProviderProber(client *http.Client) Prober {
	return &providerProber{openai: provider.NewOpenAI(client), anthropic: provider.NewAnthropic(client)}
}

func (p *providerProber) ListModels(ctx context.Context, backend provider.Backend) ([]string, error) {
	return p.openai.ListModels(ctx, backend)
}

func (p *providerProber) Ping(ctx context.Context, backend provider.Backend, model string) error {
	return p.anthropic.Ping(ctx, backend, model)
}

type backendResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ProviderType string   `json:"provider_type"`
	BaseURL      string   `json:"base_url"`
	APIKeyMasked string   `json:"api_key_masked"`
	Models       []string `json:"models"`
	IsDefault    bool     `json:"is_default"`
	CreatedAt    string   `json:"created_at"`
}

func serializeBackend(b *db.Backend) backendResponse {
	models := b.KnownModels
	if models == nil {
		models = []string{}
	}
	return backendResponse{
		ID:           b.ID,
		Name:         b.Name,
		ProviderType: b.ProviderType,
		BaseURL:      b.BaseURL,
		APIKeyMasked: secret.Mask(b.APIKey),
		Models:       models,
		IsDefault:    b.IsDefault,
		CreatedAt:    b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type backendRequest struct {
	Name         *string   `json:"name"`
	ProviderType *string   `json:"provider_type"`
	BaseURL      *string   `json:"base_url"`
	APIKey       *string   `json:"api_key"`
	Models       *[]string `json:"models"`
	IsDefault    *bool     `json:"is_default"`
}

func (h *handler) listBackends(w http.ResponseWriter, r *http.Request) {
	backends, err := h.backends.List(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]backendResponse, 0, len(backends))
	for _, b := range backends {
		out = append(out, serializeBackend(b))
	}
	jsonResponse(w, http.StatusOK, out)
}

func (h *handler) createBackend(w http.ResponseWriter, r *http.Request) {
	var req backendRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if isBlank(req.Name) || isBlank(req.ProviderType) || isBlank(req.BaseURL) {
		jsonError(w, http.StatusBadRequest, "name, provider_type, and base_url are required")
		return
	}
	providerType, err := chat.ParseProviderType(*req.ProviderType)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	backend := &db.Backend{
		Name:         strings.TrimSpace(*req.Name),
		ProviderType: string(providerType),
		BaseURL:      strings.TrimSpace(*req.BaseURL),
	}
	if req.APIKey != nil {
		backend.APIKey = *req.APIKey
	}
	if req.Models != nil {
		backend.KnownModels = *req.Models
	}
	if req.IsDefault != nil {
		backend.IsDefault = *req.IsDefault
	}
	if err := h.backends.Create(r.Context(), backend); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusCreated, serializeBackend(backend))
}

// updateBackend applies the fields present in the body. The API key is only
// replaced when a new value other than "***" is sent.
func (h *handler) updateBackend(w http.ResponseWriter, r *http.Request) {
	backend, ok := h.loadBackend(w, r)
	if !ok {
		return
	}
	var req backendRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		backend.Name = strings.TrimSpace(*req.Name)
	}
	if req.ProviderType != nil && *req.ProviderType != "" {
		providerType, err := chat.ParseProviderType(*req.ProviderType)
		if err != nil {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		backend.ProviderType = string(providerType)
	}
	if req.BaseURL != nil && strings.TrimSpace(*req.BaseURL) != "" {
		backend.BaseURL = strings.TrimSpace(*req.BaseURL)
	}
	if req.APIKey != nil && *req.APIKey != "" && *req.APIKey != keepExistingKey {
		backend.APIKey = *req.APIKey
	}
	if req.Models != nil {
		backend.KnownModels = *req.Models
	}
	if req.IsDefault != nil {
		backend.IsDefault = *req.IsDefault
	}
	if err := h.backends.Update(r.Context(), backend); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	updated, err := h.backends.Get(r.Context(), backend.ID)
	if err != nil || updated == nil {
		updated = backend
	}
	jsonResponse(w, http.StatusOK, serializeBackend(updated))
}

func (h *handler) deleteBackend(w http.ResponseWriter, r *http.Request) {
	if err := h.backends.Delete(r.Context(), r.PathValue("id")); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, successResponse{Success: true})
}

type backendTestResponse struct {
	Success bool     `json:"success"`
	Models  []string `json:"models,omitempty"`
	Message string   `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func (h *handler) testBackend(w http.ResponseWriter, r *http.Request) {
	backend, ok := h.loadBackend(w, r)
	if !ok {
		return
	}
	target := toProviderBackend(backend)
	if target.Type == chat.ProviderOpenAI {
		models, err := h.prober.ListModels(r.Context(), target)
		if err != nil {
			jsonResponse(w, http.StatusOK, backendTestResponse{Success: false, Error: err.Error()})
			return
		}
		jsonResponse(w, http.StatusOK, backendTestResponse{Success: true, Models: models})
		return
	}

	model := pingModel
	if len(backend.KnownModels) > 0 {
		model = backend.KnownModels[0]
	}
	if err := h.prober.Ping(r.Context(), target, model); err != nil {
		jsonResponse(w, http.StatusOK, backendTestResponse{Success: false, Error: err.Error()})
		return
	}
	jsonResponse(w, http.StatusOK, backendTestResponse{Success: true, Message: "Anthropic backend reachable"})
}

type modelsResponse struct {
	Models []string `json:"models"`
}

// backendModels lists models live for OpenAI-style backends and stores the
// result; Anthropic-style backends return the stored list.
func (h *handler) backendModels(w http.ResponseWriter, r *http.Request) {
	backend, ok := h.loadBackend(w, r)
	if !ok {
		return
	}
	target := toProviderBackend(backend)
	if target.Type != chat.ProviderOpenAI {
		models := backend.KnownModels
		if models == nil {
			models = []string{}
		}
		jsonResponse(w, http.StatusOK, modelsResponse{Models: models})
		return
	}

	models, err := h.prober.ListModels(r.Context(), target)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.backends.UpdateKnownModels(r.Context(), backend.ID, models); err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, modelsResponse{Models: models})
}

func (h *handler) loadBackend(w http.ResponseWriter, r *http.Request) (*db.Backend, bool) {
	backend, err := h.backends.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if backend == nil {
		jsonError(w, http.StatusNotFound, "Backend not found")
		return nil, false
	}
	return backend, true
}

func toProviderBackend(b *db.Backend) provider.Backend {
	return provider.Backend{Type: chat.ProviderType(b.ProviderType), BaseURL: b.BaseURL, APIKey: b.APIKey}
}

func isBlank(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}
