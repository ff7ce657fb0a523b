// Package api serves the HTTP and WebSocket interface: chat streaming and
// CRUD for backends, projects and conversations.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/llmchat/internal/db"
	"github.com/user/llmchat/internal/orchestrator"
	"github.com/user/llmchat/internal/tools"
)

const maxBodyBytes = 50 << 20

type Options struct {
	Backends      *db.BackendRepo
	Projects      *db.ProjectRepo
	Conversations *db.ConversationRepo
	Tools         *tools.Registry
	Orchestrator  *orchestrator.Orchestrator
	// Prober checks backend connectivity and lists models. Defaults to the
	// provider adapters.
	Prober Prober

	// RateLimit requests per RateWindow and client IP on /api/. Zero disables.
	RateLimit  int
	RateWindow time.Duration
	Logger     *slog.Logger
}

type handler struct {
	backends      *db.BackendRepo
	projects      *db.ProjectRepo
	conversations *db.ConversationRepo
	tools         *tools.Registry
	orchestrator  *orchestrator.Orchestrator
	prober        Prober
	logger        *slog.Logger
}

func NewRouter(opts Options) http.Handler {
	h := &handler{
		backends:      opts.Backends,
		projects:      opts.Projects,
		conversations: opts.Conversations,
		tools:         opts.Tools,
		orchestrator:  opts.Orchestrator,
		prober:        opts.Prober,
		logger:        opts.Logger,
	}
	if h.tools == nil {
		h.tools = tools.NewRegistry()
	}
	if h.prober == nil {
		h.prober = NewProviderProber(nil)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", h.chatSSE)
	mux.HandleFunc("GET /api/chat/ws", h.chatWebSocket)

	mux.HandleFunc("GET /api/backends", h.listBackends)
	mux.HandleFunc("POST /api/backends", h.createBackend)
	mux.HandleFunc("PUT /api/backends/{id}", h.updateBackend)
	mux.HandleFunc("DELETE /api/backends/{id}", h.deleteBackend)
	mux.HandleFunc("POST /api/backends/{id}/test", h.testBackend)
	mux.HandleFunc("GET /api/backends/{id}/models", h.backendModels)

	mux.HandleFunc("GET /api/projects", h.listProjects)
	mux.HandleFunc("POST /api/projects", h.createProject)
	mux.HandleFunc("PUT /api/projects/{id}", h.updateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", h.deleteProject)

	mux.HandleFunc("GET /api/conversations", h.listConversations)
	mux.HandleFunc("POST /api/conversations", h.createConversation)
	mux.HandleFunc("PUT /api/conversations/{id}", h.updateConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.deleteConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.conversationMessages)

	mux.HandleFunc("GET /api/tools", h.listTools)

	var wrapped http.Handler = jsonMiddleware(corsMiddleware(mux))
	if opts.RateLimit > 0 && opts.RateWindow > 0 {
		wrapped = newIPRateLimiter(opts.RateLimit, opts.RateWindow).middleware(wrapped)
	}
	return wrapped
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeJSON reads exactly one JSON value. Unknown fields are ignored.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}

type successResponse struct {
	Success bool `json:"success"`
}
