package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/llmchat/internal/api"
	"github.com/user/llmchat/internal/config"
	"github.com/user/llmchat/internal/db"
	"github.com/user/llmchat/internal/orchestrator"
	"github.com/user/llmchat/internal/secret"
	"github.com/user/llmchat/internal/server"
	"github.com/user/llmchat/internal/tools"
	"github.com/user/llmchat/internal/websearch"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
}

func runServe(cmd *cobra.Command, flags *globalFlags) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	}()

	handler, err := buildHandler(ctx, cfg, database)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, handler)
	if err != nil {
		return err
	}
	fmt.Printf("\nllmchat running at http://localhost:%d\n\n", cfg.Port)
	return srv.Start(ctx)
}

// buildHandler wires repositories, tools and the orchestrator into the API
// router and seeds the default project.
func buildHandler(ctx context.Context, cfg *config.Config, database *db.DB) (http.Handler, error) {
	box, err := secret.NewBox(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init credential encryption: %w", err)
	}

	conn := database.SQL()
	backends := db.NewBackendRepo(conn, box)
	projects := db.NewProjectRepo(conn)
	conversations := db.NewConversationRepo(conn)

	httpClient := &http.Client{Timeout: 10 * time.Minute}
	search := websearch.New(websearch.Options{
		TavilyAPIKey:   cfg.Search.TavilyAPIKey,
		SearXNGBaseURL: cfg.Search.SearXNGBaseURL,
	})
	registry := tools.Builtin(tools.Deps{
		Todos:    db.NewTodoRepo(conn),
		Calendar: db.NewCalendarRepo(conn),
		Search:   search,
	})
	slog.Info("tools registered", "tools", registry.Names(), "search", search.Provider())

	if _, err := projects.EnsureDefault(ctx, registry.Names()); err != nil {
		return nil, err
	}

	orch := orchestrator.New(orchestrator.Options{
		Projects:      projects,
		Backends:      backends,
		Conversations: conversations,
		Tools:         registry,
		HTTPClient:    httpClient,
	})

	return api.NewRouter(api.Options{
		Backends:      backends,
		Projects:      projects,
		Conversations: conversations,
		Tools:         registry,
		Orchestrator:  orch,
		Prober:        api.NewProviderProber(&http.Client{Timeout: 30 * time.Second}),
		RateLimit:     cfg.RateLimit.API,
		RateWindow:    cfg.RateLimit.Window(),
	}), nil
}
