package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/llmchat/internal/config"
)

type globalFlags struct {
	configPath string
	port       int
	dbPath     string
	staticDir  string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:     "llmchat",
		Short:   "Self-hosted chat proxy for OpenAI and Anthropic style backends",
		Version: version,
		// Running llmchat with no subcommand starts the server.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file path (default ~/.config/llmchat/config.yaml)")
	pf.IntVarP(&flags.port, "port", "p", 0, "listen port")
	pf.StringVar(&flags.dbPath, "db", "", "SQLite database path")
	pf.StringVar(&flags.staticDir, "static-dir", "", "directory of frontend assets to serve")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newMigrateCmd(flags))
	rootCmd.AddCommand(newInitCmd(flags))
	return rootCmd
}

// loadConfig applies flag overrides on top of config.Load and installs the
// default logger.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, flags, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, flags *globalFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Port = flags.port
	}
	if changed("db") {
		cfg.DBPath = flags.dbPath
	}
	if changed("static-dir") {
		cfg.StaticDir = flags.staticDir
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
}
