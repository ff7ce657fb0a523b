package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const devEncryptionKey = "llmchat-dev-key-change-me-in-production"

type Config struct {
	Port          int    `yaml:"port"`
	DBPath        string `yaml:"db_path"`
	StaticDir     string `yaml:"static_dir,omitempty"`
	EncryptionKey string `yaml:"encryption_key,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`

	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	ConfigPath string `yaml:"-"`
}

type SearchConfig struct {
	TavilyAPIKey   string `yaml:"tavily_api_key,omitempty"`
	SearXNGBaseURL string `yaml:"searxng_base_url,omitempty"`
}

type RateLimitConfig struct {
	WindowMS int `yaml:"window_ms"`
	API      int `yaml:"api"`
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

func Default() *Config {
	cfg := &Config{
		Port:     3000,
		LogLevel: "info",
		RateLimit: RateLimitConfig{
			WindowMS: 60000,
			API:      120,
		},
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.ConfigPath = filepath.Join(home, ".config", "llmchat", "config.yaml")
		cfg.DBPath = filepath.Join(home, ".local", "share", "llmchat", "app.db")
	} else {
		cfg.DBPath = filepath.Join("data", "app.db")
	}
	return cfg
}

// Load builds the configuration from defaults, the YAML file at path (or the
// default location when path is empty) and the environment. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		cfg.ConfigPath = path
	}

	if cfg.ConfigPath != "" {
		if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if cfg.EncryptionKey == "" {
		slog.Warn("ENCRYPTION_KEY is not set, using the insecure development key")
		cfg.EncryptionKey = devEncryptionKey
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("db path cannot be empty")
	}
	if c.RateLimit.WindowMS < 0 || c.RateLimit.API < 0 {
		return fmt.Errorf("rate limit values cannot be negative")
	}
	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	configPath := c.ConfigPath
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", configPath, err)
	}
	c.ConfigPath = configPath
	return nil
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT value %q: %w", v, err)
		}
		c.Port = port
	}
	if v := os.Getenv("LLMCHAT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("LLMCHAT_STATIC_DIR"); v != "" {
		c.StaticDir = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		c.EncryptionKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" {
		c.Search.TavilyAPIKey = v
	}
	if v := os.Getenv("SEARXNG_BASE_URL"); v != "" {
		c.Search.SearXNGBaseURL = v
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_WINDOW_MS value %q: %w", v, err)
		}
		c.RateLimit.WindowMS = n
	}
	if v := os.Getenv("RATE_LIMIT_API"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_API value %q: %w", v, err)
		}
		c.RateLimit.API = n
	}
	return nil
}

// Save writes the file-backed part of the configuration. The encryption key is
// only written when it was not taken from the environment.
func (c *Config) Save() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out := *c
	if os.Getenv("ENCRYPTION_KEY") != "" || out.EncryptionKey == devEncryptionKey {
		out.EncryptionKey = ""
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(c.ConfigPath, data, 0o600)
}
