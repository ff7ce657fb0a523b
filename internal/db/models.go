package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/user/llmchat/internal/chat"
)

const (
	DefaultProjectName       = "Default"
	DefaultConversationTitle = "New Conversation"
	DefaultUserID            = "default"
)

// Backend is a configured LLM endpoint. APIKey holds the plaintext key in
// memory; the repo encrypts it on the way to disk.
type Backend struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ProviderType string    `json:"provider_type"`
	BaseURL      string    `json:"base_url"`
	APIKey       string    `json:"-"`
	KnownModels  []string  `json:"known_models"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
}

type Project struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	SystemPrompt     string    `json:"system_prompt"`
	DefaultBackendID string    `json:"default_backend_id,omitempty"`
	DefaultModel     string    `json:"default_model,omitempty"`
	EnabledTools     []string  `json:"enabled_tools"`
	CreatedAt        time.Time `json:"created_at"`
}

type Conversation struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id,omitempty"`
	Title            string         `json:"title"`
	Messages         []chat.Message `json:"messages,omitempty"`
	ProviderOverride string         `json:"provider_override,omitempty"`
	ModelOverride    string         `json:"model_override,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type Todo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Done        bool      `json:"done"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CalendarEvent struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type ConversationFilter struct {
	ProjectID string
}

type CalendarFilter struct {
	UserID string
	Start  *time.Time
	End    *time.Time
}

func NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = nowUTC()
	}
	return ts.UTC().Format(time.RFC3339)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", v, err)
	}
	return ts, nil
}

func formatOptionalTimestamp(ts *time.Time) sql.NullString {
	if ts == nil || ts.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(*ts), Valid: true}
}

func parseOptionalTimestamp(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	ts, err := parseTimestamp(v.String)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func encodeStringSlice(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	buf, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode string slice: %w", err)
	}
	return string(buf), nil
}

func decodeStringSlice(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode string slice: %w", err)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func nullIfEmpty(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
