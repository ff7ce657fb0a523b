package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/user/llmchat/internal/chat"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *Conversation) error {
	if conv.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		conv.ID = id
	}
	if conv.Title == "" {
		conv.Title = DefaultConversationTitle
	}
	if conv.Messages == nil {
		conv.Messages = []chat.Message{}
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = nowUTC()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	messages, err := chat.EncodeMessages(conv.Messages)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO conversations (id, project_id, title, messages, provider_override, model_override, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, conv.ID, nullIfEmpty(conv.ProjectID), conv.Title, messages, conv.ProviderOverride, conv.ModelOverride, formatTimestamp(conv.CreatedAt), formatTimestamp(conv.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) Get(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	var projectID sql.NullString
	var messagesRaw, createdAtRaw, updatedAtRaw string

	err := r.db.QueryRowContext(ctx, `
SELECT id, project_id, title, messages, provider_override, model_override, created_at, updated_at
FROM conversations
WHERE id = ?
`, id).Scan(&c.ID, &projectID, &c.Title, &messagesRaw, &c.ProviderOverride, &c.ModelOverride, &createdAtRaw, &updatedAtRaw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation %q: %w", id, err)
	}

	c.ProjectID = projectID.String
	c.Messages, err = chat.DecodeMessages(messagesRaw)
	if err != nil {
		return nil, fmt.Errorf("conversation %q: %w", id, err)
	}
	c.CreatedAt, err = parseTimestamp(createdAtRaw)
	if err != nil {
		return nil, err
	}
	c.UpdatedAt, err = parseTimestamp(updatedAtRaw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns conversations most recently updated first, without messages.
func (r *ConversationRepo) List(ctx context.Context, filter ConversationFilter) ([]*Conversation, error) {
	query := `SELECT id, project_id, title, provider_override, model_override, created_at, updated_at FROM conversations`
	args := []any{}
	if filter.ProjectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, filter.ProjectID)
	}
	query += " ORDER BY updated_at DESC, rowid DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*Conversation{}
	for rows.Next() {
		var c Conversation
		var projectID sql.NullString
		var createdAtRaw, updatedAtRaw string
		if err := rows.Scan(&c.ID, &projectID, &c.Title, &c.ProviderOverride, &c.ModelOverride, &createdAtRaw, &updatedAtRaw); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.ProjectID = projectID.String
		c.CreatedAt, err = parseTimestamp(createdAtRaw)
		if err != nil {
			return nil, err
		}
		c.UpdatedAt, err = parseTimestamp(updatedAtRaw)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating conversations: %w", err)
	}
	return conversations, nil
}

// Update writes title, project, overrides and messages, and bumps updated_at.
func (r *ConversationRepo) Update(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = nowUTC()
	messages, err := chat.EncodeMessages(conv.Messages)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE conversations
SET project_id = ?, title = ?, messages = ?, provider_override = ?, model_override = ?, updated_at = ?
WHERE id = ?
`, nullIfEmpty(conv.ProjectID), conv.Title, messages, conv.ProviderOverride, conv.ModelOverride, formatTimestamp(conv.UpdatedAt), conv.ID)
	if err != nil {
		return fmt.Errorf("failed to update conversation %q: %w", conv.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for conversation %q: %w", conv.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation %q not found", conv.ID)
	}
	return nil
}

func (r *ConversationRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete conversation %q: %w", id, err)
	}
	return nil
}
