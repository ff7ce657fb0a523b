package db

import (
	"context"
	"database/sql"
	"fmt"
)

type TodoRepo struct {
	db *sql.DB
}

func NewTodoRepo(db *sql.DB) *TodoRepo {
	return &TodoRepo{db: db}
}

func (r *TodoRepo) Create(ctx context.Context, todo *Todo) error {
	if todo.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		todo.ID = id
	}
	if todo.UserID == "" {
		todo.UserID = DefaultUserID
	}
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = nowUTC()
	}
	if todo.UpdatedAt.IsZero() {
		todo.UpdatedAt = todo.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO todos (id, user_id, title, description, done, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, todo.ID, todo.UserID, todo.Title, todo.Description, boolToInt(todo.Done), formatTimestamp(todo.CreatedAt), formatTimestamp(todo.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create todo: %w", err)
	}
	return nil
}

func (r *TodoRepo) Get(ctx context.Context, id string) (*Todo, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, title, description, done, created_at, updated_at
FROM todos
WHERE id = ?
`, id)
	t, err := scanTodo(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get todo %q: %w", id, err)
	}
	return t, nil
}

// List returns the user's todos, newest first.
func (r *TodoRepo) List(ctx context.Context, userID string) ([]*Todo, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, title, description, done, created_at, updated_at
FROM todos
WHERE user_id = ?
ORDER BY created_at DESC, rowid DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	todos := []*Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating todos: %w", err)
	}
	return todos, nil
}

func (r *TodoRepo) Update(ctx context.Context, todo *Todo) error {
	todo.UpdatedAt = nowUTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE todos
SET title = ?, description = ?, done = ?, updated_at = ?
WHERE id = ?
`, todo.Title, todo.Description, boolToInt(todo.Done), formatTimestamp(todo.UpdatedAt), todo.ID)
	if err != nil {
		return fmt.Errorf("failed to update todo %q: %w", todo.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for todo %q: %w", todo.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("todo %q not found", todo.ID)
	}
	return nil
}

// Delete reports whether a row was removed.
func (r *TodoRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete todo %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read deleted rows for todo %q: %w", id, err)
	}
	return affected > 0, nil
}

func scanTodo(row rowScanner) (*Todo, error) {
	var t Todo
	var done int
	var createdAtRaw, updatedAtRaw string
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &done, &createdAtRaw, &updatedAtRaw); err != nil {
		return nil, err
	}
	var err error
	t.Done = done == 1
	t.CreatedAt, err = parseTimestamp(createdAtRaw)
	if err != nil {
		return nil, err
	}
	t.UpdatedAt, err = parseTimestamp(updatedAtRaw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
