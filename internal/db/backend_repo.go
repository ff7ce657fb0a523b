package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/user/llmchat/internal/secret"
)

const backendColumns = `id, name, provider_type, base_url, api_key, known_models, is_default, created_at`

// BackendRepo stores backends and keeps exactly one of them marked default
// whenever the table is non-empty.
type BackendRepo struct {
	db  *sql.DB
	box *secret.Box
}

// NewBackendRepo returns a repo that encrypts API keys with box. A nil box
// stores keys as given.
func NewBackendRepo(db *sql.DB, box *secret.Box) *BackendRepo {
	return &BackendRepo{db: db, box: box}
}

func (r *BackendRepo) Create(ctx context.Context, backend *Backend) error {
	if backend.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		backend.ID = id
	}
	if backend.CreatedAt.IsZero() {
		backend.CreatedAt = nowUTC()
	}
	if backend.KnownModels == nil {
		backend.KnownModels = []string{}
	}
	models, err := encodeStringSlice(backend.KnownModels)
	if err != nil {
		return err
	}
	key, err := r.sealKey(backend.APIKey)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create backend tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT count(1) FROM backends`).Scan(&existing); err != nil {
		return fmt.Errorf("count backends: %w", err)
	}
	if existing == 0 {
		backend.IsDefault = true
	}
	if backend.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE backends SET is_default = 0 WHERE is_default = 1`); err != nil {
			return fmt.Errorf("clear default backend: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO backends (id, name, provider_type, base_url, api_key, known_models, is_default, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, backend.ID, backend.Name, backend.ProviderType, backend.BaseURL, key, models, boolToInt(backend.IsDefault), formatTimestamp(backend.CreatedAt)); err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create backend tx: %w", err)
	}
	return nil
}

func (r *BackendRepo) Get(ctx context.Context, id string) (*Backend, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+backendColumns+` FROM backends WHERE id = ?`, id)
	b, err := r.scan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get backend %q: %w", id, err)
	}
	return b, nil
}

// GetDefault returns the default backend, or nil when none is configured.
func (r *BackendRepo) GetDefault(ctx context.Context) (*Backend, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+backendColumns+` FROM backends WHERE is_default = 1 ORDER BY created_at ASC, rowid ASC LIMIT 1`)
	b, err := r.scan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get default backend: %w", err)
	}
	return b, nil
}

// Oldest returns the first backend ever created, or nil.
func (r *BackendRepo) Oldest(ctx context.Context) (*Backend, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+backendColumns+` FROM backends ORDER BY created_at ASC, rowid ASC LIMIT 1`)
	b, err := r.scan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get oldest backend: %w", err)
	}
	return b, nil
}

func (r *BackendRepo) List(ctx context.Context) ([]*Backend, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+backendColumns+` FROM backends ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list backends: %w", err)
	}
	defer rows.Close()

	backends := []*Backend{}
	for rows.Next() {
		b, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backend: %w", err)
		}
		backends = append(backends, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating backends: %w", err)
	}
	return backends, nil
}

// Update writes every field of backend. Marking it default clears the flag on
// all others; clearing the flag on the current default promotes the oldest
// backend so that a default always exists.
func (r *BackendRepo) Update(ctx context.Context, backend *Backend) error {
	models, err := encodeStringSlice(backend.KnownModels)
	if err != nil {
		return err
	}
	key, err := r.sealKey(backend.APIKey)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update backend tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if backend.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE backends SET is_default = 0 WHERE is_default = 1 AND id <> ?`, backend.ID); err != nil {
			return fmt.Errorf("clear default backend: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
UPDATE backends
SET name = ?, provider_type = ?, base_url = ?, api_key = ?, known_models = ?, is_default = ?
WHERE id = ?
`, backend.Name, backend.ProviderType, backend.BaseURL, key, models, boolToInt(backend.IsDefault), backend.ID)
	if err != nil {
		return fmt.Errorf("failed to update backend %q: %w", backend.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for backend %q: %w", backend.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("backend %q not found", backend.ID)
	}

	if err := ensureDefaultBackend(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update backend tx: %w", err)
	}
	return nil
}

func (r *BackendRepo) UpdateKnownModels(ctx context.Context, id string, models []string) error {
	raw, err := encodeStringSlice(models)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE backends SET known_models = ? WHERE id = ?`, raw, id); err != nil {
		return fmt.Errorf("failed to update models for backend %q: %w", id, err)
	}
	return nil
}

// Delete removes the backend and, when it was the default, promotes the
// oldest remaining backend.
func (r *BackendRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete backend tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backends WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete backend %q: %w", id, err)
	}
	if err := ensureDefaultBackend(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete backend tx: %w", err)
	}
	return nil
}

func ensureDefaultBackend(ctx context.Context, tx *sql.Tx) error {
	var defaults int
	if err := tx.QueryRowContext(ctx, `SELECT count(1) FROM backends WHERE is_default = 1`).Scan(&defaults); err != nil {
		return fmt.Errorf("count default backends: %w", err)
	}
	if defaults > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE backends SET is_default = 1
WHERE rowid = (SELECT rowid FROM backends ORDER BY created_at ASC, rowid ASC LIMIT 1)
`); err != nil {
		return fmt.Errorf("promote default backend: %w", err)
	}
	return nil
}

func (r *BackendRepo) sealKey(plain string) (string, error) {
	if r.box == nil {
		return plain, nil
	}
	sealed, err := r.box.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("encrypt api key: %w", err)
	}
	return sealed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *BackendRepo) scan(row rowScanner) (*Backend, error) {
	var b Backend
	var keyRaw, modelsRaw, createdAtRaw string
	var isDefault int
	if err := row.Scan(&b.ID, &b.Name, &b.ProviderType, &b.BaseURL, &keyRaw, &modelsRaw, &isDefault, &createdAtRaw); err != nil {
		return nil, err
	}
	var err error
	b.KnownModels, err = decodeStringSlice(modelsRaw)
	if err != nil {
		return nil, err
	}
	b.CreatedAt, err = parseTimestamp(createdAtRaw)
	if err != nil {
		return nil, err
	}
	b.IsDefault = isDefault == 1
	b.APIKey = keyRaw
	if r.box != nil {
		b.APIKey = r.box.Decrypt(keyRaw)
	}
	return &b, nil
}
