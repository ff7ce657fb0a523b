package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrDefaultProject = errors.New("cannot delete the default project")

const projectColumns = `id, name, system_prompt, default_backend_id, default_model, enabled_tools, created_at`

type ProjectRepo struct {
	db *sql.DB
}

func NewProjectRepo(db *sql.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

func (r *ProjectRepo) Create(ctx context.Context, project *Project) error {
	if project.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		project.ID = id
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = nowUTC()
	}
	if project.EnabledTools == nil {
		project.EnabledTools = []string{}
	}
	tools, err := encodeStringSlice(project.EnabledTools)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO projects (id, name, system_prompt, default_backend_id, default_model, enabled_tools, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, project.ID, project.Name, project.SystemPrompt, nullIfEmpty(project.DefaultBackendID), project.DefaultModel, tools, formatTimestamp(project.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// EnsureDefault creates the "Default" project with tools enabled when no
// project of that name exists, and returns it either way.
func (r *ProjectRepo) EnsureDefault(ctx context.Context, tools []string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = ? ORDER BY created_at ASC, rowid ASC LIMIT 1`, DefaultProjectName)
	existing, err := scanProject(row)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up default project: %w", err)
	}

	project := &Project{
		Name:         DefaultProjectName,
		SystemPrompt: "You are a helpful assistant.",
		EnabledTools: append([]string(nil), tools...),
	}
	if err := r.Create(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (r *ProjectRepo) Get(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project %q: %w", id, err)
	}
	return p, nil
}

// First returns the earliest created project, or nil when there are none.
func (r *ProjectRepo) First(ctx context.Context) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at ASC, rowid ASC LIMIT 1`)
	p, err := scanProject(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get first project: %w", err)
	}
	return p, nil
}

func (r *ProjectRepo) List(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating projects: %w", err)
	}
	return projects, nil
}

func (r *ProjectRepo) Update(ctx context.Context, project *Project) error {
	tools, err := encodeStringSlice(project.EnabledTools)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE projects
SET name = ?, system_prompt = ?, default_backend_id = ?, default_model = ?, enabled_tools = ?
WHERE id = ?
`, project.Name, project.SystemPrompt, nullIfEmpty(project.DefaultBackendID), project.DefaultModel, tools, project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project %q: %w", project.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for project %q: %w", project.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("project %q not found", project.ID)
	}
	return nil
}

// Delete removes a project. The project named "Default" is refused with
// ErrDefaultProject.
func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	var name string
	err := r.db.QueryRowContext(ctx, `SELECT name FROM projects WHERE id = ?`, id).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("failed to look up project %q: %w", id, err)
	}
	if name == DefaultProjectName {
		return ErrDefaultProject
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete project %q: %w", id, err)
	}
	return nil
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	var backendID sql.NullString
	var toolsRaw, createdAtRaw string
	if err := row.Scan(&p.ID, &p.Name, &p.SystemPrompt, &backendID, &p.DefaultModel, &toolsRaw, &createdAtRaw); err != nil {
		return nil, err
	}
	var err error
	p.DefaultBackendID = backendID.String
	p.EnabledTools, err = decodeStringSlice(toolsRaw)
	if err != nil {
		return nil, err
	}
	p.CreatedAt, err = parseTimestamp(createdAtRaw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
