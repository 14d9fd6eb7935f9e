package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// ─── Workspaces ──────────────────────────────────────────────────────────────

// EnsureWorkspace returns the workspace with key, creating it when it does
// not exist yet. New workspaces store no policy of their own, so they follow
// the configured default until one is set. An empty name defaults to the
// key.
func (s *Store) EnsureWorkspace(ctx context.Context, key, name string) (*model.Workspace, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("sqlite: ensure workspace: key is required")
	}
	if w, err := s.GetWorkspaceByKey(ctx, key); err == nil {
		return w, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = key
	}
	settings, err := encodeJSON(model.WorkspaceSettings{}, "{}")
	if err != nil {
		return nil, fmt.Errorf("sqlite: ensure workspace settings: %w", err)
	}
	if _, err := s.execHook(ctx, s.db,
		`INSERT INTO workspaces (id, key, name, settings, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO NOTHING`,
		s.newID(), key, name, settings, s.stamp()); err != nil {
		return nil, fmt.Errorf("sqlite: ensure workspace: %w", err)
	}
	return s.GetWorkspaceByKey(ctx, key)
}

// UpdateWorkspaceSettings replaces a workspace's settings. A set policy is
// normalized before it is stored; an unset one stays unset.
func (s *Store) UpdateWorkspaceSettings(ctx context.Context, workspaceID string, settings model.WorkspaceSettings) error {
	if settings.Policy != (model.ActiveWorkPolicy{}) {
		settings.Policy = settings.Policy.Normalize()
	}
	raw, err := encodeJSON(settings, "{}")
	if err != nil {
		return fmt.Errorf("sqlite: update workspace settings: %w", err)
	}
	res, err := s.execHook(ctx, s.db, `UPDATE workspaces SET settings = ? WHERE id = ?`, raw, workspaceID)
	if err != nil {
		return fmt.Errorf("sqlite: update workspace settings: %w", err)
	}
	if err := rowsAffected(res); err != nil {
		return fmt.Errorf("sqlite: update workspace settings %s: %w", workspaceID, err)
	}
	return nil
}

// ListWorkspaces returns every workspace ordered by key.
func (s *Store) ListWorkspaces(ctx context.Context) ([]model.Workspace, error) {
	return s.queryWorkspaces(ctx, "list workspaces",
		`SELECT id, key, name, settings, created_at FROM workspaces ORDER BY key`)
}

// GetWorkspaceByKey returns store.ErrNotFound for an unknown key.
func (s *Store) GetWorkspaceByKey(ctx context.Context, key string) (*model.Workspace, error) {
	list, err := s.queryWorkspaces(ctx, "get workspace",
		`SELECT id, key, name, settings, created_at FROM workspaces WHERE key = ?`, key)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return &list[0], nil
}

func (s *Store) queryWorkspaces(ctx context.Context, op, q string, args ...any) ([]model.Workspace, error) {
	rows, err := s.queryHook(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Workspace
	for rows.Next() {
		var (
			w                 model.Workspace
			settings, created string
		)
		if err := rows.Scan(&w.ID, &w.Key, &w.Name, &settings, &created); err != nil {
			return nil, fmt.Errorf("sqlite: %s: %w", op, err)
		}
		if err := json.Unmarshal([]byte(settings), &w.Settings); err != nil {
			return nil, fmt.Errorf("sqlite: workspace %s settings: %w", w.Key, err)
		}
		if w.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("sqlite: %s: %w", op, err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ─── Projects ────────────────────────────────────────────────────────────────

// EnsureProject returns the project with key in the workspace, creating it
// when missing.
func (s *Store) EnsureProject(ctx context.Context, workspaceID, key, name string) (*model.Project, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("sqlite: ensure project: key is required")
	}
	if p, err := s.GetProjectByKey(ctx, workspaceID, key); err == nil {
		return p, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = key
	}
	if _, err := s.execHook(ctx, s.db,
		`INSERT INTO projects (id, workspace_id, key, name, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(workspace_id, key) DO NOTHING`,
		s.newID(), workspaceID, key, name, s.stamp()); err != nil {
		return nil, fmt.Errorf("sqlite: ensure project: %w", err)
	}
	return s.GetProjectByKey(ctx, workspaceID, key)
}

// ListProjects returns a workspace's projects ordered by key.
func (s *Store) ListProjects(ctx context.Context, workspaceID string) ([]model.Project, error) {
	return s.queryProjects(ctx, "list projects",
		`SELECT id, workspace_id, key, name, created_at FROM projects WHERE workspace_id = ? ORDER BY key`,
		workspaceID)
}

// GetProjectByKey returns store.ErrNotFound for an unknown key.
func (s *Store) GetProjectByKey(ctx context.Context, workspaceID, key string) (*model.Project, error) {
	list, err := s.queryProjects(ctx, "get project",
		`SELECT id, workspace_id, key, name, created_at FROM projects WHERE workspace_id = ? AND key = ?`,
		workspaceID, key)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return &list[0], nil
}

func (s *Store) queryProjects(ctx context.Context, op, q string, args ...any) ([]model.Project, error) {
	rows, err := s.queryHook(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Project
	for rows.Next() {
		var (
			p       model.Project
			created string
		)
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Key, &p.Name, &created); err != nil {
			return nil, fmt.Errorf("sqlite: %s: %w", op, err)
		}
		if p.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("sqlite: %s: %w", op, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ─── User preferences ────────────────────────────────────────────────────────

// UserPreference returns nil when the user has no stored preference.
func (s *Store) UserPreference(ctx context.Context, workspaceID, userID string) (*model.UserPreference, error) {
	var persona, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT persona, updated_at FROM user_preferences WHERE workspace_id = ? AND user_id = ?`,
		workspaceID, userID,
	).Scan(&persona, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: user preference: %w", err)
	}
	at, err := parseTime(updated)
	if err != nil {
		return nil, fmt.Errorf("sqlite: user preference: %w", err)
	}
	return &model.UserPreference{WorkspaceID: workspaceID, UserID: userID, Persona: persona, UpdatedAt: at}, nil
}

// SetUserPreference stores a user's persona choice. An empty persona
// clears it.
func (s *Store) SetUserPreference(ctx context.Context, workspaceID, userID, persona string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("sqlite: set user preference: user id is required")
	}
	persona = strings.ToLower(strings.TrimSpace(persona))
	if persona == "" {
		if _, err := s.execHook(ctx, s.db,
			`DELETE FROM user_preferences WHERE workspace_id = ? AND user_id = ?`, workspaceID, userID); err != nil {
			return fmt.Errorf("sqlite: clear user preference: %w", err)
		}
		return nil
	}
	if _, err := s.execHook(ctx, s.db, `
		INSERT INTO user_preferences (workspace_id, user_id, persona, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, user_id) DO UPDATE SET
			persona = excluded.persona,
			updated_at = excluded.updated_at`,
		workspaceID, userID, persona, s.stamp()); err != nil {
		return fmt.Errorf("sqlite: set user preference: %w", err)
	}
	return nil
}

// ─── Extraction diagnostics ──────────────────────────────────────────────────

// AddDiagnostic records one extraction run and sets d.ID.
func (s *Store) AddDiagnostic(ctx context.Context, d *model.ExtractionDiagnostic) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	res, err := s.execHook(ctx, s.db, `
		INSERT INTO extraction_diagnostics (workspace_id, project_id, source, extracted, saved, duplicates, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.WorkspaceID, d.ProjectID, d.Source, d.Extracted, d.Saved, d.Duplicates, d.Message, formatTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: add diagnostic: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: add diagnostic: %w", err)
	}
	d.ID = id
	return nil
}

// RecentDiagnostics returns a project's extraction runs, newest first.
func (s *Store) RecentDiagnostics(ctx context.Context, workspaceID, projectID string, limit int) ([]model.ExtractionDiagnostic, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.queryHook(ctx, s.db, `
		SELECT id, workspace_id, project_id, source, extracted, saved, duplicates, message, created_at
		FROM extraction_diagnostics WHERE workspace_id = ? AND project_id = ?
		ORDER BY id DESC LIMIT ?`,
		workspaceID, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent diagnostics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ExtractionDiagnostic
	for rows.Next() {
		var (
			d       model.ExtractionDiagnostic
			created string
		)
		if err := rows.Scan(&d.ID, &d.WorkspaceID, &d.ProjectID, &d.Source, &d.Extracted, &d.Saved,
			&d.Duplicates, &d.Message, &created); err != nil {
			return nil, fmt.Errorf("sqlite: recent diagnostics: %w", err)
		}
		if d.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("sqlite: recent diagnostics: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
