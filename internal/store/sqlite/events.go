package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// ─── Raw events ──────────────────────────────────────────────────────────────

// RecordRawEvent stores one repository hook event. Missing ids and
// timestamps are generated.
func (s *Store) RecordRawEvent(ctx context.Context, e *model.RawEvent) error {
	if _, err := model.ParseEventType(string(e.Type)); err != nil {
		return fmt.Errorf("sqlite: record event: %w", err)
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	files, err := encodeJSON(e.ChangedFiles, "[]")
	if err != nil {
		return fmt.Errorf("sqlite: record event files: %w", err)
	}
	if _, err := s.execHook(ctx, s.db, `
		INSERT INTO raw_events (id, workspace_id, project_id, event_type, branch, commit_message, changed_files, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkspaceID, e.ProjectID, string(e.Type), strings.TrimSpace(e.Branch), e.CommitMessage, files,
		formatTime(e.CreatedAt)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: record event %s: %w", e.ID, store.ErrConflict)
		}
		return fmt.Errorf("sqlite: record event: %w", err)
	}
	return nil
}

// ListRawEvents returns a project's events, newest first.
func (s *Store) ListRawEvents(ctx context.Context, f store.EventFilter) ([]model.RawEvent, error) {
	q := `SELECT id, workspace_id, project_id, event_type, branch, commit_message, changed_files, created_at
		FROM raw_events WHERE workspace_id = ? AND project_id = ?`
	args := []any{f.WorkspaceID, f.ProjectID}
	if !f.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, formatTime(f.Since))
	}
	if len(f.Types) > 0 {
		q += " AND event_type IN " + inClause(len(f.Types))
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	q += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.queryHook(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list raw events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RawEvent
	for rows.Next() {
		var (
			e              model.RawEvent
			typ, files, at string
		)
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.ProjectID, &typ, &e.Branch, &e.CommitMessage, &files, &at); err != nil {
			return nil, fmt.Errorf("sqlite: list raw events: %w", err)
		}
		e.Type = model.EventType(typ)
		if err := json.Unmarshal([]byte(files), &e.ChangedFiles); err != nil {
			return nil, fmt.Errorf("sqlite: raw event %s files: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("sqlite: list raw events: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
