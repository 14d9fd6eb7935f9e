package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// ─── Active work ─────────────────────────────────────────────────────────────

const workColumns = `id, workspace_id, project_id, title, inference_key, confidence, status, stale,
	stale_reason, evidence_ids, last_evidence_at, last_updated_at, closed_at, created_at`

// ListActiveWork returns a project's rows ordered by creation, then id.
func (s *Store) ListActiveWork(ctx context.Context, f store.ActiveWorkFilter) ([]model.ActiveWork, error) {
	q := `SELECT ` + workColumns + ` FROM active_work
		WHERE workspace_id = ? AND project_id = ? AND deleted_at IS NULL`
	args := []any{f.WorkspaceID, f.ProjectID}
	if len(f.Statuses) > 0 {
		q += " AND status IN " + inClause(len(f.Statuses))
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	q += " ORDER BY created_at, id"
	return s.queryWork(ctx, "list active work", q, args...)
}

// GetActiveWork returns store.ErrNotFound when the row is not in the project.
func (s *Store) GetActiveWork(ctx context.Context, workspaceID, projectID, id string) (*model.ActiveWork, error) {
	list, err := s.queryWork(ctx, "get active work",
		`SELECT `+workColumns+` FROM active_work
		 WHERE workspace_id = ? AND project_id = ? AND id = ? AND deleted_at IS NULL`,
		workspaceID, projectID, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return &list[0], nil
}

// CreateActiveWork inserts a row. A second open row with the same
// normalized title in the project fails with store.ErrConflict.
func (s *Store) CreateActiveWork(ctx context.Context, w *model.ActiveWork) error {
	if w.ID == "" {
		w.ID = s.newID()
	}
	evidence, err := encodeJSON(w.EvidenceIDs, "[]")
	if err != nil {
		return fmt.Errorf("sqlite: create active work evidence: %w", err)
	}
	if _, err := s.execHook(ctx, s.db, `
		INSERT INTO active_work (id, workspace_id, project_id, title, norm_title, inference_key, confidence,
			status, stale, stale_reason, evidence_ids, last_evidence_at, last_updated_at, closed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.WorkspaceID, w.ProjectID, w.Title, model.NormalizeTitle(w.Title), w.InferenceKey, w.Confidence,
		string(w.Status), boolInt(w.Stale), w.StaleReason, evidence, formatNullTime(w.LastEvidenceAt),
		formatTime(w.LastUpdatedAt), formatNullTime(w.ClosedAt), formatTime(w.CreatedAt)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: create active work %q: %w", w.Title, store.ErrConflict)
		}
		return fmt.Errorf("sqlite: create active work: %w", err)
	}
	return nil
}

// UpdateActiveWork replaces the mutable fields of a row.
func (s *Store) UpdateActiveWork(ctx context.Context, w *model.ActiveWork) error {
	evidence, err := encodeJSON(w.EvidenceIDs, "[]")
	if err != nil {
		return fmt.Errorf("sqlite: update active work evidence: %w", err)
	}
	res, err := s.execHook(ctx, s.db, `
		UPDATE active_work SET
			title = ?, norm_title = ?, inference_key = ?, confidence = ?, status = ?, stale = ?,
			stale_reason = ?, evidence_ids = ?, last_evidence_at = ?, last_updated_at = ?, closed_at = ?
		WHERE id = ? AND workspace_id = ? AND project_id = ? AND deleted_at IS NULL`,
		w.Title, model.NormalizeTitle(w.Title), w.InferenceKey, w.Confidence, string(w.Status), boolInt(w.Stale),
		w.StaleReason, evidence, formatNullTime(w.LastEvidenceAt), formatTime(w.LastUpdatedAt), formatNullTime(w.ClosedAt),
		w.ID, w.WorkspaceID, w.ProjectID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: update active work %q: %w", w.Title, store.ErrConflict)
		}
		return fmt.Errorf("sqlite: update active work: %w", err)
	}
	if err := rowsAffected(res); err != nil {
		return fmt.Errorf("sqlite: update active work %s: %w", w.ID, err)
	}
	return nil
}

// AppendActiveWorkEvents writes lifecycle events in one transaction.
func (s *Store) AppendActiveWorkEvents(ctx context.Context, events ...model.ActiveWorkEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: append work events: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		if e.ID == "" {
			e.ID = s.newID()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.now()
		}
		details, err := encodeJSON(e.Details, "{}")
		if err != nil {
			return fmt.Errorf("sqlite: append work event details: %w", err)
		}
		if _, err := s.execHook(ctx, tx, `
			INSERT INTO active_work_events (id, active_work_id, event_type, details, correlation_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.ActiveWorkID, string(e.Type), details, e.CorrelationID, formatTime(e.CreatedAt)); err != nil {
			return fmt.Errorf("sqlite: append work event: %w", err)
		}
	}
	if err := s.commitHook(tx); err != nil {
		return fmt.Errorf("sqlite: append work events: commit: %w", err)
	}
	return nil
}

// ListActiveWorkEvents returns a row's events oldest first.
func (s *Store) ListActiveWorkEvents(ctx context.Context, activeWorkID string) ([]model.ActiveWorkEvent, error) {
	rows, err := s.queryHook(ctx, s.db, `
		SELECT id, active_work_id, event_type, details, correlation_id, created_at
		FROM active_work_events WHERE active_work_id = ? ORDER BY seq`, activeWorkID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list work events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ActiveWorkEvent
	for rows.Next() {
		var (
			e                 model.ActiveWorkEvent
			typ, details, at string
		)
		if err := rows.Scan(&e.ID, &e.ActiveWorkID, &typ, &details, &e.CorrelationID, &at); err != nil {
			return nil, fmt.Errorf("sqlite: list work events: %w", err)
		}
		e.Type = model.ActiveWorkEventType(typ)
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("sqlite: work event %s details: %w", e.ID, err)
		}
		if len(e.Details) == 0 {
			e.Details = nil
		}
		if e.CreatedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("sqlite: list work events: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) queryWork(ctx context.Context, op, q string, args ...any) ([]model.ActiveWork, error) {
	rows, err := s.queryHook(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ActiveWork
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %s: %w", op, err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func scanWork(sc scanner) (*model.ActiveWork, error) {
	var (
		w                     model.ActiveWork
		status, evidence      string
		stale                 int
		lastEvidence, closed  sql.NullString
		lastUpdated, created  string
	)
	if err := sc.Scan(&w.ID, &w.WorkspaceID, &w.ProjectID, &w.Title, &w.InferenceKey, &w.Confidence, &status, &stale,
		&w.StaleReason, &evidence, &lastEvidence, &lastUpdated, &closed, &created); err != nil {
		return nil, err
	}
	w.Status = model.WorkStatus(status)
	w.Stale = stale != 0
	if err := json.Unmarshal([]byte(evidence), &w.EvidenceIDs); err != nil {
		return nil, fmt.Errorf("active work %s evidence: %w", w.ID, err)
	}
	var err error
	if w.LastEvidenceAt, err = parseNullTime(lastEvidence); err != nil {
		return nil, err
	}
	if w.ClosedAt, err = parseNullTime(closed); err != nil {
		return nil, err
	}
	if w.LastUpdatedAt, err = parseTime(lastUpdated); err != nil {
		return nil, err
	}
	if w.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &w, nil
}
