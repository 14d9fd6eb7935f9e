package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/HendryAvila/hoofctx/internal/budget"
	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/retrieval"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// Memory limits.
const (
	MaxMemoryLength = 4000
	maxSearchLimit  = 40
	searchOverfetch = 3
	titleChars      = 80
	snippetChars    = 240
)

// ─── Memories ────────────────────────────────────────────────────────────────

const memoryColumns = `id, workspace_id, project_id, type, status, content, subpath, source, created_at, updated_at`

// ListMemories returns non-deleted memories, most recently updated first.
func (s *Store) ListMemories(ctx context.Context, f store.MemoryFilter) ([]model.Memory, error) {
	q := `SELECT ` + memoryColumns + ` FROM memories
		WHERE workspace_id = ? AND project_id = ? AND deleted_at IS NULL`
	args := []any{f.WorkspaceID, f.ProjectID}
	if !f.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, formatTime(f.Since))
	}
	if len(f.Types) > 0 {
		q += " AND type IN " + inClause(len(f.Types))
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	if len(f.Statuses) > 0 {
		q += " AND status IN " + inClause(len(f.Statuses))
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	q += " ORDER BY updated_at DESC, seq DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.queryMemories(ctx, "list memories", q, args...)
}

// AddMemory saves m and reports whether a new row was created. Content
// already stored for the same project and type (compared after whitespace
// and case normalization) is not duplicated: the existing row is touched
// and returned instead.
func (s *Store) AddMemory(ctx context.Context, m *model.Memory) (bool, error) {
	m.Content = strings.TrimSpace(m.Content)
	if m.Content == "" {
		return false, fmt.Errorf("sqlite: add memory: content is required")
	}
	if strings.TrimSpace(m.Type) == "" {
		return false, fmt.Errorf("sqlite: add memory: type is required")
	}
	if len(m.Content) > MaxMemoryLength {
		m.Content = m.Content[:MaxMemoryLength] + "... [truncated]"
	}
	hash := hashNormalized(m.Content)
	now := s.stamp()

	var existingID string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM memories
		 WHERE normalized_hash = ? AND workspace_id = ? AND project_id = ? AND type = ?
		   AND deleted_at IS NULL
		 LIMIT 1`,
		hash, m.WorkspaceID, m.ProjectID, m.Type,
	).Scan(&existingID)
	switch {
	case err == nil:
		if _, err := s.execHook(ctx, s.db, `UPDATE memories SET updated_at = ? WHERE id = ?`, now, existingID); err != nil {
			return false, fmt.Errorf("sqlite: touch memory: %w", err)
		}
		got, err := s.GetMemory(ctx, m.WorkspaceID, m.ProjectID, existingID)
		if err != nil {
			return false, err
		}
		*m = *got
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("sqlite: add memory: dedupe lookup: %w", err)
	}

	if m.ID == "" {
		m.ID = s.newID()
	}
	created := now
	if !m.CreatedAt.IsZero() {
		created = formatTime(m.CreatedAt)
	}
	if _, err := s.execHook(ctx, s.db, `
		INSERT INTO memories (id, workspace_id, project_id, type, status, content, subpath, source,
			normalized_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.WorkspaceID, m.ProjectID, m.Type, m.Status, m.Content, m.Metadata.Subpath, m.Metadata.Source,
		hash, created, now); err != nil {
		return false, fmt.Errorf("sqlite: add memory: %w", err)
	}
	got, err := s.GetMemory(ctx, m.WorkspaceID, m.ProjectID, m.ID)
	if err != nil {
		return false, err
	}
	*m = *got
	return true, nil
}

// GetMemory returns one non-deleted memory of a project.
func (s *Store) GetMemory(ctx context.Context, workspaceID, projectID, id string) (*model.Memory, error) {
	list, err := s.queryMemories(ctx, "get memory",
		`SELECT `+memoryColumns+` FROM memories
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

// SetMemoryStatus changes a memory's status, for example to confirm a
// captured draft decision.
func (s *Store) SetMemoryStatus(ctx context.Context, workspaceID, projectID, id, status string) error {
	res, err := s.execHook(ctx, s.db,
		`UPDATE memories SET status = ?, updated_at = ?
		 WHERE workspace_id = ? AND project_id = ? AND id = ? AND deleted_at IS NULL`,
		status, s.stamp(), workspaceID, projectID, id)
	if err != nil {
		return fmt.Errorf("sqlite: set memory status: %w", err)
	}
	if err := rowsAffected(res); err != nil {
		return fmt.Errorf("sqlite: set memory status %s: %w", id, err)
	}
	return nil
}

// DeleteMemory soft-deletes a memory. Deleted memories are excluded from
// lists and search.
func (s *Store) DeleteMemory(ctx context.Context, workspaceID, projectID, id string) error {
	res, err := s.execHook(ctx, s.db,
		`UPDATE memories SET deleted_at = ?
		 WHERE workspace_id = ? AND project_id = ? AND id = ? AND deleted_at IS NULL`,
		s.stamp(), workspaceID, projectID, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete memory: %w", err)
	}
	if err := rowsAffected(res); err != nil {
		return fmt.Errorf("sqlite: delete memory %s: %w", id, err)
	}
	return nil
}

func (s *Store) queryMemories(ctx context.Context, op, q string, args ...any) ([]model.Memory, error) {
	rows, err := s.queryHook(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Memory
	for rows.Next() {
		var (
			m                model.Memory
			created, updated string
		)
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.ProjectID, &m.Type, &m.Status, &m.Content,
			&m.Metadata.Subpath, &m.Metadata.Source, &created, &updated); err != nil {
			return nil, fmt.Errorf("sqlite: %s: %w", op, err)
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("sqlite: %s: %w", op, err)
		}
		if m.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, fmt.Errorf("sqlite: %s: %w", op, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ─── Search (FTS5) ───────────────────────────────────────────────────────────

var _ retrieval.Retriever = (*Store)(nil)

// Search runs an FTS5 query over a project's memories. The bm25 rank is
// mapped into (0,1) as text score, the configured boosts are added, and
// results are ordered by the final score. An empty query finds nothing.
func (s *Store) Search(ctx context.Context, q retrieval.Query) ([]retrieval.Result, error) {
	ftsQuery := sanitizeFTS(q.Text)
	if ftsQuery == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = retrieval.DefaultLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	rows, err := s.queryHook(ctx, s.db, `
		SELECT m.id, m.type, m.content, m.subpath, fts.rank
		FROM memories_fts fts
		JOIN memories m ON m.seq = fts.rowid
		WHERE memories_fts MATCH ?
		  AND m.workspace_id = ? AND m.project_id = ? AND m.deleted_at IS NULL
		ORDER BY fts.rank
		LIMIT ?`,
		ftsQuery, q.WorkspaceID, q.ProjectID, limit*searchOverfetch)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []retrieval.Result
	for rows.Next() {
		var (
			r       retrieval.Result
			content string
			rank    float64
		)
		if err := rows.Scan(&r.ID, &r.Type, &content, &r.Subpath, &rank); err != nil {
			return nil, fmt.Errorf("sqlite: search: %w", err)
		}
		text := textScore(rank)
		boost := q.Boosts.Boost(q.Subpath, r.Subpath, r.Type)
		final := text + boost
		r.Title = budget.Truncate(firstLine(content), titleChars)
		r.Snippet = budget.Truncate(content, snippetChars)
		r.Score = &final
		r.Breakdown = &retrieval.ScoreBreakdown{Text: text, Boost: boost, Final: final}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: search: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return *out[i].Score > *out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// textScore maps an FTS5 bm25 rank (negative, lower is better) to (0,1).
func textScore(rank float64) float64 {
	if rank >= 0 {
		return 0
	}
	return -rank / (1 - rank)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimLeft(s, "#-* ")
}
