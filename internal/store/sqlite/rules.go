package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/hoofctx/internal/model"
	"github.com/HendryAvila/hoofctx/internal/store"
)

// ─── Rules ───────────────────────────────────────────────────────────────────

const ruleColumns = `id, workspace_id, scope, user_id, title, content, category, priority,
	severity, pinned, enabled, tags, usage_count, last_routed_at, updated_at`

// ListRules returns the rules of one scope in creation order. The user scope
// without a user id is empty.
func (s *Store) ListRules(ctx context.Context, f store.RuleFilter) ([]model.Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM rules WHERE workspace_id = ? AND scope = ?`
	args := []any{f.WorkspaceID, string(f.Scope)}
	if f.Scope == model.ScopeUser {
		if f.UserID == "" {
			return nil, nil
		}
		q += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	q += " ORDER BY created_at, id"

	rows, err := s.queryHook(ctx, s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list rules: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetRule returns one rule of a workspace.
func (s *Store) GetRule(ctx context.Context, workspaceID, id string) (*model.Rule, error) {
	rows, err := s.queryHook(ctx, s.db,
		`SELECT `+ruleColumns+` FROM rules WHERE workspace_id = ? AND id = ?`, workspaceID, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get rule: %w", err)
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("sqlite: get rule: %w", err)
		}
		return nil, store.ErrNotFound
	}
	return scanRule(rows)
}

// SaveRule inserts r, or replaces the stored rule with the same id. A new
// rule gets a generated id. Priority, category and severity are normalized.
func (s *Store) SaveRule(ctx context.Context, r *model.Rule) error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("sqlite: save rule: title is required")
	}
	if r.Scope == model.ScopeUser && r.UserID == "" {
		return fmt.Errorf("sqlite: save rule: user scope requires a user id")
	}
	if r.Scope == model.ScopeWorkspace {
		r.UserID = ""
	}
	r.Priority = model.ClampPriority(r.Priority)
	r.Category = model.ParseCategory(string(r.Category))
	r.Severity = model.ParseSeverity(string(r.Severity))
	now := s.now()
	r.UpdatedAt = now
	tags, err := encodeJSON(r.Tags, "[]")
	if err != nil {
		return fmt.Errorf("sqlite: save rule tags: %w", err)
	}

	if r.ID == "" {
		r.ID = s.newID()
	}
	res, err := s.execHook(ctx, s.db, `
		INSERT INTO rules (id, workspace_id, scope, user_id, title, content, category, priority,
			severity, pinned, enabled, tags, usage_count, last_routed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scope = excluded.scope,
			user_id = excluded.user_id,
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			priority = excluded.priority,
			severity = excluded.severity,
			pinned = excluded.pinned,
			enabled = excluded.enabled,
			tags = excluded.tags,
			updated_at = excluded.updated_at
		WHERE rules.workspace_id = excluded.workspace_id`,
		r.ID, r.WorkspaceID, string(r.Scope), r.UserID, r.Title, r.Content, string(r.Category), r.Priority,
		string(r.Severity), boolInt(r.Pinned), boolInt(r.Enabled), tags, r.UsageCount, formatNullTime(r.LastRoutedAt),
		formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("sqlite: save rule: %w", err)
	}
	// The upsert changes nothing when the id belongs to another workspace.
	if err := rowsAffected(res); err != nil {
		return fmt.Errorf("sqlite: save rule %s: %w", r.ID, err)
	}
	return nil
}

// RuleSummary returns the persisted summary of a scope, or nil.
func (s *Store) RuleSummary(ctx context.Context, f store.RuleFilter) (*model.RuleSummary, error) {
	var content, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT content, updated_at FROM rule_summaries WHERE workspace_id = ? AND scope = ? AND user_id = ?`,
		f.WorkspaceID, string(f.Scope), summaryUser(f),
	).Scan(&content, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: rule summary: %w", err)
	}
	at, err := parseTime(updated)
	if err != nil {
		return nil, fmt.Errorf("sqlite: rule summary: %w", err)
	}
	return &model.RuleSummary{WorkspaceID: f.WorkspaceID, Scope: f.Scope, UserID: summaryUser(f), Content: content, UpdatedAt: at}, nil
}

// SaveRuleSummary stores the summary of a scope, replacing any previous one.
func (s *Store) SaveRuleSummary(ctx context.Context, sum model.RuleSummary) error {
	if sum.UpdatedAt.IsZero() {
		sum.UpdatedAt = s.now()
	}
	f := store.RuleFilter{WorkspaceID: sum.WorkspaceID, Scope: sum.Scope, UserID: sum.UserID}
	_, err := s.execHook(ctx, s.db, `
		INSERT INTO rule_summaries (workspace_id, scope, user_id, content, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, scope, user_id) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at`,
		sum.WorkspaceID, string(sum.Scope), summaryUser(f), sum.Content, formatTime(sum.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite: save rule summary: %w", err)
	}
	return nil
}

// MarkRulesRouted increments usage_count and stamps last_routed_at on every
// rule in ids, in one transaction.
func (s *Store) MarkRulesRouted(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: mark routed: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(at))
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.execHook(ctx, tx,
		`UPDATE rules SET usage_count = usage_count + 1, last_routed_at = ? WHERE id IN `+inClause(len(ids)),
		args...); err != nil {
		return fmt.Errorf("sqlite: mark routed: %w", err)
	}
	if err := s.commitHook(tx); err != nil {
		return fmt.Errorf("sqlite: mark routed: commit: %w", err)
	}
	return nil
}

func summaryUser(f store.RuleFilter) string {
	if f.Scope == model.ScopeUser {
		return f.UserID
	}
	return ""
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(sc scanner) (*model.Rule, error) {
	var (
		r               model.Rule
		scope, cat, sev string
		pinned, enabled int
		tags, updated   string
		lastRouted      sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.WorkspaceID, &scope, &r.UserID, &r.Title, &r.Content, &cat, &r.Priority,
		&sev, &pinned, &enabled, &tags, &r.UsageCount, &lastRouted, &updated); err != nil {
		return nil, err
	}
	r.Scope = model.Scope(scope)
	r.Category = model.Category(cat)
	r.Severity = model.Severity(sev)
	r.Pinned = pinned != 0
	r.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return nil, fmt.Errorf("rule %s tags: %w", r.ID, err)
	}
	if len(r.Tags) == 0 {
		r.Tags = nil
	}
	var err error
	if r.LastRoutedAt, err = parseNullTime(lastRouted); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &r, nil
}
