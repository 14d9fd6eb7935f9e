// Package sqlite implements the hoofctx store on SQLite with FTS5 full-text
// search over memories.
//
// The schema is created by idempotent migrations on Open, so opening an
// existing database upgrades it in place without data loss. Timestamps are
// stored as fixed-width RFC 3339 UTC strings, which sort lexically in time
// order.
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/HendryAvila/hoofctx/internal/store"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeLayout is RFC 3339 with fixed nanoseconds.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the SQLite-backed implementation of store.Store.
type Store struct {
	db    *sql.DB
	hooks storeHooks
	now   func() time.Time
	newID func() string
}

var _ store.Store = (*Store)(nil)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type storeHooks struct {
	exec    func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error)
	query   func(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error)
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		exec: func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
			return db.ExecContext(ctx, query, args...)
		},
		query: func(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error) {
			return db.QueryContext(ctx, query, args...)
		},
		beginTx: func(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (s *Store) execHook(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(ctx, db, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *Store) queryHook(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error) {
	if s.hooks.query != nil {
		return s.hooks.query(ctx, db, query, args...)
	}
	return db.QueryContext(ctx, query, args...)
}

func (s *Store) beginTxHook(ctx context.Context) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, s.db)
	}
	return s.db.BeginTx(ctx, nil)
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDs overrides the generator used for new row ids.
func WithIDs(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// Open opens (creating if needed) the database at path, applies the SQLite
// pragmas and runs migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// One connection keeps the per-connection pragmas in force and
	// serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, hooks: defaultStoreHooks(), now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS workspaces (
			id         TEXT PRIMARY KEY,
			key        TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL,
			settings   TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS projects (
			id           TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			key          TEXT NOT NULL,
			name         TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			FOREIGN KEY (workspace_id) REFERENCES workspaces(id) ON DELETE CASCADE
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_key ON projects(workspace_id, key);

		CREATE TABLE IF NOT EXISTS rules (
			id             TEXT    PRIMARY KEY,
			workspace_id   TEXT    NOT NULL,
			scope          TEXT    NOT NULL,
			user_id        TEXT    NOT NULL DEFAULT '',
			title          TEXT    NOT NULL,
			content        TEXT    NOT NULL,
			category       TEXT    NOT NULL DEFAULT 'other',
			priority       INTEGER NOT NULL DEFAULT 3,
			severity       TEXT    NOT NULL DEFAULT 'medium',
			pinned         INTEGER NOT NULL DEFAULT 0,
			enabled        INTEGER NOT NULL DEFAULT 1,
			tags           TEXT    NOT NULL DEFAULT '[]',
			usage_count    INTEGER NOT NULL DEFAULT 0,
			last_routed_at TEXT,
			created_at     TEXT    NOT NULL,
			updated_at     TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rules_scope ON rules(workspace_id, scope, user_id, created_at);

		CREATE TABLE IF NOT EXISTS rule_summaries (
			workspace_id TEXT NOT NULL,
			scope        TEXT NOT NULL,
			user_id      TEXT NOT NULL DEFAULT '',
			content      TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			PRIMARY KEY (workspace_id, scope, user_id)
		);

		CREATE TABLE IF NOT EXISTS memories (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT    NOT NULL UNIQUE,
			workspace_id    TEXT    NOT NULL,
			project_id      TEXT    NOT NULL,
			type            TEXT    NOT NULL,
			status          TEXT    NOT NULL DEFAULT '',
			content         TEXT    NOT NULL,
			subpath         TEXT    NOT NULL DEFAULT '',
			source          TEXT    NOT NULL DEFAULT '',
			normalized_hash TEXT    NOT NULL,
			created_at      TEXT    NOT NULL,
			updated_at      TEXT    NOT NULL,
			deleted_at      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_mem_project ON memories(workspace_id, project_id, type, updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_mem_created ON memories(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_mem_dedupe  ON memories(normalized_hash, workspace_id, project_id, type);

		CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			content,
			type,
			subpath,
			content='memories',
			content_rowid='seq'
		);

		CREATE TABLE IF NOT EXISTS raw_events (
			id             TEXT PRIMARY KEY,
			workspace_id   TEXT NOT NULL,
			project_id     TEXT NOT NULL,
			event_type     TEXT NOT NULL,
			branch         TEXT NOT NULL DEFAULT '',
			commit_message TEXT NOT NULL DEFAULT '',
			changed_files  TEXT NOT NULL DEFAULT '[]',
			created_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_raw_project ON raw_events(workspace_id, project_id, created_at DESC);
	`
	if _, err := s.execHook(ctx, s.db, schema); err != nil {
		return err
	}

	// Active work and its lifecycle log. The partial unique index enforces
	// one open row per normalized title in a project.
	if _, err := s.execHook(ctx, s.db, `
		CREATE TABLE IF NOT EXISTS active_work (
			id               TEXT    PRIMARY KEY,
			workspace_id     TEXT    NOT NULL,
			project_id       TEXT    NOT NULL,
			title            TEXT    NOT NULL,
			norm_title       TEXT    NOT NULL,
			inference_key    TEXT    NOT NULL DEFAULT '',
			confidence       REAL    NOT NULL DEFAULT 0,
			status           TEXT    NOT NULL,
			stale            INTEGER NOT NULL DEFAULT 0,
			stale_reason     TEXT    NOT NULL DEFAULT '',
			evidence_ids     TEXT    NOT NULL DEFAULT '[]',
			last_evidence_at TEXT,
			last_updated_at  TEXT    NOT NULL,
			closed_at        TEXT,
			created_at       TEXT    NOT NULL,
			deleted_at       TEXT
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_work_title
			ON active_work(workspace_id, project_id, norm_title) WHERE deleted_at IS NULL;
		CREATE INDEX IF NOT EXISTS idx_work_project ON active_work(workspace_id, project_id, status);

		CREATE TABLE IF NOT EXISTS active_work_events (
			seq            INTEGER PRIMARY KEY AUTOINCREMENT,
			id             TEXT    NOT NULL UNIQUE,
			active_work_id TEXT    NOT NULL,
			event_type     TEXT    NOT NULL,
			details        TEXT    NOT NULL DEFAULT '{}',
			correlation_id TEXT    NOT NULL DEFAULT '',
			created_at     TEXT    NOT NULL,
			FOREIGN KEY (active_work_id) REFERENCES active_work(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_work_events ON active_work_events(active_work_id, seq);
	`); err != nil {
		return err
	}

	if _, err := s.execHook(ctx, s.db, `
		CREATE TABLE IF NOT EXISTS user_preferences (
			workspace_id TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			persona      TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			PRIMARY KEY (workspace_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS extraction_diagnostics (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			workspace_id TEXT    NOT NULL,
			project_id   TEXT    NOT NULL,
			source       TEXT    NOT NULL DEFAULT '',
			extracted    INTEGER NOT NULL DEFAULT 0,
			saved        INTEGER NOT NULL DEFAULT 0,
			duplicates   INTEGER NOT NULL DEFAULT 0,
			message      TEXT    NOT NULL DEFAULT '',
			created_at   TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_diag_project ON extraction_diagnostics(workspace_id, project_id, id DESC);
	`); err != nil {
		return err
	}

	// Create FTS triggers (idempotent)
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='mem_fts_insert'",
	).Scan(&name)

	if errors.Is(err, sql.ErrNoRows) {
		triggers := `
			CREATE TRIGGER mem_fts_insert AFTER INSERT ON memories BEGIN
				INSERT INTO memories_fts(rowid, content, type, subpath)
				VALUES (new.seq, new.content, new.type, new.subpath);
			END;

			CREATE TRIGGER mem_fts_delete AFTER DELETE ON memories BEGIN
				INSERT INTO memories_fts(memories_fts, rowid, content, type, subpath)
				VALUES ('delete', old.seq, old.content, old.type, old.subpath);
			END;

			CREATE TRIGGER mem_fts_update AFTER UPDATE ON memories BEGIN
				INSERT INTO memories_fts(memories_fts, rowid, content, type, subpath)
				VALUES ('delete', old.seq, old.content, old.type, old.subpath);
				INSERT INTO memories_fts(rowid, content, type, subpath)
				VALUES (new.seq, new.content, new.type, new.subpath);
			END;
		`
		if _, err := s.execHook(ctx, s.db, triggers); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Store) stamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// inClause returns "(?, ?, ...)" for n placeholders.
func inClause(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func hashNormalized(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "fix auth bug" → `"fix" "auth" "bug"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	out := words[:0]
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		out = append(out, `"`+w+`"`)
	}
	return strings.Join(out, " ")
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// rowsAffected maps a zero-row write to store.ErrNotFound.
func rowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
