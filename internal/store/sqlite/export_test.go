package sqlite

import (
	"context"
	"database/sql"
	"strings"
)

// DB exposes the internal *sql.DB for test helpers in sqlite_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FailExec makes every exec whose SQL contains match return err.
func FailExec(s *Store, match string, err error) {
	s.hooks.exec = func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
		if strings.Contains(query, match) {
			return nil, err
		}
		return db.ExecContext(ctx, query, args...)
	}
}

// FailQuery makes every query whose SQL contains match return err.
func FailQuery(s *Store, match string, err error) {
	s.hooks.query = func(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error) {
		if strings.Contains(query, match) {
			return nil, err
		}
		return db.QueryContext(ctx, query, args...)
	}
}

// FailBeginTx makes every transaction fail to start with err.
func FailBeginTx(s *Store, err error) {
	s.hooks.beginTx = func(context.Context, *sql.DB) (*sql.Tx, error) {
		return nil, err
	}
}
