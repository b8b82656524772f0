// Package sqlrepo implements the storage.Repository contract over
// database/sql, parameterized by Dialect so one implementation serves the
// embedded file database, PostgreSQL, MySQL, and SQL Server.
//
// All timestamps are persisted as fixed-width UTC strings so lexicographic
// ordering matches chronological ordering on every backend.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lattice-db/lattice/internal/storage"
)

// timeLayout is fixed-width (nine fraction digits) so stored strings sort
// chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Repository for one SQL backend.
type Store struct {
	db      *sql.DB
	exec    execer
	dialect Dialect
	log     *slog.Logger
	inTx    bool
}

// interface guard
var _ storage.Repository = (*Store)(nil)

// New wraps an open database handle. The caller owns driver selection and
// connection-string handling; Migrate must be called before first use.
func New(db *sql.DB, dialect Dialect, log *slog.Logger) *Store {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, exec: db, dialect: dialect, log: log}
}

// Dialect returns the backend dialect, mainly for tests.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s.inTx {
		return errors.New("cannot close store inside a transaction")
	}
	return s.db.Close()
}

// WithTx runs fn inside a transaction; nested calls join the enclosing one.
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Repository) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	child := &Store{db: s.db, exec: tx, dialect: s.dialect, log: s.log, inTx: true}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(child); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// q rebinds a ?-style query for the active dialect.
func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// wrapErr adds operation context and maps driver errors to the contract's
// sentinels: sql.ErrNoRows becomes ErrNotFound, unique violations become
// ErrConflict.
func (s *Store) wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if s.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ExecuteQuery runs an arbitrary ?-style query and returns one map per row
// keyed by lowercase column name.
func (s *Store) ExecuteQuery(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.exec.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.wrapErr("execute query", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, s.wrapErr("execute query columns", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, s.wrapErr("execute query scan", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[strings.ToLower(col)] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ExecuteNonQuery runs an arbitrary ?-style statement and returns the
// affected row count.
func (s *Store) ExecuteNonQuery(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.exec.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, s.wrapErr("execute statement", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil // backends without affected-row counts
	}
	return n, nil
}

// fmtTime renders a timestamp in the fixed-width storage layout.
func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime reads a stored timestamp; zero time on empty input.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// nullStr maps "" to NULL for optional text columns.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// strOrEmpty unwraps a nullable text column.
func strOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// boolToInt stores booleans as 0/1 for cross-backend portability.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders renders "?, ?, ..." for IN clauses before rebinding.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
