// Package pg implements the persistence contracts on PostgreSQL through
// database/sql and the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"authd.dev/internal/authz"
)

// querier is satisfied by both *sql.DB and *sql.Tx so entity stores run
// unchanged inside and outside transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the PostgreSQL-backed implementation of every persistence
// contract in the engine.
type Store struct {
	db *sql.DB
	q  querier
	tx *sql.Tx
}

var _ authz.Store = (*Store)(nil)

// Open connects and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db, q: db}, nil
}

// NewWithDB wraps an existing handle, used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db, q: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users(ctx context.Context) authz.UserStore                 { return &userStore{q: s.q} }
func (s *Store) Organizations(ctx context.Context) authz.OrganizationStore { return &orgStore{q: s.q} }
func (s *Store) Teams(ctx context.Context) authz.TeamStore                 { return &teamStore{q: s.q} }
func (s *Store) Roles(ctx context.Context) authz.RoleStore                 { return &roleStore{q: s.q} }
func (s *Store) Permissions(ctx context.Context) authz.PermissionStore     { return &permStore{q: s.q} }
func (s *Store) Assignments(ctx context.Context) authz.AssignmentStore     { return &assignStore{q: s.q} }

// WithinTx runs fn against a store bound to one transaction. A store that
// is already transaction-bound reuses its transaction, so nested calls
// compose into a single commit.
func (s *Store) WithinTx(ctx context.Context, fn func(authz.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Store{db: s.db, q: tx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// mapErr translates driver errors into the engine's sentinel errors.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return authz.ErrConflict
		case "23503":
			return authz.ErrNotFound
		}
	}
	return err
}

// nullStr maps empty strings to NULL for optional reference columns.
func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fromNull(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
