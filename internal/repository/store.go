package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/directory-auth/internal/database"
	"github.com/iliyamo/directory-auth/internal/model"
)

// CredentialStore reads and writes the credentials table.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (model.Credential, error)
	FindByUserID(ctx context.Context, userID string) (model.Credential, error)
	// FindByUserIDForUpdate locks the row until the surrounding transaction ends.
	FindByUserIDForUpdate(ctx context.Context, userID string) (model.Credential, error)
	Insert(ctx context.Context, c model.Credential) error
	UpdateRole(ctx context.Context, userID string, role model.Role, now time.Time) (bool, error)
	SetPasswordHash(ctx context.Context, userID, hash string, now time.Time) error
	Delete(ctx context.Context, userID string) (bool, error)
}

// TokenStore reads and writes the tokens table.  "Active" always means
// revoked_at IS NULL and expires_at > now.
type TokenStore interface {
	Insert(ctx context.Context, t model.Token) error
	FindActiveByHash(ctx context.Context, hash string, typ model.TokenType, now time.Time) (model.Token, error)
	// FindActiveByHashForUpdate locks the row until the surrounding transaction ends.
	FindActiveByHashForUpdate(ctx context.Context, hash string, typ model.TokenType, now time.Time) (model.Token, error)
	RevokeByID(ctx context.Context, id string, now time.Time) error
	RevokeByHash(ctx context.Context, hash string, now time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, typ model.TokenType, now time.Time) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]model.Token, error)
}

// Tx is the set of stores bound to one unit of work.
type Tx interface {
	Credentials() CredentialStore
	Tokens() TokenStore
}

// Store gives autocommit access to both stores and runs units of work.
// InTx commits when fn returns nil and rolls back on error or panic.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore is the database/sql implementation of Store.
type SQLStore struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, d database.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

func (s *SQLStore) Credentials() CredentialStore { return NewCredentialRepo(s.db, s.dialect) }
func (s *SQLStore) Tokens() TokenStore           { return NewTokenRepo(s.db, s.dialect) }

// Ping checks database reachability.
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InTx runs fn inside a database transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(sqlTx{q: tx, d: s.dialect}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type sqlTx struct {
	q Querier
	d database.Dialect
}

func (t sqlTx) Credentials() CredentialStore { return NewCredentialRepo(t.q, t.d) }
func (t sqlTx) Tokens() TokenStore           { return NewTokenRepo(t.q, t.d) }

var (
	_ Store           = (*SQLStore)(nil)
	_ Store           = (*MemoryStore)(nil)
	_ CredentialStore = (*CredentialRepo)(nil)
	_ TokenStore      = (*TokenRepo)(nil)
)
