package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/directory-auth/internal/database"
	"github.com/iliyamo/directory-auth/internal/model"
)

const tokenColumns = "id,user_id,type,token_hash,expires_at,revoked_at,created_at"

// activeByHash selects a usable token by digest and type.
const activeByHash = "SELECT " + tokenColumns + " FROM tokens WHERE token_hash=? AND type=? AND revoked_at IS NULL AND expires_at > ?"

// TokenRepo persists refresh and invite token hashes (single 'token_hash' column).
type TokenRepo struct {
	q Querier
	d database.Dialect
}

func NewTokenRepo(q Querier, d database.Dialect) *TokenRepo { return &TokenRepo{q: q, d: d} }

// Insert stores a token row.  An empty ID is filled with a new UUID.
func (r *TokenRepo) Insert(ctx context.Context, t model.Token) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.q.ExecContext(ctx,
		r.d.Rebind("INSERT INTO tokens (id,user_id,type,token_hash,expires_at,created_at) VALUES (?,?,?,?,?,?)"),
		t.ID, t.UserID, string(t.Type), t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("insert %s token: %w", t.Type, ErrDuplicate)
		}
		return fmt.Errorf("insert %s token: %w", t.Type, err)
	}
	return nil
}

// FindActiveByHash returns the active token with this digest, or ErrNotFound.
func (r *TokenRepo) FindActiveByHash(ctx context.Context, hash string, typ model.TokenType, now time.Time) (model.Token, error) {
	return scanToken(r.q.QueryRowContext(ctx, r.d.Rebind(activeByHash+" LIMIT 1"), hash, string(typ), now))
}

// FindActiveByHashForUpdate is FindActiveByHash with a row lock; concurrent
// callers block until the holder commits and then re-evaluate the predicate.
func (r *TokenRepo) FindActiveByHashForUpdate(ctx context.Context, hash string, typ model.TokenType, now time.Time) (model.Token, error) {
	return scanToken(r.q.QueryRowContext(ctx, r.d.Rebind(activeByHash+" FOR UPDATE"), hash, string(typ), now))
}

// RevokeByID marks one token as revoked.
func (r *TokenRepo) RevokeByID(ctx context.Context, id string, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		r.d.Rebind("UPDATE tokens SET revoked_at=? WHERE id=? AND revoked_at IS NULL"),
		now, id)
	if err != nil {
		return fmt.Errorf("revoke token %s: %w", id, err)
	}
	return nil
}

// RevokeByHash marks the active token with this digest revoked, whatever its
// type, and reports whether one was found.
func (r *TokenRepo) RevokeByHash(ctx context.Context, hash string, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		r.d.Rebind("UPDATE tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL AND expires_at > ?"),
		now, hash, now)
	if err != nil {
		return false, fmt.Errorf("revoke token by hash: %w", err)
	}
	return affected(res)
}

// RevokeAllForUser revokes all of a user's active tokens of one type.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string, typ model.TokenType, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		r.d.Rebind("UPDATE tokens SET revoked_at=? WHERE user_id=? AND type=? AND revoked_at IS NULL"),
		now, userID, string(typ))
	if err != nil {
		return 0, fmt.Errorf("revoke %s tokens of %s: %w", typ, userID, err)
	}
	return res.RowsAffected()
}

// ListByUser returns every token row of a user, oldest first.
func (r *TokenRepo) ListByUser(ctx context.Context, userID string) ([]model.Token, error) {
	rows, err := r.q.QueryContext(ctx,
		r.d.Rebind("SELECT "+tokenColumns+" FROM tokens WHERE user_id=? ORDER BY created_at, id"),
		userID)
	if err != nil {
		return nil, fmt.Errorf("list tokens of %s: %w", userID, err)
	}
	defer rows.Close()

	var out []model.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanToken(row rowScanner) (model.Token, error) {
	var (
		t       model.Token
		typ     string
		revoked sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &typ, &t.TokenHash, &t.ExpiresAt, &revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Token{}, ErrNotFound
		}
		return model.Token{}, fmt.Errorf("scan token: %w", err)
	}
	t.Type = model.TokenType(typ)
	if revoked.Valid {
		rt := revoked.Time
		t.RevokedAt = &rt
	}
	return t, nil
}
