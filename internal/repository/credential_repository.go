package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/directory-auth/internal/database"
	"github.com/iliyamo/directory-auth/internal/model"
)

const credentialColumns = "user_id,email,role,password_hash,created_at,updated_at"

// CredentialRepo persists credentials through any Querier, so the same
// methods work on the pool and inside a transaction.
type CredentialRepo struct {
	q Querier
	d database.Dialect
}

func NewCredentialRepo(q Querier, d database.Dialect) *CredentialRepo {
	return &CredentialRepo{q: q, d: d}
}

// FindByEmail fetches a credential by normalized email.
func (r *CredentialRepo) FindByEmail(ctx context.Context, email string) (model.Credential, error) {
	return r.scanOne(r.q.QueryRowContext(ctx,
		r.d.Rebind("SELECT "+credentialColumns+" FROM credentials WHERE email=? LIMIT 1"),
		model.NormalizeEmail(email)))
}

// FindByUserID fetches a credential by its directory id.
func (r *CredentialRepo) FindByUserID(ctx context.Context, userID string) (model.Credential, error) {
	return r.scanOne(r.q.QueryRowContext(ctx,
		r.d.Rebind("SELECT "+credentialColumns+" FROM credentials WHERE user_id=? LIMIT 1"),
		userID))
}

// FindByUserIDForUpdate is FindByUserID with a row lock.
func (r *CredentialRepo) FindByUserIDForUpdate(ctx context.Context, userID string) (model.Credential, error) {
	return r.scanOne(r.q.QueryRowContext(ctx,
		r.d.Rebind("SELECT "+credentialColumns+" FROM credentials WHERE user_id=? FOR UPDATE"),
		userID))
}

// Insert creates a credential; a conflicting user_id or email yields ErrDuplicate.
func (r *CredentialRepo) Insert(ctx context.Context, c model.Credential) error {
	_, err := r.q.ExecContext(ctx,
		r.d.Rebind("INSERT INTO credentials ("+credentialColumns+") VALUES (?,?,?,?,?,?)"),
		c.UserID, model.NormalizeEmail(c.Email), string(c.Role), nullString(c.PasswordHash), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("insert credential %s: %w", c.UserID, ErrDuplicate)
		}
		return fmt.Errorf("insert credential %s: %w", c.UserID, err)
	}
	return nil
}

// UpdateRole overwrites the role and reports whether a row matched.
func (r *CredentialRepo) UpdateRole(ctx context.Context, userID string, role model.Role, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		r.d.Rebind("UPDATE credentials SET role=?, updated_at=? WHERE user_id=?"),
		string(role), now, userID)
	if err != nil {
		return false, fmt.Errorf("update role %s: %w", userID, err)
	}
	return affected(res)
}

// SetPasswordHash stores a new bcrypt hash.
func (r *CredentialRepo) SetPasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		r.d.Rebind("UPDATE credentials SET password_hash=?, updated_at=? WHERE user_id=?"),
		hash, now, userID)
	if err != nil {
		return fmt.Errorf("set password %s: %w", userID, err)
	}
	return nil
}

// Delete removes the credential; its tokens go with it through the FK cascade.
func (r *CredentialRepo) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := r.q.ExecContext(ctx, r.d.Rebind("DELETE FROM credentials WHERE user_id=?"), userID)
	if err != nil {
		return false, fmt.Errorf("delete credential %s: %w", userID, err)
	}
	return affected(res)
}

func (r *CredentialRepo) scanOne(row *sql.Row) (model.Credential, error) {
	var (
		c    model.Credential
		role string
		hash sql.NullString
	)
	err := row.Scan(&c.UserID, &c.Email, &role, &hash, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Credential{}, ErrNotFound
		}
		return model.Credential{}, fmt.Errorf("scan credential: %w", err)
	}
	c.Role = model.Role(role)
	if hash.Valid {
		c.PasswordHash = &hash.String
	}
	return c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
