package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/iliyamo/directory-auth/internal/apperror"
	"github.com/iliyamo/directory-auth/internal/model"
	"github.com/iliyamo/directory-auth/internal/repository"
	"github.com/iliyamo/directory-auth/internal/utils"
)

// ErrInvalidRole is returned for a role outside the directory's role set.
var ErrInvalidRole = errors.New("invalid role")

// UserCreated is the data of a user.created event.
type UserCreated struct {
	UserID string
	Email  string
	Role   model.Role
}

// Invite is a freshly issued invite secret, ready to be handed to the
// notification pipeline.  Token is the raw secret.
type Invite struct {
	UserID    string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// CreateFromEvent creates the credential and its first invite atomically.
// If the user already exists the returned error wraps repository.ErrDuplicate
// and nothing is written.
func (s *AuthService) CreateFromEvent(ctx context.Context, ev UserCreated) (Invite, error) {
	if !ev.Role.Valid() {
		return Invite{}, fmt.Errorf("create credential %s: %w %q", ev.UserID, ErrInvalidRole, ev.Role)
	}
	var inv Invite
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		now := s.now()
		err := tx.Credentials().Insert(ctx, model.Credential{
			UserID:    ev.UserID,
			Email:     model.NormalizeEmail(ev.Email),
			Role:      ev.Role,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		inv, err = s.issueInvite(ctx, tx, ev.UserID, model.NormalizeEmail(ev.Email), now)
		return err
	})
	if err != nil {
		return Invite{}, fmt.Errorf("create credential %s: %w", ev.UserID, err)
	}
	return inv, nil
}

// ResendInviteFromEvent revokes every outstanding invite of the user and
// issues a new one.
func (s *AuthService) ResendInviteFromEvent(ctx context.Context, userID string) (Invite, error) {
	var inv Invite
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		cred, err := tx.Credentials().FindByUserIDForUpdate(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.New(http.StatusNotFound, fmt.Sprintf("No credential found for user %s.", userID))
		}
		if err != nil {
			return err
		}
		now := s.now()
		if _, err := tx.Tokens().RevokeAllForUser(ctx, userID, model.TokenInvite, now); err != nil {
			return err
		}
		inv, err = s.issueInvite(ctx, tx, cred.UserID, cred.Email, now)
		return err
	})
	if err != nil {
		return Invite{}, wrapUnlessTyped("resend invite", err)
	}
	return inv, nil
}

// UpdateRoleFromEvent overwrites the stored role.  A missing user is not an
// error; the directory owns existence.
func (s *AuthService) UpdateRoleFromEvent(ctx context.Context, userID string, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("update role %s: %w %q", userID, ErrInvalidRole, role)
	}
	if _, err := s.store.Credentials().UpdateRole(ctx, userID, role, s.now()); err != nil {
		return err
	}
	return nil
}

// DeleteFromEvent removes the credential and, by cascade, all its tokens.
// Deleting an unknown user is a no-op.
func (s *AuthService) DeleteFromEvent(ctx context.Context, userID string) error {
	if _, err := s.store.Credentials().Delete(ctx, userID); err != nil {
		return err
	}
	return nil
}

func (s *AuthService) issueInvite(ctx context.Context, tx repository.Tx, userID, email string, now time.Time) (Invite, error) {
	secret, err := utils.GenerateSecret()
	if err != nil {
		return Invite{}, fmt.Errorf("generate invite token: %w", err)
	}
	exp := now.Add(s.opts.InviteTTL)
	err = tx.Tokens().Insert(ctx, model.Token{
		UserID:    userID,
		Type:      model.TokenInvite,
		TokenHash: secret.Hash,
		ExpiresAt: exp,
		CreatedAt: now,
	})
	if err != nil {
		return Invite{}, err
	}
	return Invite{UserID: userID, Email: email, Token: secret.Raw, ExpiresAt: exp}, nil
}
