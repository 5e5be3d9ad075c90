// Package service implements the credential and token lifecycle: password
// and refresh grants, revocation, invite redemption, password change, and the
// mutations driven by user-directory events.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iliyamo/directory-auth/internal/apperror"
	"github.com/iliyamo/directory-auth/internal/model"
	"github.com/iliyamo/directory-auth/internal/repository"
	"github.com/iliyamo/directory-auth/internal/utils"
)

const (
	msgInvalidLogin   = "Invalid email or password."
	msgInvalidRefresh = "Refresh token is invalid, expired, or revoked."
	msgInvalidInvite  = "Invite token is invalid or has expired."
	msgInviteUsed     = "This invite has already been used."
	msgNoAccount      = "Account not found."
	msgWrongPassword  = "Current password is incorrect."
)

// Options carries lifetimes and hashing cost.
type Options struct {
	RefreshTTL time.Duration
	InviteTTL  time.Duration
	BcryptCost int
	Now        func() time.Time
}

// TokenPair is the result of a successful grant.
type TokenPair struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	RefreshToken string
}

// AuthService owns every state transition of credentials and tokens.
type AuthService struct {
	store  repository.Store
	access *utils.AccessTokenIssuer
	opts   Options
}

// NewAuthService wires the service to its store and access-token issuer.
func NewAuthService(store repository.Store, access *utils.AccessTokenIssuer, opts Options) *AuthService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AuthService{store: store, access: access, opts: opts}
}

func (s *AuthService) now() time.Time { return s.opts.Now().UTC() }

// Login exchanges an email and password for a new token pair.  Unknown
// accounts, accounts without a password and wrong passwords are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	cred, err := s.store.Credentials().FindByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.BurnPasswordCheck(password)
		return TokenPair{}, apperror.NewOAuth(apperror.InvalidGrant, msgInvalidLogin)
	case err != nil:
		return TokenPair{}, fmt.Errorf("login: %w", err)
	}
	if !cred.HasPassword() {
		utils.BurnPasswordCheck(password)
		return TokenPair{}, apperror.NewOAuth(apperror.InvalidGrant, msgInvalidLogin)
	}
	if !utils.VerifyPassword(*cred.PasswordHash, password) {
		return TokenPair{}, apperror.NewOAuth(apperror.InvalidGrant, msgInvalidLogin)
	}
	return s.issuePair(ctx, s.store, cred)
}

// Refresh rotates a refresh token.  The presented token is locked, revoked
// and replaced in one transaction, so concurrent uses of the same secret
// yield exactly one success.
func (s *AuthService) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	invalid := apperror.NewOAuth(apperror.InvalidGrant, msgInvalidRefresh)
	if strings.TrimSpace(raw) == "" {
		return TokenPair{}, invalid
	}

	var pair TokenPair
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		now := s.now()
		tok, err := tx.Tokens().FindActiveByHashForUpdate(ctx, utils.HashSecret(raw), model.TokenRefresh, now)
		if errors.Is(err, repository.ErrNotFound) {
			return invalid
		}
		if err != nil {
			return err
		}
		cred, err := tx.Credentials().FindByUserID(ctx, tok.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return invalid
		}
		if err != nil {
			return err
		}
		if err := tx.Tokens().RevokeByID(ctx, tok.ID, now); err != nil {
			return err
		}
		pair, err = s.issuePair(ctx, tx, cred)
		return err
	})
	if err != nil {
		return TokenPair{}, wrapUnlessTyped("refresh", err)
	}
	return pair, nil
}

// Revoke invalidates the token with this secret, whatever its type.  Unknown,
// already revoked and malformed secrets are not errors.
func (s *AuthService) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := s.store.Tokens().RevokeByHash(ctx, utils.HashSecret(raw), s.now()); err != nil {
		return fmt.Errorf("revoke: %w", err)
	}
	return nil
}

// SetPassword redeems an invite: the invite and its credential are locked,
// the password is stored and the invite is revoked, all in one transaction.
func (s *AuthService) SetPassword(ctx context.Context, inviteRaw, newPassword string) error {
	invalid := apperror.New(http.StatusBadRequest, msgInvalidInvite)
	if strings.TrimSpace(inviteRaw) == "" {
		return invalid
	}
	hash, err := utils.HashPassword(newPassword, s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("set password: hash: %w", err)
	}

	err = s.store.InTx(ctx, func(tx repository.Tx) error {
		now := s.now()
		tok, err := tx.Tokens().FindActiveByHashForUpdate(ctx, utils.HashSecret(inviteRaw), model.TokenInvite, now)
		if errors.Is(err, repository.ErrNotFound) {
			return invalid
		}
		if err != nil {
			return err
		}
		cred, err := tx.Credentials().FindByUserIDForUpdate(ctx, tok.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return invalid
		}
		if err != nil {
			return err
		}
		if cred.HasPassword() {
			return apperror.New(http.StatusBadRequest, msgInviteUsed)
		}
		if err := tx.Credentials().SetPasswordHash(ctx, cred.UserID, hash, now); err != nil {
			return err
		}
		return tx.Tokens().RevokeByID(ctx, tok.ID, now)
	})
	return wrapUnlessTyped("set password", err)
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one.  Tokens are left untouched.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		cred, err := tx.Credentials().FindByUserIDForUpdate(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.New(http.StatusNotFound, msgNoAccount)
		}
		if err != nil {
			return err
		}
		if !cred.HasPassword() || !utils.VerifyPassword(*cred.PasswordHash, current) {
			return apperror.New(http.StatusBadRequest, msgWrongPassword)
		}
		hash, err := utils.HashPassword(next, s.opts.BcryptCost)
		if err != nil {
			return err
		}
		return tx.Credentials().SetPasswordHash(ctx, cred.UserID, hash, s.now())
	})
	return wrapUnlessTyped("change password", err)
}

// issuePair stores a new refresh token for cred and signs an access token.
func (s *AuthService) issuePair(ctx context.Context, tx repository.Tx, cred model.Credential) (TokenPair, error) {
	secret, err := utils.GenerateSecret()
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}
	now := s.now()
	err = tx.Tokens().Insert(ctx, model.Token{
		UserID:    cred.UserID,
		Type:      model.TokenRefresh,
		TokenHash: secret.Hash,
		ExpiresAt: now.Add(s.opts.RefreshTTL),
		CreatedAt: now,
	})
	if err != nil {
		return TokenPair{}, err
	}
	access, err := s.access.Issue(cred.UserID, cred.Email, string(cred.Role))
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access.Token,
		TokenType:    "Bearer",
		ExpiresIn:    access.ExpiresIn,
		RefreshToken: secret.Raw,
	}, nil
}

// wrapUnlessTyped adds operation context to infrastructure errors while
// leaving boundary errors recognisable by errors.As.
func wrapUnlessTyped(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *apperror.OAuthError
	var ae *apperror.AppError
	if errors.As(err, &oe) || errors.As(err, &ae) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
