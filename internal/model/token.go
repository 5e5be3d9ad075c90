package model

import "time"

// TokenType distinguishes the two kinds of single-use secrets kept in the
// `tokens` table.
type TokenType string

const (
    TokenRefresh TokenType = "refresh"
    TokenInvite  TokenType = "invite"
)

// Token models an entry in the `tokens` table.  The raw secret is never
// stored; only its SHA‑256 hex digest.
//
// Fields:
//  ID        – UUID primary key.
//  UserID    – owning credential; rows cascade when it is deleted.
//  Type      – refresh or invite.
//  TokenHash – SHA‑256 hex digest of the secret, unique.
//  ExpiresAt – expiration timestamp.
//  RevokedAt – when the token was revoked (nil while usable).
//  CreatedAt – timestamp of creation.
type Token struct {
    ID        string     // tokens.id
    UserID    string     // tokens.user_id
    Type      TokenType  // tokens.type
    TokenHash string     // tokens.token_hash
    ExpiresAt time.Time  // tokens.expires_at
    RevokedAt *time.Time // tokens.revoked_at (nullable)
    CreatedAt time.Time  // tokens.created_at
}

// IsExpired reports whether the token's lifetime has elapsed at now.
func (t Token) IsExpired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

// IsRevoked reports whether the token has been revoked.
func (t Token) IsRevoked() bool { return t.RevokedAt != nil }

// IsActive reports whether the token can still be used at now.
func (t Token) IsActive(now time.Time) bool { return !t.IsRevoked() && !t.IsExpired(now) }
