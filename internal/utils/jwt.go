package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidAccessToken is returned by Parse for any token that fails
// signature, algorithm, expiry or claim checks.
var ErrInvalidAccessToken = errors.New("invalid access token")

// AccessClaims is the payload of every access token: subject, email and role.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AccessToken is a signed JWT together with its lifetime.
type AccessToken struct {
	Token     string
	ExpiresIn int64 // seconds
	ExpiresAt time.Time
}

// AccessTokenIssuer signs and verifies HS256 access tokens.
type AccessTokenIssuer struct {
	Secret []byte
	TTL    time.Duration
	Leeway time.Duration
	Now    func() time.Time
}

// NewAccessTokenIssuer builds an issuer for the given secret and lifetime.
func NewAccessTokenIssuer(secret string, ttl time.Duration) *AccessTokenIssuer {
	return &AccessTokenIssuer{Secret: []byte(secret), TTL: ttl, Leeway: 30 * time.Second}
}

func (a *AccessTokenIssuer) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}

// Issue signs an access token for the given identity.
func (a *AccessTokenIssuer) Issue(userID, email, role string) (AccessToken, error) {
	now := a.now()
	exp := now.Add(a.TTL)
	claims := AccessClaims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return AccessToken{Token: signed, ExpiresIn: int64(a.TTL / time.Second), ExpiresAt: exp}, nil
}

// Parse verifies a signed access token and returns its claims.
func (a *AccessTokenIssuer) Parse(raw string) (*AccessClaims, error) {
	t, err := jwt.ParseWithClaims(raw, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected alg %v", t.Header["alg"])
		}
		return a.Secret, nil
	}, jwt.WithLeeway(a.Leeway), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	c, ok := t.Claims.(*AccessClaims)
	if !ok || !t.Valid || c.Subject == "" {
		return nil, ErrInvalidAccessToken
	}
	return c, nil
}
