// Package apperror holds the typed failures that cross the service boundary.
// OAuthError is used by the grant and revocation flows and is rendered in the
// RFC 6749 shape; AppError carries a plain status and message for the invite
// and password flows. Anything else reaching a handler is an internal error.
package apperror

import (
	"fmt"
	"net/http"
)

// OAuthCode is an RFC 6749 error code.
type OAuthCode string

const (
	InvalidRequest       OAuthCode = "invalid_request"
	InvalidClient        OAuthCode = "invalid_client"
	InvalidGrant         OAuthCode = "invalid_grant"
	UnauthorizedClient   OAuthCode = "unauthorized_client"
	UnsupportedGrantType OAuthCode = "unsupported_grant_type"
	InvalidScope         OAuthCode = "invalid_scope"
)

// OAuthError is a protocol-level failure of the token or revoke endpoint.
type OAuthError struct {
	Code        OAuthCode
	Description string
}

// NewOAuth builds an OAuthError.
func NewOAuth(code OAuthCode, description string) *OAuthError {
	return &OAuthError{Code: code, Description: description}
}

func (e *OAuthError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Status maps the code to its HTTP status.
func (e *OAuthError) Status() int {
	switch e.Code {
	case InvalidClient, InvalidGrant:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// AppError is a user-facing failure with an explicit HTTP status.
type AppError struct {
	Status  int
	Message string
}

// New builds an AppError.
func New(status int, message string) *AppError {
	return &AppError{Status: status, Message: message}
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}
