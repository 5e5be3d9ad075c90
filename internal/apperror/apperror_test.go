package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOAuthErrorStatus(t *testing.T) {
	t.Parallel()

	cases := map[OAuthCode]int{
		InvalidRequest:       http.StatusBadRequest,
		UnauthorizedClient:   http.StatusBadRequest,
		UnsupportedGrantType: http.StatusBadRequest,
		InvalidScope:         http.StatusBadRequest,
		InvalidClient:        http.StatusUnauthorized,
		InvalidGrant:         http.StatusUnauthorized,
	}
	for code, want := range cases {
		assert.Equal(t, want, NewOAuth(code, "x").Status(), code)
	}
}

func TestErrorsSurviveWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("login: %w", NewOAuth(InvalidGrant, "Invalid email or password."))
	var oe *OAuthError
	assert.True(t, errors.As(wrapped, &oe))
	assert.Equal(t, InvalidGrant, oe.Code)

	wrapped = fmt.Errorf("set password: %w", New(http.StatusBadRequest, "This invite has already been used."))
	var ae *AppError
	assert.True(t, errors.As(wrapped, &ae))
	assert.Equal(t, "400: This invite has already been used.", ae.Error())
}
