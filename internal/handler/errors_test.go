package handler

import (
    "errors"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "go.uber.org/zap/zaptest/observer"

    "github.com/iliyamo/directory-auth/internal/apperror"
)

func TestErrorHandler(t *testing.T) {
    cases := []struct {
        name    string
        err     error
        status  int
        body    string
        noStore bool
        logged  bool
    }{
        {"oauth", apperror.NewOAuth(apperror.InvalidGrant, "Invalid email or password."), http.StatusUnauthorized,
            `{"error":"invalid_grant","error_description":"Invalid email or password."}`, true, false},
        {"wrapped oauth", fmt.Errorf("login: %w", apperror.NewOAuth(apperror.InvalidRequest, "x")), http.StatusBadRequest,
            `{"error":"invalid_request","error_description":"x"}`, true, false},
        {"app", apperror.New(http.StatusNotFound, "Account not found."), http.StatusNotFound,
            `{"error":"Account not found."}`, false, false},
        {"echo", echo.ErrMethodNotAllowed, http.StatusMethodNotAllowed, `{"error":"Method Not Allowed"}`, false, false},
        {"internal", errors.New("dial tcp: connection refused"), http.StatusInternalServerError,
            `{"error":"Internal server error."}`, false, true},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            core, logs := observer.New(zapcore.DebugLevel)
            e := echo.New()
            rec := httptest.NewRecorder()
            c := e.NewContext(httptest.NewRequest(http.MethodPost, "/oauth/token", nil), rec)

            ErrorHandler(zap.New(core))(tc.err, c)

            require.Equal(t, tc.status, rec.Code)
            assert.JSONEq(t, tc.body, rec.Body.String())
            if tc.noStore {
                assert.Equal(t, "no-store", rec.Header().Get(echo.HeaderCacheControl))
                assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
            } else {
                assert.Empty(t, rec.Header().Get("Pragma"))
            }
            if tc.logged {
                require.Equal(t, 1, logs.FilterMessage("unhandled error").Len())
                assert.NotContains(t, rec.Body.String(), "connection refused")
            } else {
                assert.Zero(t, logs.Len())
            }
        })
    }
}

func TestErrorHandlerSkipsCommittedResponses(t *testing.T) {
    e := echo.New()
    rec := httptest.NewRecorder()
    c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
    require.NoError(t, c.String(http.StatusOK, "done"))

    ErrorHandler(zap.NewNop())(errors.New("late"), c)
    assert.Equal(t, "done", rec.Body.String())
}
