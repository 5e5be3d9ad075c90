package handler

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/directory-auth/internal/apperror"
    "github.com/iliyamo/directory-auth/internal/service"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

// Authenticator is the part of the auth service reachable over HTTP.
type Authenticator interface {
    Login(ctx context.Context, email, password string) (service.TokenPair, error)
    Refresh(ctx context.Context, raw string) (service.TokenPair, error)
    Revoke(ctx context.Context, raw string) error
    SetPassword(ctx context.Context, inviteRaw, newPassword string) error
    ChangePassword(ctx context.Context, userID, current, next string) error
}

// OAuthHandler serves the token and revocation endpoints.
type OAuthHandler struct {
    Auth Authenticator
}

func NewOAuthHandler(a Authenticator) *OAuthHandler {
    return &OAuthHandler{Auth: a}
}

// ----- DTOs -----

// tokenReq accepts both JSON and form-encoded bodies.
type tokenReq struct {
    GrantType    string `json:"grant_type"    form:"grant_type"`
    Username     string `json:"username"      form:"username"`
    Password     string `json:"password"      form:"password"`
    RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

type passwordGrant struct {
    Username string `json:"username" validate:"required,email"`
    Password string `json:"password" validate:"required"`
}

type refreshGrant struct {
    RefreshToken string `json:"refresh_token" validate:"required"`
}

type revokeReq struct {
    Token         string `json:"token"           form:"token"           validate:"required"`
    TokenTypeHint string `json:"token_type_hint" form:"token_type_hint" validate:"omitempty,oneof=refresh_token access_token"`
}

type tokenResp struct {
    AccessToken  string `json:"access_token"`
    TokenType    string `json:"token_type"`
    ExpiresIn    int64  `json:"expires_in"`
    RefreshToken string `json:"refresh_token"`
}

// Token implements POST /oauth/token for the password and refresh_token
// grants.
func (h *OAuthHandler) Token(c echo.Context) error {
    var req tokenReq
    if err := c.Bind(&req); err != nil {
        return apperror.NewOAuth(apperror.InvalidRequest, "Request body could not be parsed.")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    var (
        pair service.TokenPair
        err  error
    )
    switch req.GrantType {
    case "password":
        g := passwordGrant{Username: req.Username, Password: req.Password}
        if err := c.Validate(&g); err != nil {
            return oauthInvalid(err)
        }
        pair, err = h.Auth.Login(ctx, g.Username, g.Password)
    case "refresh_token":
        g := refreshGrant{RefreshToken: req.RefreshToken}
        if err := c.Validate(&g); err != nil {
            return oauthInvalid(err)
        }
        pair, err = h.Auth.Refresh(ctx, g.RefreshToken)
    case "":
        return apperror.NewOAuth(apperror.InvalidRequest, "grant_type is required.")
    default:
        return apperror.NewOAuth(apperror.UnsupportedGrantType, "Supported grant types: 'password', 'refresh_token'.")
    }
    if err != nil {
        return err
    }

    noStore(c)
    return c.JSON(http.StatusOK, tokenResp{
        AccessToken:  pair.AccessToken,
        TokenType:    pair.TokenType,
        ExpiresIn:    pair.ExpiresIn,
        RefreshToken: pair.RefreshToken, // raw back to client
    })
}

// Revoke implements POST /oauth/revoke.  Per RFC 7009 the answer is 200 for
// any well-formed request, whether or not the token existed.
func (h *OAuthHandler) Revoke(c echo.Context) error {
    var req revokeReq
    if err := c.Bind(&req); err != nil {
        return apperror.NewOAuth(apperror.InvalidRequest, "Request body could not be parsed.")
    }
    if err := c.Validate(&req); err != nil {
        return oauthInvalid(err)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
    defer cancel()

    if err := h.Auth.Revoke(ctx, req.Token); err != nil {
        return err
    }
    return c.JSON(http.StatusOK, echo.Map{})
}

// oauthInvalid turns a validation failure into invalid_request.
func oauthInvalid(err error) error {
    var ve *ValidationError
    if errors.As(err, &ve) {
        return apperror.NewOAuth(apperror.InvalidRequest, ve.Message)
    }
    return err
}
