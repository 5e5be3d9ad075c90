package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/directory-auth/internal/apperror"
    "github.com/iliyamo/directory-auth/internal/utils"
)

// TokenParser verifies a raw access token.  *utils.AccessTokenIssuer
// implements it.
type TokenParser interface {
    Parse(raw string) (*utils.AccessClaims, error)
}

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject, email and role claims into the request
// context.  Handlers read them back with UserID and Role.  Failures are
// returned as 401 AppErrors and rendered by the central error handler.
func JWTAuth(p TokenParser) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if !strings.HasPrefix(auth, "Bearer ") {
                return apperror.New(http.StatusUnauthorized, "Missing or invalid Authorization header.")
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            // Signature, algorithm and expiry are all checked by the parser.
            claims, err := p.Parse(raw)
            if err != nil {
                return apperror.New(http.StatusUnauthorized, "Invalid or expired access token.")
            }

            c.Set(ctxUserID, claims.Subject)
            c.Set(ctxEmail, claims.Email)
            c.Set(ctxRole, claims.Role)
            return next(c)
        }
    }
}
