package middleware

// identity.go defines the context keys written by JWTAuth and the accessors
// handlers and other middleware use to read them back.

import "github.com/labstack/echo/v4"

const (
    ctxUserID = "user_id"
    ctxEmail  = "email"
    ctxRole   = "role"
)

// UserID returns the authenticated subject, or "" on public routes.
func UserID(c echo.Context) string { return ctxString(c, ctxUserID) }

// Role returns the role claim of the authenticated caller.
func Role(c echo.Context) string { return ctxString(c, ctxRole) }

func ctxString(c echo.Context, key string) string {
    if v, ok := c.Get(key).(string); ok {
        return v
    }
    return ""
}
