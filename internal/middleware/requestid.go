package middleware

import (
    "github.com/google/uuid"
    "github.com/labstack/echo/v4"
)

// RequestID echoes the caller's X-Request-ID or assigns a new one, so the
// access log and the client can refer to the same request.
func RequestID() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            rid := c.Request().Header.Get(echo.HeaderXRequestID)
            if rid == "" {
                rid = uuid.NewString()
            }
            c.Response().Header().Set(echo.HeaderXRequestID, rid)
            c.Set(echo.HeaderXRequestID, rid)
            return next(c)
        }
    }
}
