package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/directory-auth/internal/handler"
	"github.com/iliyamo/directory-auth/internal/logger"
	"github.com/iliyamo/directory-auth/internal/middleware" // JWT authentication and rate limiting
)

// New builds the echo instance with the shared middleware chain, request
// validator and error renderer.  Routes are registered separately.
func New(log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log)

	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(logger.Middleware(log))
	e.Use(middleware.Metrics())
	e.Use(echomw.BodyLimit("64K"))
	return e
}

// RegisterRoutes registers the probes and the metrics endpoint, none of
// which require authentication.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/health", handler.Health)
	e.GET("/ready", h.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterOAuth registers the RFC 6749 token endpoint and the RFC 7009
// revocation endpoint.  The token endpoint accepts passwords and is
// therefore rate limited.
func RegisterOAuth(e *echo.Echo, o *handler.OAuthHandler, limit echo.MiddlewareFunc) {
	g := e.Group("/oauth")
	g.POST("/token", o.Token, limit)
	g.POST("/revoke", o.Revoke)
}

// RegisterAuth registers invite redemption and password change.  Setting a
// password is public (the invite token is the credential) and rate limited;
// changing it requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwt middleware.TokenParser, limit echo.MiddlewareFunc) {
	g := e.Group("/auth")
	g.POST("/set-password", a.SetPassword, limit)
	g.POST("/change-password", a.ChangePassword, middleware.JWTAuth(jwt))
}
