package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/directory-auth/internal/apperror"
)

const msgInternal = "Internal server error."

// oauthErrorBody is the RFC 6749 error response.
type oauthErrorBody struct {
    Error            apperror.OAuthCode `json:"error"`
    ErrorDescription string             `json:"error_description"`
}

// ErrorHandler renders every error returned by handlers and middleware.
// OAuth errors keep their protocol shape, AppErrors become {"error": msg},
// echo's own errors (404, 405, 413) keep their status, and everything else
// is logged and hidden behind a generic 500.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
    return func(err error, c echo.Context) {
        if c.Response().Committed {
            return
        }

        var (
            oauthErr *apperror.OAuthError
            appErr   *apperror.AppError
            httpErr  *echo.HTTPError
        )
        var werr error
        switch {
        case errors.As(err, &oauthErr):
            noStore(c)
            werr = c.JSON(oauthErr.Status(), oauthErrorBody{Error: oauthErr.Code, ErrorDescription: oauthErr.Description})
        case errors.As(err, &appErr):
            werr = c.JSON(appErr.Status, echo.Map{"error": appErr.Message})
        case errors.As(err, &httpErr) && httpErr.Code < http.StatusInternalServerError:
            werr = c.JSON(httpErr.Code, echo.Map{"error": http.StatusText(httpErr.Code)})
        default:
            log.Error("unhandled error",
                zap.String("method", c.Request().Method),
                zap.String("path", c.Request().URL.Path),
                zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
                zap.Error(err))
            werr = c.JSON(http.StatusInternalServerError, echo.Map{"error": msgInternal})
        }
        if werr != nil {
            log.Warn("write error response failed", zap.Error(werr))
        }
    }
}

// noStore marks a response as containing credentials.
func noStore(c echo.Context) {
    h := c.Response().Header()
    h.Set(echo.HeaderCacheControl, "no-store")
    h.Set("Pragma", "no-cache")
}
