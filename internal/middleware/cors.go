package middleware

import (
    "net/http"

    "github.com/rs/cors"
)

// CORS wraps the whole HTTP handler so preflight requests never reach echo.
// An empty origin list disables CORS entirely.
func CORS(origins []string) func(http.Handler) http.Handler {
    if len(origins) == 0 {
        return func(h http.Handler) http.Handler { return h }
    }

    handler := cors.New(cors.Options{
        AllowedOrigins:   origins,
        AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
        AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
        ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
        MaxAge:           3600,
        AllowCredentials: false,
    })

    return handler.Handler
}
