package middleware

import (
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
)

var (
    httpReqTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests"},
        []string{"path", "method", "status"},
    )
    httpLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Name:    "http_request_duration_seconds",
            Help:    "Latency of HTTP requests",
            Buckets: prometheus.DefBuckets,
        }, []string{"path", "method"},
    )
)

func init() { prometheus.MustRegister(httpReqTotal, httpLatency) }

// Metrics records request counts and latency per route template.  It must
// run inside the access logger so the status is final.
func Metrics() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            path := c.Path()
            if path == "" {
                path = "unmatched"
            }
            method := c.Request().Method
            httpReqTotal.WithLabelValues(path, method, strconv.Itoa(c.Response().Status)).Inc()
            httpLatency.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
            return nil
        }
    }
}
