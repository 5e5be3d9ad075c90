package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http" // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project

    "github.com/iliyamo/directory-auth/internal/queue"
)

// Pinger reports whether the credential store is reachable.
type Pinger interface {
    Ping(ctx context.Context) error
}

// BrokerState reports the broker supervisor's connection state.
type BrokerState interface {
    State() queue.State
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
    DB     Pinger
    Broker BrokerState
}

func NewHealthHandler(db Pinger, broker BrokerState) *HealthHandler {
    return &HealthHandler{DB: db, Broker: broker}
}

// Health is the liveness probe used by load balancers and monitoring
// systems; it only proves the process is serving.
func Health(c echo.Context) error {
    return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Ready answers 200 when the store pings and the broker is connected, 503
// with the state of each dependency otherwise.
func (h *HealthHandler) Ready(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()

    db := "up"
    if h.DB != nil {
        if err := h.DB.Ping(ctx); err != nil {
            db = "down"
        }
    }
    broker := queue.Disconnected
    if h.Broker != nil {
        broker = h.Broker.State()
    }

    status, code := "ready", http.StatusOK
    if db != "up" || broker != queue.Connected {
        status, code = "unavailable", http.StatusServiceUnavailable
    }
    return c.JSON(code, echo.Map{"status": status, "database": db, "broker": broker.String()})
}
