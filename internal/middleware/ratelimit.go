package middleware

import (
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "github.com/iliyamo/directory-auth/internal/config"
)

var limiterScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        local until_next = interval_ms - (now_ms - last_refill)
        if until_next < 0 then until_next = 0 end
        retry_after_ms = until_next
    end

    redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// decision is the outcome of taking one token from a bucket.
type decision struct {
    allowed   bool
    remaining int64
    retry     time.Duration
}

// bucket takes one token for key.  A non-nil error means the limiter could
// not decide and the request is let through.
type bucket interface {
    take(c echo.Context, key string, now time.Time) (decision, error)
}

// NewTokenBucket limits requests per key (see buildRateKey).  Buckets live in
// Redis when rdb is set so every replica shares them; otherwise each process
// keeps its own.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    var b bucket
    if rdb != nil {
        b = redisBucket{cfg: cfg, rdb: rdb}
    } else {
        b = newLocalBucket(cfg)
    }

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            d, err := b.take(c, key, time.Now())
            if err != nil {
                log.Warn("ratelimit: limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
                return next(c)
            }

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))

            if !d.allowed {
                secs := int(math.Ceil(d.retry.Seconds()))
                if secs < 0 { secs = 0 }
                c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
                if cfg.Debug {
                    log.Info("ratelimit: block", zap.String("key", key), zap.Duration("retry", d.retry))
                }
                return c.JSON(http.StatusTooManyRequests, map[string]any{
                    "error":       "too_many_requests",
                    "message":     "rate limit exceeded",
                    "retry_after": secs,
                })
            }

            if cfg.Debug {
                c.Response().Header().Set("X-RateLimit-Key", key)
            }
            return next(c)
        }
    }
}

type redisBucket struct {
    cfg config.RateLimitConfig
    rdb *redis.Client
}

func (r redisBucket) take(c echo.Context, key string, now time.Time) (decision, error) {
    args := []interface{}{
        now.UnixMilli(),
        r.cfg.Capacity,
        r.cfg.RefillTokens,
        r.cfg.RefillInterval.Milliseconds(),
        int64(r.cfg.TTL / time.Second),
    }
    vals, err := limiterScript.Run(c.Request().Context(), r.rdb, []string{key}, args...).Result()
    if err != nil {
        return decision{}, err
    }
    arr, ok := vals.([]interface{})
    if !ok || len(arr) != 3 {
        return decision{}, fmt.Errorf("unexpected script result %#v", vals)
    }
    allowed := false
    if i, ok := arr[0].(int64); ok { allowed = (i == 1) } else { allowed = fmt.Sprint(arr[0]) == "1" }
    return decision{
        allowed:   allowed,
        remaining: asInt64(arr[1]),
        retry:     time.Duration(asInt64(arr[2])) * time.Millisecond,
    }, nil
}

// localBucket is the in-process fallback: one rate.Limiter per key with the
// same capacity and refill rate as the Redis script.
type localBucket struct {
    every time.Duration
    burst int
    ttl   time.Duration

    mu      sync.Mutex
    clients map[string]*localClient
}

type localClient struct {
    lim      *rate.Limiter
    lastSeen time.Time
}

func newLocalBucket(cfg config.RateLimitConfig) *localBucket {
    return &localBucket{
        every:   cfg.RefillInterval / time.Duration(cfg.RefillTokens),
        burst:   cfg.Capacity,
        ttl:     cfg.TTL,
        clients: map[string]*localClient{},
    }
}

func (l *localBucket) take(_ echo.Context, key string, now time.Time) (decision, error) {
    l.mu.Lock()
    defer l.mu.Unlock()

    cl, ok := l.clients[key]
    if !ok {
        cl = &localClient{lim: rate.NewLimiter(rate.Every(l.every), l.burst)}
        l.clients[key] = cl
        l.gcLocked(now)
    }
    cl.lastSeen = now

    r := cl.lim.ReserveN(now, 1)
    if delay := r.DelayFrom(now); delay > 0 {
        r.CancelAt(now)
        return decision{allowed: false, remaining: 0, retry: delay}, nil
    }
    remaining := int64(cl.lim.TokensAt(now))
    if remaining < 0 { remaining = 0 }
    return decision{allowed: true, remaining: remaining}, nil
}

func (l *localBucket) gcLocked(now time.Time) {
    if len(l.clients) < 1000 {
        return
    }
    cutoff := now.Add(-l.ttl)
    for k, cl := range l.clients {
        if cl.lastSeen.Before(cutoff) {
            delete(l.clients, k)
        }
    }
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64: return t
    case int32: return int64(t)
    case int: return int64(t)
    case float64: return int64(t)
    case float32: return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil { return n }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    strategy := strings.ToLower(cfg.KeyStrategy)
    ip := c.RealIP()
    if ip == "" { ip = "unknown" }
    uid := UserID(c)
    if uid == "" { uid = "anon" }
    route := c.Request().Method + " " + c.Path()

    switch strategy {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
