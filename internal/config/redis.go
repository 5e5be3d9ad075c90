package config

// This file defines a Redis client constructor for the application.  Redis is
// used for distributed rate limiting only.  If no address is configured or
// the server cannot be reached at startup, the constructor returns nil and
// callers degrade to an in-process limiter.

import (
    "context"
    "crypto/tls"
    "time"

    "github.com/redis/go-redis/v9"
)

// RedisConfig holds the optional Redis connection settings.
type RedisConfig struct {
    Addr     string `env:"REDIS_ADDR"`
    Password string `env:"REDIS_PASSWORD"`
    DB       int    `env:"REDIS_DB"  envDefault:"0"`
    TLS      bool   `env:"REDIS_TLS" envDefault:"false"`
}

// NewRedisClient instantiates a Redis client from cfg.  The returned client
// is nil when cfg.Addr is empty or a ping does not succeed within two seconds.
func NewRedisClient(ctx context.Context, cfg RedisConfig) *redis.Client {
    if cfg.Addr == "" {
        return nil
    }
    var tlsConf *tls.Config
    if cfg.TLS {
        tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(&redis.Options{
        Addr:      cfg.Addr,
        Password:  cfg.Password,
        DB:        cfg.DB,
        TLSConfig: tlsConf,
    })
    // Ping the server with a short timeout.  Return nil on failure.
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        _ = client.Close()
        return nil
    }
    return client
}
