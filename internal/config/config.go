package config // package config loads application configuration from environment variables

import (
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/caarlos0/env/v11" // struct-tag driven environment parsing
    "github.com/joho/godotenv"    // optional .env file for local development
)

// Supported values of DB_DRIVER.
const (
    DriverMySQL    = "mysql"
    DriverPostgres = "postgres"
    DriverMemory   = "memory"
)

// MinJWTSecretLen is the shortest accepted HS256 signing secret.
const MinJWTSecretLen = 32

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; nested structs group related settings.
type Config struct {
    Env  string `env:"APP_ENV"  envDefault:"development"` // application environment (development/test/production)
    Port string `env:"APP_PORT" envDefault:"3000"`        // HTTP port to listen on

    DB DBConfig

    JWTSecret       string `env:"JWT_SECRET"`                                  // secret used to sign access tokens
    AccessTTLSec    int    `env:"JWT_ACCESS_EXPIRES_IN"   envDefault:"900"`    // access token lifetime in seconds
    RefreshTTLSec   int    `env:"JWT_REFRESH_EXPIRES_IN"  envDefault:"604800"` // refresh token lifetime in seconds
    InviteTTLSec    int    `env:"INVITE_TOKEN_EXPIRES_IN" envDefault:"86400"`  // invite token lifetime in seconds
    BcryptCost      int    `env:"BCRYPT_COST"             envDefault:"12"`     // bcrypt cost for password hashing

    AMQP AMQPConfig
    Log  LogConfig

    CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","` // allowed browser origins; empty disables CORS

    Redis     RedisConfig
    RateLimit RateLimitConfig
}

// DBConfig describes the relational store.
type DBConfig struct {
    Driver      string `env:"DB_DRIVER"       envDefault:"mysql"`
    Host        string `env:"DB_HOST"`
    Port        string `env:"DB_PORT"`
    Name        string `env:"DB_NAME"`
    User        string `env:"DB_USER"`
    Pass        string `env:"DB_PASS"`
    PoolMin     int    `env:"DB_POOL_MIN"     envDefault:"2"`
    PoolMax     int    `env:"DB_POOL_MAX"     envDefault:"10"`
    SSL         bool   `env:"DB_SSL"          envDefault:"false"`
    AutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

// AMQPConfig describes the broker connection.
type AMQPConfig struct {
    URL             string        `env:"RABBITMQ_URL"`
    Prefetch        int           `env:"RABBITMQ_PREFETCH"         envDefault:"10"`
    RetryBase       time.Duration `env:"RABBITMQ_RETRY_BASE"       envDefault:"1s"`
    RetryMax        time.Duration `env:"RABBITMQ_RETRY_MAX"        envDefault:"30s"`
    PublishConfirms bool          `env:"RABBITMQ_PUBLISH_CONFIRMS" envDefault:"true"`
}

// LogConfig drives the zap logger.
type LogConfig struct {
    Level string `env:"LOG_LEVEL" envDefault:"info"`
    JSON  bool   `env:"LOG_JSON"  envDefault:"false"`
    File  string `env:"LOG_FILE"`
}

// AccessTTL returns the access token lifetime.
func (c Config) AccessTTL() time.Duration { return time.Duration(c.AccessTTLSec) * time.Second }

// RefreshTTL returns the refresh token lifetime.
func (c Config) RefreshTTL() time.Duration { return time.Duration(c.RefreshTTLSec) * time.Second }

// InviteTTL returns the invite token lifetime.
func (c Config) InviteTTL() time.Duration { return time.Duration(c.InviteTTLSec) * time.Second }

// Load reads an optional .env file, then the process environment, and
// validates the result.
func Load() (Config, error) {
    _ = godotenv.Load() // a missing .env is normal outside local development

    var cfg Config
    if err := env.Parse(&cfg); err != nil {
        return Config{}, fmt.Errorf("parse env: %w", err)
    }
    cfg.CORSOrigins = trimCSV(cfg.CORSOrigins)
    cfg.RateLimit = cfg.RateLimit.normalize()
    if err := cfg.Validate(); err != nil {
        return Config{}, err
    }
    return cfg, nil
}

// Validate checks cross-field constraints and fills driver dependent
// defaults.  All problems are reported together.
func (c *Config) Validate() error {
    var errs []error

    if len(c.JWTSecret) < MinJWTSecretLen {
        errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLen))
    }
    for name, v := range map[string]int{
        "JWT_ACCESS_EXPIRES_IN":   c.AccessTTLSec,
        "JWT_REFRESH_EXPIRES_IN":  c.RefreshTTLSec,
        "INVITE_TOKEN_EXPIRES_IN": c.InviteTTLSec,
    } {
        if v <= 0 {
            errs = append(errs, fmt.Errorf("%s must be positive", name))
        }
    }

    switch c.DB.Driver {
    case DriverMySQL:
        if c.DB.Port == "" {
            c.DB.Port = "3306"
        }
    case DriverPostgres:
        if c.DB.Port == "" {
            c.DB.Port = "5432"
        }
    case DriverMemory:
    default:
        errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of mysql, postgres, memory", c.DB.Driver))
    }
    if c.DB.Driver == DriverMySQL || c.DB.Driver == DriverPostgres {
        for name, v := range map[string]string{"DB_HOST": c.DB.Host, "DB_NAME": c.DB.Name, "DB_USER": c.DB.User} {
            if v == "" {
                errs = append(errs, fmt.Errorf("missing required env var: %s", name))
            }
        }
    }
    if c.DB.PoolMin < 0 || c.DB.PoolMax < 1 || c.DB.PoolMin > c.DB.PoolMax {
        errs = append(errs, fmt.Errorf("DB_POOL_MIN (%d) and DB_POOL_MAX (%d) must satisfy 0 <= min <= max, max >= 1", c.DB.PoolMin, c.DB.PoolMax))
    }

    if c.AMQP.URL == "" {
        errs = append(errs, errors.New("missing required env var: RABBITMQ_URL"))
    }
    if c.AMQP.Prefetch < 1 {
        errs = append(errs, errors.New("RABBITMQ_PREFETCH must be at least 1"))
    }
    if c.AMQP.RetryBase <= 0 || c.AMQP.RetryMax < c.AMQP.RetryBase {
        errs = append(errs, errors.New("RABBITMQ_RETRY_BASE must be positive and not exceed RABBITMQ_RETRY_MAX"))
    }

    return errors.Join(errs...)
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c Config) IsProduction() bool { return strings.EqualFold(c.Env, "production") }

func trimCSV(in []string) []string {
    out := in[:0]
    for _, s := range in {
        if s = strings.TrimSpace(s); s != "" {
            out = append(out, s)
        }
    }
    if len(out) == 0 {
        return nil
    }
    return out
}
