package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/iliyamo/directory-auth/internal/config"
)

// Open connects to the configured relational database, applies the pool
// limits and verifies the connection.
func Open(ctx context.Context, cfg config.DBConfig) (*sql.DB, Dialect, error) {
	var (
		driverName string
		dsn        string
		dialect    Dialect
	)
	switch cfg.Driver {
	case config.DriverMySQL:
		driverName, dsn, dialect = "mysql", mysqlDSN(cfg), MySQL
	case config.DriverPostgres:
		driverName, dsn, dialect = "pgx", PostgresDSN(cfg), Postgres
	default:
		return nil, Dialect{}, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, Dialect{}, err
	}

	// Pool settings
	db.SetMaxOpenConns(cfg.PoolMax)
	db.SetMaxIdleConns(cfg.PoolMin)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, Dialect{}, err
	}
	return db, dialect, nil
}

// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
func mysqlDSN(cfg config.DBConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Pass
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	if cfg.SSL {
		mc.TLSConfig = "true"
	}
	return mc.FormatDSN()
}

// PostgresDSN builds a postgres:// URL with the sslmode derived from DB_SSL.
func PostgresDSN(cfg config.DBConfig) string {
	sslmode := "disable"
	if cfg.SSL {
		sslmode = "require"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Pass),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}
