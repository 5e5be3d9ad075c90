package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies the embedded migrations for the dialect.  The caller keeps
// ownership of db; it is not closed.
func Migrate(db *sql.DB, d Dialect, log *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations/"+d.Name)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	defer src.Close()

	var driver migratedb.Driver
	switch d.Name {
	case MySQL.Name:
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case Postgres.Name:
		driver, err = migratepg.WithInstance(db, &migratepg.Config{})
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", d.Name)
	}
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, d.Name, driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("checking migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state (version %d), manual intervention required", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("database schema is up to date", zap.Uint("version", version))
			return nil
		}
		return fmt.Errorf("applying migrations: %w", err)
	}
	newVersion, _, _ := m.Version()
	log.Info("database schema migrated", zap.Uint("from", version), zap.Uint("to", newVersion))
	return nil
}
