package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

// Migrate applies the embedded migrations for the store's driver.
func (s *SQLStore) Migrate() error {
	src, err := iofs.New(migrationFS, "migrations/"+s.driverName)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	var (
		drv migratedb.Driver
		// closing the migrate instance closes the *sql.DB handed to it,
		// so postgres migrates over its own pool. sqlite shares the store's
		// handle since an in-memory database lives and dies with it.
		own *sql.DB
	)
	switch s.driverName {
	case DriverPostgres:
		own, err = sql.Open(DriverPostgres, s.dsn)
		if err != nil {
			return fmt.Errorf("open migration conn: %w", err)
		}
		drv, err = postgres.WithInstance(own, &postgres.Config{})
	case DriverSqlite:
		drv, err = sqlite3.WithInstance(s.db, &sqlite3.Config{})
	default:
		err = fmt.Errorf("unsupported driver %q", s.driverName)
	}
	if err != nil {
		if own != nil {
			own.Close()
		}
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.driverName, drv)
	if err != nil {
		return fmt.Errorf("new migrate: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	if own != nil {
		srcErr, dbErr := m.Close()
		return errors.Join(srcErr, dbErr)
	}

	return src.Close()
}
