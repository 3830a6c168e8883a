package repository

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	// Registers the pgx driver with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"auction-settlement/utils"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrateUp applies every pending schema migration
func MigrateUp(dsn string) error {
	return runMigrations(dsn, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown reverts every applied schema migration
func MigrateDown(dsn string) error {
	return runMigrations(dsn, func(m *migrate.Migrate) error { return m.Down() })
}

func runMigrations(dsn string, step func(m *migrate.Migrate) error) error {
	const op = "repository.runMigrations"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("%s: source: %w", op, err)
	}
	driver, err := pgxv5.WithInstance(db, &pgxv5.Config{})
	if err != nil {
		return fmt.Errorf("%s: driver: %w", op, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx_v5", driver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("%s: version: %w", op, err)
	}
	utils.Info("schema migrations applied", map[string]any{
		"version": version,
		"dirty":   dirty,
	})
	return nil
}
