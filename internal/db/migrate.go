package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/taskboard/apiserver/config"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Direction selects which way Migrate moves the schema.
type Direction int

const (
	Up Direction = iota
	Down
)

// Migrate applies the embedded migrations for the configured driver.
// Down rolls back a single step. An already up-to-date schema is not an error.
func Migrate(cfg config.Config, direction Direction) error {
	migrator, err := newMigrator(cfg)
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	switch direction {
	case Up:
		err = migrator.Up()
	case Down:
		err = migrator.Steps(-1)
	default:
		return fmt.Errorf("unknown migration direction %d", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate failed: %w", err)
	}
	return nil
}

func newMigrator(cfg config.Config) (*migrate.Migrate, error) {
	dir, databaseURL, err := migrationTarget(cfg)
	if err != nil {
		return nil, err
	}

	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", source, databaseURL)
}

func migrationTarget(cfg config.Config) (string, string, error) {
	switch cfg.Database.Driver {
	case "", config.DriverPostgres:
		return "migrations/postgres", PostgresURL(cfg), nil
	case config.DriverSQLite:
		if cfg.Database.Path == "" {
			return "", "", errors.New("sqlite database path is required")
		}
		return "migrations/sqlite", "sqlite://" + cfg.Database.Path, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
