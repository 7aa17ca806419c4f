package postgres

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/MrSnakeDoc/hop/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded schema migrations.
type Migrator struct {
	migrate *migrate.Migrate
	logger  logger.Logger
}

// NewMigrator opens a migrator on databaseURL (postgres:// form).
func NewMigrator(databaseURL string, log logger.Logger) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{migrate: m, logger: log}, nil
}

// Up applies every pending migration. A dirty schema is forced back to its
// recorded version first.
func (m *Migrator) Up() error {
	version, dirty, err := m.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if dirty {
		m.logger.Warn("schema is dirty, forcing recorded version", logger.Int("version", int(version)))
		if err := m.migrate.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force schema version: %w", err)
		}
	}

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("schema up to date", logger.Int("version", int(version)))
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	newVersion, _, _ := m.migrate.Version()
	m.logger.Info("schema migrated", logger.Int("version", int(newVersion)))
	return nil
}

// Version returns the current schema version.
func (m *Migrator) Version() (uint, bool, error) {
	return m.migrate.Version()
}

// Close releases the migrator's source and database handles.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("failed to close migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("failed to close migration database: %w", dbErr)
	}
	return nil
}
