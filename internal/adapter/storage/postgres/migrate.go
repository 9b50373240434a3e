package postgres

import (
	"errors"
	"fmt"

	"order-intake-gateway/migrations"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

// Migrator applies the embedded schema migrations.
type Migrator struct {
	m   *migrate.Migrate
	log zerolog.Logger
}

// NewMigrator opens a migrator for the database at dsn.
func NewMigrator(dsn string, log zerolog.Logger) (*Migrator, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return &Migrator{m: m, log: log}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	m.logVersion("migrations applied")
	return nil
}

// Down rolls back all migrations.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	m.log.Info().Msg("migrations rolled back")
	return nil
}

// Steps applies n migrations; negative n rolls back.
func (m *Migrator) Steps(n int) error {
	if err := m.m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	m.logVersion("migration steps applied")
	return nil
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (m *Migrator) logVersion(msg string) {
	version, dirty, err := m.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		m.log.Warn().Err(err).Msg("reading migration version")
		return
	}
	m.log.Info().Uint("version", version).Bool("dirty", dirty).Msg(msg)
}
