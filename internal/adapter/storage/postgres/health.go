package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// HealthCheck implements ports.HealthChecker for PostgreSQL. Beyond
// connectivity it requires the schema to be migrated and clean.
type HealthCheck struct {
	pool Pool
}

// NewHealthCheck creates a PostgreSQL health checker.
func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping checks connectivity and the migration state.
func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := h.pool.Ping(ctx); err != nil {
		return err
	}

	var (
		version int64
		dirty   bool
	)
	err := h.pool.QueryRow(ctx, `SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errors.New("schema not migrated")
	case err != nil:
		return fmt.Errorf("reading migration state: %w", err)
	case dirty:
		return fmt.Errorf("schema migration %d is dirty", version)
	}
	return nil
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "postgresql"
}
