package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-intake-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const connectionColumns = `id, tenant_id, location_id, platform, method, status, webhook_key, store_identifier,
	access_token_enc, refresh_token_enc, token_expires_at, last_sync_at, orders_synced,
	consecutive_errors, last_error, created_at, updated_at`

// ConnectionRepo implements ports.ConnectionRepository.
type ConnectionRepo struct {
	pool Pool
}

// NewConnectionRepo creates a new ConnectionRepo.
func NewConnectionRepo(pool Pool) *ConnectionRepo {
	return &ConnectionRepo{pool: pool}
}

// GetByID fetches a connection by its UUID.
func (r *ConnectionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM integration_connections WHERE id = $1`
	return scanConnection(r.pool.QueryRow(ctx, query, id), "get connection by id")
}

// GetByWebhookKey resolves the connection a webhook URL targets.
func (r *ConnectionRepo) GetByWebhookKey(ctx context.Context, platform domain.PlatformType, webhookKey string) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM integration_connections WHERE platform = $1 AND webhook_key = $2`
	return scanConnection(r.pool.QueryRow(ctx, query, platform, webhookKey), "get connection by webhook key")
}

// GetByTriple fetches the single connection of (tenant, location, platform).
func (r *ConnectionRepo) GetByTriple(ctx context.Context, tenantID, locationID uuid.UUID, platform domain.PlatformType) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM integration_connections
		WHERE tenant_id = $1 AND location_id = $2 AND platform = $3`
	return scanConnection(r.pool.QueryRow(ctx, query, tenantID, locationID, platform), "get connection by triple")
}

// ListByTenant returns every connection of a tenant.
func (r *ConnectionRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM integration_connections
		WHERE tenant_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows, "scan connection")
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return out, nil
}

// Upsert writes the row of the connection's triple. An existing row keeps
// its id, webhook key and creation time; conn is updated with them.
func (r *ConnectionRepo) Upsert(ctx context.Context, conn *domain.Connection) error {
	query := `INSERT INTO integration_connections (id, tenant_id, location_id, platform, method, status, webhook_key,
			store_identifier, access_token_enc, refresh_token_enc, token_expires_at, consecutive_errors, last_error,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tenant_id, location_id, platform) DO UPDATE SET
			method = EXCLUDED.method,
			status = EXCLUDED.status,
			store_identifier = EXCLUDED.store_identifier,
			access_token_enc = EXCLUDED.access_token_enc,
			refresh_token_enc = EXCLUDED.refresh_token_enc,
			token_expires_at = EXCLUDED.token_expires_at,
			consecutive_errors = EXCLUDED.consecutive_errors,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
		RETURNING id, webhook_key, created_at`

	err := r.pool.QueryRow(ctx, query,
		conn.ID, conn.TenantID, conn.LocationID, conn.Platform, conn.Method, conn.Status, conn.WebhookKey,
		conn.StoreIdentifier, conn.AccessTokenEnc, conn.RefreshTokenEnc, conn.TokenExpiresAt,
		conn.ConsecutiveErrs, conn.LastError, conn.CreatedAt, conn.UpdatedAt,
	).Scan(&conn.ID, &conn.WebhookKey, &conn.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	return nil
}

// UpdateTokens replaces the encrypted token pair.
func (r *ConnectionRepo) UpdateTokens(ctx context.Context, id uuid.UUID, accessEnc, refreshEnc string, expiresAt *time.Time) error {
	query := `UPDATE integration_connections
		SET access_token_enc = $1, refresh_token_enc = $2, token_expires_at = $3, updated_at = NOW()
		WHERE id = $4`

	tag, err := r.pool.Exec(ctx, query, accessEnc, refreshEnc, expiresAt, id)
	if err != nil {
		return fmt.Errorf("update connection tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection not found: %s", id)
	}
	return nil
}

// UpdateStatus sets the lifecycle status and last error.
func (r *ConnectionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ConnectionStatus, lastError *string) error {
	query := `UPDATE integration_connections SET status = $1, last_error = $2, updated_at = NOW() WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, status, lastError, id)
	if err != nil {
		return fmt.Errorf("update connection status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("connection not found: %s", id)
	}
	return nil
}

// RecordSync applies the sync counters of one admission or failure atomically.
func (r *ConnectionRepo) RecordSync(ctx context.Context, s domain.SyncCounters) error {
	var err error
	if s.Success {
		_, err = r.pool.Exec(ctx,
			`UPDATE integration_connections
			 SET orders_synced = orders_synced + 1, consecutive_errors = 0, last_sync_at = $1, updated_at = $1
			 WHERE id = $2`,
			s.At, s.ConnectionID)
	} else {
		_, err = r.pool.Exec(ctx,
			`UPDATE integration_connections
			 SET consecutive_errors = consecutive_errors + 1, last_error = $1, updated_at = $2
			 WHERE id = $3`,
			s.Error, s.At, s.ConnectionID)
	}
	if err != nil {
		return fmt.Errorf("record connection sync: %w", err)
	}
	return nil
}

func scanConnection(row pgx.Row, op string) (*domain.Connection, error) {
	c := &domain.Connection{}
	err := row.Scan(
		&c.ID, &c.TenantID, &c.LocationID, &c.Platform, &c.Method, &c.Status, &c.WebhookKey, &c.StoreIdentifier,
		&c.AccessTokenEnc, &c.RefreshTokenEnc, &c.TokenExpiresAt, &c.LastSyncAt, &c.OrdersSynced,
		&c.ConsecutiveErrs, &c.LastError, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}
