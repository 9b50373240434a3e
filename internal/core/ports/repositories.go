package ports

import (
	"context"
	"errors"
	"time"

	"order-intake-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// ErrOrderExists is returned by OrderRepository.Create when the
// (tenant, platform, external order id) uniqueness constraint rejects the insert.
var ErrOrderExists = errors.New("order already exists")

// ErrOrderInvalid is returned by OrderRepository.Create when the store
// rejects a field value. Retrying the same order cannot succeed.
var ErrOrderInvalid = errors.New("order rejected by store")

// ConnectionRepository is the Credential Store.
type ConnectionRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Connection, error)
	// GetByWebhookKey resolves the connection a webhook targets.
	GetByWebhookKey(ctx context.Context, platform domain.PlatformType, webhookKey string) (*domain.Connection, error)
	GetByTriple(ctx context.Context, tenantID, locationID uuid.UUID, platform domain.PlatformType) (*domain.Connection, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.Connection, error)
	// Upsert inserts or updates the single row of the connection's triple.
	Upsert(ctx context.Context, conn *domain.Connection) error
	UpdateTokens(ctx context.Context, id uuid.UUID, accessEnc, refreshEnc string, expiresAt *time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ConnectionStatus, lastError *string) error
	RecordSync(ctx context.Context, counters domain.SyncCounters) error
}

// RuleSetRepository is the Rule Store.
type RuleSetRepository interface {
	// Get returns nil, nil when the tenant has no rule set.
	Get(ctx context.Context, tenantID uuid.UUID) (*domain.RuleSet, error)
	Save(ctx context.Context, set *domain.RuleSet) error
}

// RecentOrderQuery selects admitted orders for duplicate evaluation.
// Since and Until are both inclusive.
type RecentOrderQuery struct {
	TenantID uuid.UUID
	Since    time.Time
	Until    time.Time
	// Field/Values pre-filter on an indexed column; empty Field means no filter.
	// A row matches when its value equals any of Values.
	Field  domain.RuleField
	Values []string
	// The candidate's own order is never its own duplicate.
	ExcludePlatform domain.PlatformType
	ExcludeExternal string
	// Limit caps one page; Before continues after the last row of the
	// previous page.
	Limit  int
	Before *OrderCursor
}

// OrderCursor is a keyset position in (created_at DESC, id DESC) order.
type OrderCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// OrderRepository is the canonical order collaborator.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByExternalID(ctx context.Context, tenantID uuid.UUID, platform domain.PlatformType, externalOrderID string) (*domain.Order, error)
	// FindRecent returns orders newest first, ties broken by id descending.
	FindRecent(ctx context.Context, q RecentOrderQuery) ([]domain.Order, error)
}

// AttemptLedger stores webhook attempt records with storage-enforced expiry.
type AttemptLedger interface {
	Begin(ctx context.Context, attempt *domain.Attempt) error
	AppendStep(ctx context.Context, id uuid.UUID, step domain.AttemptStep) error
	Attach(ctx context.Context, id uuid.UUID, patch domain.AttemptPatch) error
	Complete(ctx context.Context, id uuid.UUID, outcome domain.AttemptOutcome) error
	// Get returns nil, nil for unknown or expired attempts.
	Get(ctx context.Context, id uuid.UUID) (*domain.Attempt, error)
	Search(ctx context.Context, filter domain.AttemptFilter) ([]domain.Attempt, error)
}

// AuditRepository persists audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}
