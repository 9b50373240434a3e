package integration

import (
	"context"
	"sort"
	"sync"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"

	"github.com/google/uuid"
)

// --- In-Memory Connection Repo ---

type inMemoryConnectionRepo struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*domain.Connection
}

func newInMemoryConnectionRepo() *inMemoryConnectionRepo {
	return &inMemoryConnectionRepo{conns: make(map[uuid.UUID]*domain.Connection)}
}

func (r *inMemoryConnectionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryConnectionRepo) GetByWebhookKey(_ context.Context, p domain.PlatformType, key string) (*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.Platform == p && c.WebhookKey == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryConnectionRepo) GetByTriple(_ context.Context, tenantID, locationID uuid.UUID, p domain.PlatformType) (*domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.TenantID == tenantID && c.LocationID == locationID && c.Platform == p {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryConnectionRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Connection{}
	for _, c := range r.conns {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *inMemoryConnectionRepo) Upsert(_ context.Context, conn *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *conn
	r.conns[conn.ID] = &cp
	return nil
}

func (r *inMemoryConnectionRepo) UpdateTokens(_ context.Context, id uuid.UUID, accessEnc, refreshEnc string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.AccessTokenEnc = accessEnc
		c.RefreshTokenEnc = refreshEnc
		c.TokenExpiresAt = expiresAt
	}
	return nil
}

func (r *inMemoryConnectionRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ConnectionStatus, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.Status = status
		c.LastError = lastError
	}
	return nil
}

func (r *inMemoryConnectionRepo) RecordSync(_ context.Context, counters domain.SyncCounters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[counters.ConnectionID]
	if !ok {
		return nil
	}
	if counters.Success {
		at := counters.At
		c.LastSyncAt = &at
		c.OrdersSynced++
		c.ConsecutiveErrs = 0
		c.LastError = nil
		return nil
	}
	msg := counters.Error
	c.ConsecutiveErrs++
	c.LastError = &msg
	return nil
}

// --- In-Memory Rule Set Repo ---

type inMemoryRuleSetRepo struct {
	mu   sync.RWMutex
	sets map[uuid.UUID]domain.RuleSet
}

func newInMemoryRuleSetRepo() *inMemoryRuleSetRepo {
	return &inMemoryRuleSetRepo{sets: make(map[uuid.UUID]domain.RuleSet)}
}

func (r *inMemoryRuleSetRepo) Get(_ context.Context, tenantID uuid.UUID) (*domain.RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sets[tenantID]
	if !ok {
		return nil, nil
	}
	s.Rules = append([]domain.DedupRule(nil), s.Rules...)
	return &s, nil
}

func (r *inMemoryRuleSetRepo) Save(_ context.Context, set *domain.RuleSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *set
	s.Rules = append([]domain.DedupRule(nil), set.Rules...)
	r.sets[set.TenantID] = s
	return nil
}

// --- In-Memory Order Repo ---

// inMemoryOrderRepo enforces the (tenant, platform, external id) unique
// constraint of the orders table. FindRecent ignores the indexed pre-filter;
// the evaluator re-checks every candidate row.
type inMemoryOrderRepo struct {
	mu     sync.Mutex
	orders []domain.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{}
}

func (r *inMemoryOrderRepo) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.orders {
		if x.TenantID == o.TenantID && x.Platform == o.Platform && x.ExternalOrderID == o.ExternalOrderID {
			return ports.ErrOrderExists
		}
	}
	r.orders = append(r.orders, *o)
	return nil
}

func (r *inMemoryOrderRepo) GetByExternalID(_ context.Context, tenantID uuid.UUID, p domain.PlatformType, ext string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.orders {
		if x.TenantID == tenantID && x.Platform == p && x.ExternalOrderID == ext {
			o := x
			return &o, nil
		}
	}
	return nil, nil
}

func (r *inMemoryOrderRepo) FindRecent(_ context.Context, q ports.RecentOrderQuery) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, x := range r.orders {
		if x.TenantID != q.TenantID || x.CreatedAt.Before(q.Since) || x.CreatedAt.After(q.Until) {
			continue
		}
		if x.Platform == q.ExcludePlatform && x.ExternalOrderID == q.ExcludeExternal {
			continue
		}
		if q.Before != nil && !olderThan(&x, q.Before) {
			continue
		}
		out = append(out, x)
	}
	sort.Slice(out, func(i, j int) bool {
		return olderThan(&out[j], &ports.OrderCursor{CreatedAt: out[i].CreatedAt, ID: out[i].ID})
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *inMemoryOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu   sync.Mutex
	logs []domain.AuditLog
}

func (r *inMemoryAuditRepo) Create(_ context.Context, l *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *l)
	return nil
}

func (r *inMemoryAuditRepo) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.logs))
	for _, l := range r.logs {
		out = append(out, l.Action)
	}
	return out
}

// olderThan reports whether o sorts after c in (created_at DESC, id DESC) order.
func olderThan(o *domain.Order, c *ports.OrderCursor) bool {
	if !o.CreatedAt.Equal(c.CreatedAt) {
		return o.CreatedAt.Before(c.CreatedAt)
	}
	return o.ID.String() < c.ID.String()
}
