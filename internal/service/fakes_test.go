package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// memOrderRepo enforces (tenant, platform, external id) uniqueness the way
// the orders table does.
type memOrderRepo struct {
	mu      sync.Mutex
	orders  []domain.Order
	creates int
	queries []ports.RecentOrderQuery
	failErr error
}

func (r *memOrderRepo) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.failErr != nil {
		return r.failErr
	}
	for _, x := range r.orders {
		if x.TenantID == o.TenantID && x.Platform == o.Platform && x.ExternalOrderID == o.ExternalOrderID {
			return ports.ErrOrderExists
		}
	}
	r.orders = append(r.orders, *o)
	return nil
}

func (r *memOrderRepo) GetByExternalID(_ context.Context, tenantID uuid.UUID, p domain.PlatformType, ext string) (*domain.Order, error) {
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

func (r *memOrderRepo) FindRecent(_ context.Context, q ports.RecentOrderQuery) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
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
		if q.Field != "" && !prefilterHit(q, &x) {
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

func prefilterHit(q ports.RecentOrderQuery, o *domain.Order) bool {
	var have []string
	switch q.Field {
	case domain.FieldCustomerPhone:
		have = []string{domain.NormalizePhone(o.Customer.Phone)}
	case domain.FieldCustomerName:
		have = []string{domain.NormalizeText(o.Customer.Name)}
	case domain.FieldProductID:
		have = o.ProductIDs()
	case domain.FieldProductCode:
		have = o.ProductCodes()
	}
	return intersects(q.Values, have)
}

func (r *memOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type memRuleRepo struct {
	mu   sync.Mutex
	sets map[uuid.UUID]*domain.RuleSet
	err  error
}

func newMemRuleRepo() *memRuleRepo {
	return &memRuleRepo{sets: make(map[uuid.UUID]*domain.RuleSet)}
}

func (r *memRuleRepo) Get(_ context.Context, tenantID uuid.UUID) (*domain.RuleSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	s, ok := r.sets[tenantID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memRuleRepo) Save(_ context.Context, s *domain.RuleSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sets[s.TenantID] = &cp
	return nil
}

type memConnectionRepo struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*domain.Connection
	syncs []domain.SyncCounters
}

func newMemConnectionRepo(conns ...*domain.Connection) *memConnectionRepo {
	r := &memConnectionRepo{conns: make(map[uuid.UUID]*domain.Connection)}
	for _, c := range conns {
		cp := *c
		r.conns[c.ID] = &cp
	}
	return r
}

func (r *memConnectionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *memConnectionRepo) GetByWebhookKey(_ context.Context, p domain.PlatformType, key string) (*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.Platform == p && c.WebhookKey == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memConnectionRepo) GetByTriple(_ context.Context, tenantID, locationID uuid.UUID, p domain.PlatformType) (*domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		if c.TenantID == tenantID && c.LocationID == locationID && c.Platform == p {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memConnectionRepo) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]domain.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Connection
	for _, c := range r.conns {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memConnectionRepo) Upsert(_ context.Context, conn *domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.conns {
		if c.TenantID == conn.TenantID && c.LocationID == conn.LocationID && c.Platform == conn.Platform {
			conn.ID = id
			conn.WebhookKey = c.WebhookKey
		}
	}
	cp := *conn
	r.conns[conn.ID] = &cp
	return nil
}

func (r *memConnectionRepo) UpdateTokens(_ context.Context, id uuid.UUID, accessEnc, refreshEnc string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.AccessTokenEnc, c.RefreshTokenEnc, c.TokenExpiresAt = accessEnc, refreshEnc, expiresAt
	}
	return nil
}

func (r *memConnectionRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.ConnectionStatus, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok {
		c.Status, c.LastError = status, lastError
	}
	return nil
}

func (r *memConnectionRepo) RecordSync(_ context.Context, s domain.SyncCounters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs = append(r.syncs, s)
	if c, ok := r.conns[s.ConnectionID]; ok {
		if s.Success {
			c.OrdersSynced++
			c.ConsecutiveErrs = 0
			at := s.At
			c.LastSyncAt = &at
		} else {
			c.ConsecutiveErrs++
			msg := s.Error
			c.LastError = &msg
		}
	}
	return nil
}

func (r *memConnectionRepo) get(id uuid.UUID) domain.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.conns[id]
}

// memLedger records attempts in memory; expiry is not simulated.
type memLedger struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*domain.Attempt
}

func newMemLedger() *memLedger {
	return &memLedger{attempts: make(map[uuid.UUID]*domain.Attempt)}
}

func (l *memLedger) Begin(_ context.Context, a *domain.Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *a
	l.attempts[a.ID] = &cp
	return nil
}

func (l *memLedger) AppendStep(_ context.Context, id uuid.UUID, step domain.AttemptStep) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.attempts[id]; ok {
		a.Steps = append(a.Steps, step)
	}
	return nil
}

func (l *memLedger) Attach(_ context.Context, id uuid.UUID, p domain.AttemptPatch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.attempts[id]
	if !ok {
		return nil
	}
	if p.ConnectionID != nil {
		a.ConnectionID = p.ConnectionID
	}
	if p.TenantID != nil {
		a.TenantID = p.TenantID
	}
	if p.State != "" {
		a.State = p.State
	}
	if p.Signature != nil {
		a.Signature = p.Signature
	}
	if p.OrderSummary != nil {
		a.OrderSummary = p.OrderSummary
	}
	return nil
}

func (l *memLedger) Complete(_ context.Context, id uuid.UUID, o domain.AttemptOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.attempts[id]
	if !ok {
		return nil
	}
	a.Status, a.State, a.Detail, a.MatchedRule = o.Status, o.State, o.Detail, o.MatchedRule
	a.ResolvedOrderID = o.ResolvedOrderID
	resp := o.Response
	a.Response = &resp
	at := o.CompletedAt
	a.CompletedAt = &at
	a.ProcessingMS = o.ProcessingMS
	return nil
}

func (l *memLedger) Get(_ context.Context, id uuid.UUID) (*domain.Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.attempts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (l *memLedger) Search(_ context.Context, f domain.AttemptFilter) ([]domain.Attempt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Attempt
	for _, a := range l.attempts {
		if a.TenantID == nil || *a.TenantID != f.TenantID {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (l *memLedger) all() []domain.Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Attempt, 0, len(l.attempts))
	for _, a := range l.attempts {
		out = append(out, *a)
	}
	return out
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	orders []uuid.UUID
}

func (p *memPublisher) PublishOrderAdmitted(_ context.Context, o *domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, o.ID)
	return nil
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.orders)
}

// olderThan reports whether o sorts after c in (created_at DESC, id DESC) order.
func olderThan(o *domain.Order, c *ports.OrderCursor) bool {
	if !o.CreatedAt.Equal(c.CreatedAt) {
		return o.CreatedAt.Before(c.CreatedAt)
	}
	return o.ID.String() < c.ID.String()
}
