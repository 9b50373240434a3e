package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

const followUpTimeout = 2 * time.Second

// AdmissionService implements ports.AdmissionCoordinator. The orders table's
// unique index is the only arbiter; the Redis cache is a fast path in front of it.
type AdmissionService struct {
	orders    ports.OrderRepository
	conns     ports.ConnectionRepository
	cache     ports.IdempotencyCache
	publisher ports.EventPublisher
	cacheTTL  time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewAdmissionService creates an admission coordinator. publisher may be nil.
func NewAdmissionService(
	orders ports.OrderRepository,
	conns ports.ConnectionRepository,
	cache ports.IdempotencyCache,
	publisher ports.EventPublisher,
	cacheTTL time.Duration,
	log zerolog.Logger,
) *AdmissionService {
	return &AdmissionService{
		orders:    orders,
		conns:     conns,
		cache:     cache,
		publisher: publisher,
		cacheTTL:  cacheTTL,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Existing returns the order already admitted for the candidate's external id.
func (s *AdmissionService) Existing(ctx context.Context, c *domain.CandidateOrder, conn *domain.Connection) (*domain.Order, error) {
	key := domain.BuildOrderKey(conn.TenantID, c.Platform, c.ExternalOrderID)

	// Layer 1: Redis
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("order cache lookup failed, falling through to DB")
	}
	if cached != nil {
		var o domain.Order
		if err := json.Unmarshal(cached, &o); err == nil {
			return &o, nil
		}
		s.log.Warn().Str("key", key).Msg("discarding unreadable order cache entry")
	}

	// Layer 2: DB
	o, err := s.orders.GetByExternalID(ctx, conn.TenantID, c.Platform, c.ExternalOrderID)
	if err != nil {
		return nil, fmt.Errorf("looking up order: %w", err)
	}
	if o != nil {
		s.cacheOrder(ctx, o)
	}
	return o, nil
}

// Admit inserts the canonical order. A unique violation means a concurrent or
// earlier delivery won; its order is returned with Created=false.
func (s *AdmissionService) Admit(ctx context.Context, c *domain.CandidateOrder, conn *domain.Connection) (*ports.AdmissionResult, error) {
	order := domain.NewOrder(c, conn, s.now())

	err := s.orders.Create(ctx, order)
	if errors.Is(err, ports.ErrOrderExists) {
		existing, getErr := s.orders.GetByExternalID(ctx, conn.TenantID, c.Platform, c.ExternalOrderID)
		if getErr != nil {
			return nil, fmt.Errorf("fetching conflicting order: %w", getErr)
		}
		if existing == nil {
			return nil, fmt.Errorf("order %s reported as existing but not found", c.ExternalOrderID)
		}
		return &ports.AdmissionResult{
			Created: false,
			Order:   existing,
			Reason:  ports.AdmissionDuplicateOfSelf,
			Detail:  "order already admitted by an earlier delivery",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	s.followUp(ctx, order, conn)
	return &ports.AdmissionResult{Created: true, Order: order}, nil
}

// RecordFailure bumps the connection's error counters. Best-effort.
func (s *AdmissionService) RecordFailure(ctx context.Context, conn *domain.Connection, cause string) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
	defer cancel()

	err := s.conns.RecordSync(fctx, domain.SyncCounters{
		ConnectionID: conn.ID,
		At:           s.now(),
		Success:      false,
		Error:        cause,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("connection_id", conn.ID.String()).Msg("failed to record connection failure")
	}
}

// followUp runs the post-admission side effects. None of them can undo the
// admitted order; failures are logged only.
func (s *AdmissionService) followUp(ctx context.Context, order *domain.Order, conn *domain.Connection) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
	defer cancel()

	s.cacheOrder(fctx, order)

	if err := s.conns.RecordSync(fctx, domain.SyncCounters{
		ConnectionID: conn.ID,
		At:           order.CreatedAt,
		Success:      true,
	}); err != nil {
		s.log.Warn().Err(err).Str("connection_id", conn.ID.String()).Msg("failed to update connection counters")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderAdmitted(fctx, order); err != nil {
			s.log.Warn().Err(err).Str("order_id", order.ID.String()).Msg("failed to publish order.admitted")
		}
	}
}

func (s *AdmissionService) cacheOrder(ctx context.Context, o *domain.Order) {
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	key := domain.BuildOrderKey(o.TenantID, o.Platform, o.ExternalOrderID)
	if err := s.cache.Set(ctx, key, b, s.cacheTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache admitted order")
	}
}
