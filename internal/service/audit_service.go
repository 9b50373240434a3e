package service

import (
	"context"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const auditWriteTimeout = 3 * time.Second

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Log records a tenant configuration change asynchronously (fire-and-forget).
// The write outlives the request that triggered it.
func (s *auditService) Log(ctx context.Context, entry *domain.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	bg := context.WithoutCancel(ctx)

	go func() {
		ev := s.log.Info().
			Str("action", string(entry.Action)).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID).
			Str("ip", entry.IPAddress)
		if entry.TenantID != nil {
			ev = ev.Str("tenant_id", entry.TenantID.String())
		}
		ev.Msg("audit")

		if s.repo == nil {
			return
		}
		wctx, cancel := context.WithTimeout(bg, auditWriteTimeout)
		defer cancel()
		if err := s.repo.Create(wctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	}()
}
