package service

import (
	"context"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"
	"order-intake-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultRuleWindow applies to rules that do not carry their own window.
var DefaultRuleWindow = domain.TimeWindow{Value: 24, Unit: domain.UnitHours}

// RuleService implements ports.RuleService.
type RuleService struct {
	repo ports.RuleSetRepository
	log  zerolog.Logger
	now  func() time.Time
}

// NewRuleService creates a new rule service.
func NewRuleService(repo ports.RuleSetRepository, log zerolog.Logger) *RuleService {
	return &RuleService{
		repo: repo,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the tenant's rule set, or a disabled empty set when none is stored.
func (s *RuleService) Get(ctx context.Context, tenantID uuid.UUID) (*domain.RuleSet, error) {
	set, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if set == nil {
		return &domain.RuleSet{
			TenantID:      tenantID,
			DefaultWindow: DefaultRuleWindow,
			Rules:         []domain.DedupRule{},
		}, nil
	}
	return set, nil
}

// Replace validates and stores a complete rule set. Rule order is preserved.
func (s *RuleService) Replace(ctx context.Context, set *domain.RuleSet) (*domain.RuleSet, error) {
	if set.DefaultWindow.IsZero() {
		set.DefaultWindow = DefaultRuleWindow
	}
	if set.Rules == nil {
		set.Rules = []domain.DedupRule{}
	}
	if err := set.Validate(); err != nil {
		return nil, apperror.ErrInvalidRuleSet(err)
	}

	for i := range set.Rules {
		if set.Rules[i].ID == uuid.Nil {
			set.Rules[i].ID = uuid.New()
		}
	}
	set.UpdatedAt = s.now()

	if err := s.repo.Save(ctx, set); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	s.log.Info().
		Str("tenant_id", set.TenantID.String()).
		Bool("enabled", set.Enabled).
		Int("rules", len(set.Rules)).
		Msg("dedup rule set replaced")
	return set, nil
}
