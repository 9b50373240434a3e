package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"order-intake-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RuleSetRepo implements ports.RuleSetRepository. Rules are stored as one
// JSONB array per tenant so their order is kept.
type RuleSetRepo struct {
	pool Pool
}

// NewRuleSetRepo creates a new RuleSetRepo.
func NewRuleSetRepo(pool Pool) *RuleSetRepo {
	return &RuleSetRepo{pool: pool}
}

// Get returns nil, nil when the tenant has no rule set.
func (r *RuleSetRepo) Get(ctx context.Context, tenantID uuid.UUID) (*domain.RuleSet, error) {
	query := `SELECT enabled, default_window, rules, updated_at FROM dedup_rule_sets WHERE tenant_id = $1`

	set := &domain.RuleSet{TenantID: tenantID}
	var window, rules []byte
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(&set.Enabled, &window, &rules, &set.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rule set: %w", err)
	}

	if err := json.Unmarshal(window, &set.DefaultWindow); err != nil {
		return nil, fmt.Errorf("decode default window: %w", err)
	}
	if err := json.Unmarshal(rules, &set.Rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return set, nil
}

// Save replaces the tenant's rule set.
func (r *RuleSetRepo) Save(ctx context.Context, set *domain.RuleSet) error {
	window, err := json.Marshal(set.DefaultWindow)
	if err != nil {
		return fmt.Errorf("encode default window: %w", err)
	}
	rules := set.Rules
	if rules == nil {
		rules = []domain.DedupRule{}
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}

	query := `INSERT INTO dedup_rule_sets (tenant_id, enabled, default_window, rules, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			default_window = EXCLUDED.default_window,
			rules = EXCLUDED.rules,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.pool.Exec(ctx, query, set.TenantID, set.Enabled, window, rulesJSON, set.UpdatedAt); err != nil {
		return fmt.Errorf("save rule set: %w", err)
	}
	return nil
}
