package service

import (
	"context"
	"fmt"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// prefilterOrder lists indexed fields most selective first. An ALL rule is
// narrowed by the first one it names.
var prefilterOrder = []domain.RuleField{
	domain.FieldCustomerPhone,
	domain.FieldCustomerName,
	domain.FieldProductCode,
	domain.FieldProductID,
}

// DedupEvaluator implements ports.DuplicateEvaluator. Rules are loaded on
// every call so tenant edits apply to the next notification.
type DedupEvaluator struct {
	rules     ports.RuleSetRepository
	orders    ports.OrderRepository
	scanLimit int
	tolerance decimal.Decimal
	log       zerolog.Logger
}

// NewDedupEvaluator creates an evaluator. scanLimit is the page size used
// while walking a window; the whole window is always covered.
// tolerance bounds order_total matches.
func NewDedupEvaluator(
	rules ports.RuleSetRepository,
	orders ports.OrderRepository,
	scanLimit int,
	tolerance decimal.Decimal,
	log zerolog.Logger,
) *DedupEvaluator {
	return &DedupEvaluator{
		rules:     rules,
		orders:    orders,
		scanLimit: scanLimit,
		tolerance: tolerance,
		log:       log,
	}
}

// Evaluate returns the first active rule, in stored order, that a prior
// admitted order of the same tenant matches inside the rule's window.
func (e *DedupEvaluator) Evaluate(ctx context.Context, conn *domain.Connection, candidate *domain.CandidateOrder, now time.Time) (*ports.DuplicateDecision, error) {
	set, err := e.rules.Get(ctx, conn.TenantID)
	if err != nil {
		return nil, fmt.Errorf("loading rule set: %w", err)
	}

	decision := &ports.DuplicateDecision{}
	rules := set.ActiveRules()
	if len(rules) == 0 {
		return decision, nil
	}

	incoming := newComparableOrder(candidate, conn)
	for i := range rules {
		rule := rules[i]
		window := rule.EffectiveWindow(set.DefaultWindow).Duration()
		if len(rule.Fields) == 0 || window <= 0 {
			e.log.Warn().
				Str("tenant_id", conn.TenantID.String()).
				Str("rule", rule.Name).
				Msg("skipping invalid dedup rule")
			decision.Skipped = append(decision.Skipped, rule.Name)
			continue
		}

		match, scanned, err := e.evaluateRule(ctx, rule, window, incoming, now)
		decision.Scanned += scanned
		if err != nil {
			return nil, fmt.Errorf("evaluating rule %q: %w", rule.Name, err)
		}
		if match != nil {
			decision.IsDuplicate = true
			decision.MatchedRule = &rule
			decision.MatchedOrder = match
			return decision, nil
		}
	}
	return decision, nil
}

// evaluateRule walks the rule's window newest first, one page at a time, and
// returns the most recent matching order with the number of orders compared.
func (e *DedupEvaluator) evaluateRule(ctx context.Context, rule domain.DedupRule, window time.Duration, incoming *comparableOrder, now time.Time) (*domain.Order, int, error) {
	q := ports.RecentOrderQuery{
		TenantID:        incoming.tenantID,
		Since:           now.Add(-window),
		Until:           now,
		ExcludePlatform: incoming.platform,
		ExcludeExternal: incoming.externalID,
		Limit:           e.scanLimit,
	}

	if rule.Operator == domain.OperatorAll {
		// A field the candidate lacks can never match, so neither can the rule.
		for _, f := range rule.Fields {
			if !incoming.has(f) {
				return nil, 0, nil
			}
		}
		for _, f := range prefilterOrder {
			if rule.HasField(f) {
				q.Field = f
				q.Values = incoming.values(f)
				break
			}
		}
	}

	scanned := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, scanned, err
		}
		page, err := e.orders.FindRecent(ctx, q)
		if err != nil {
			return nil, scanned, err
		}
		scanned += len(page)
		for i := range page {
			if e.matches(rule, incoming, &page[i]) {
				return &page[i], scanned, nil
			}
		}
		if q.Limit <= 0 || len(page) < q.Limit {
			return nil, scanned, nil
		}
		last := page[len(page)-1]
		q.Before = &ports.OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}

func (e *DedupEvaluator) matches(rule domain.DedupRule, incoming *comparableOrder, prior *domain.Order) bool {
	if rule.Operator == domain.OperatorAny {
		for _, f := range rule.Fields {
			if e.fieldMatches(f, incoming, prior) {
				return true
			}
		}
		return false
	}
	for _, f := range rule.Fields {
		if !e.fieldMatches(f, incoming, prior) {
			return false
		}
	}
	return true
}

func (e *DedupEvaluator) fieldMatches(f domain.RuleField, incoming *comparableOrder, prior *domain.Order) bool {
	switch f {
	case domain.FieldCustomerName:
		return equalNonEmpty(incoming.name, domain.NormalizeText(prior.Customer.Name))
	case domain.FieldCustomerPhone:
		return equalNonEmpty(incoming.phone, domain.NormalizePhone(prior.Customer.Phone))
	case domain.FieldCustomerAddress:
		return equalNonEmpty(incoming.address, domain.NormalizeText(prior.Customer.Address.String()))
	case domain.FieldProductID:
		return intersects(incoming.productIDs, prior.ProductIDs())
	case domain.FieldProductCode:
		return intersects(incoming.productCodes, prior.ProductCodes())
	case domain.FieldProductName:
		return intersects(incoming.productNames, productNames(prior.Items))
	case domain.FieldOrderTotal:
		return incoming.total.Sub(prior.Total).Abs().LessThanOrEqual(e.tolerance)
	case domain.FieldLocation:
		return incoming.locationID == prior.LocationID
	}
	return false
}

// comparableOrder is the candidate with every comparable field pre-normalized.
type comparableOrder struct {
	tenantID     uuid.UUID
	platform     domain.PlatformType
	externalID   string
	locationID   uuid.UUID
	name         string
	phone        string
	address      string
	productIDs   []string
	productCodes []string
	productNames []string
	total        decimal.Decimal
}

func newComparableOrder(c *domain.CandidateOrder, conn *domain.Connection) *comparableOrder {
	o := domain.Order{Items: c.Items}
	return &comparableOrder{
		tenantID:     conn.TenantID,
		platform:     c.Platform,
		externalID:   c.ExternalOrderID,
		locationID:   conn.LocationID,
		name:         domain.NormalizeText(c.Customer.Name),
		phone:        domain.NormalizePhone(c.Customer.Phone),
		address:      domain.NormalizeText(c.Customer.Address.String()),
		productIDs:   o.ProductIDs(),
		productCodes: o.ProductCodes(),
		productNames: productNames(c.Items),
		total:        c.Total,
	}
}

func (p *comparableOrder) has(f domain.RuleField) bool {
	switch f {
	case domain.FieldCustomerName:
		return p.name != ""
	case domain.FieldCustomerPhone:
		return p.phone != ""
	case domain.FieldCustomerAddress:
		return p.address != ""
	case domain.FieldProductID:
		return len(p.productIDs) > 0
	case domain.FieldProductCode:
		return len(p.productCodes) > 0
	case domain.FieldProductName:
		return len(p.productNames) > 0
	}
	return true
}

// values returns the pre-filter values for an indexed field.
func (p *comparableOrder) values(f domain.RuleField) []string {
	switch f {
	case domain.FieldCustomerPhone:
		return []string{p.phone}
	case domain.FieldProductID:
		return p.productIDs
	case domain.FieldProductCode:
		return p.productCodes
	case domain.FieldCustomerName:
		return []string{p.name}
	}
	return nil
}

func productNames(items []domain.LineItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if n := domain.NormalizeText(it.ProductName); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func equalNonEmpty(a, b string) bool {
	return a != "" && a == b
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, y := range b {
		if _, ok := set[y]; ok {
			return true
		}
	}
	return false
}
