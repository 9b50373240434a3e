package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, tenant_id, location_id, connection_id, platform, external_order_id,
	customer, items, total::text, currency, placed_at, created_at`

// prefilterClauses maps indexed rule fields to their WHERE fragment. The
// placeholder is filled with the query's values as a text[].
var prefilterClauses = map[domain.RuleField]string{
	domain.FieldCustomerPhone: "customer_phone_norm = ANY(%s)",
	domain.FieldCustomerName:  "customer_name_norm = ANY(%s)",
	domain.FieldProductID:     "product_ids && %s",
	domain.FieldProductCode:   "product_codes && %s",
}

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts an order. A uniqueness violation on (tenant, platform,
// external order id) is reported as ports.ErrOrderExists.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return fmt.Errorf("encode customer: %w", err)
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	query := `INSERT INTO orders (id, tenant_id, location_id, connection_id, platform, external_order_id,
			customer, items, total, currency, placed_at, created_at,
			customer_name_norm, customer_phone_norm, product_ids, product_codes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13, $14, $15, $16)`

	_, err = r.pool.Exec(ctx, query,
		o.ID, o.TenantID, o.LocationID, o.ConnectionID, o.Platform, o.ExternalOrderID,
		customer, items, o.Total.String(), o.Currency, o.PlacedAt, o.CreatedAt,
		domain.NormalizeText(o.Customer.Name), domain.NormalizePhone(o.Customer.Phone),
		o.ProductIDs(), o.ProductCodes(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ports.ErrOrderExists
		}
		if pgErr, ok := dataException(err); ok {
			return fmt.Errorf("%w: %s (%s)", ports.ErrOrderInvalid, pgErr.Message, pgErr.Code)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByExternalID fetches the admitted order for an external id.
func (r *OrderRepo) GetByExternalID(ctx context.Context, tenantID uuid.UUID, platform domain.PlatformType, externalOrderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE tenant_id = $1 AND platform = $2 AND external_order_id = $3`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, tenantID, platform, externalOrderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by external id: %w", err)
	}
	return o, nil
}

// FindRecent returns one page of the tenant's orders created within
// [Since, Until], newest first, optionally narrowed by an indexed field.
func (r *OrderRepo) FindRecent(ctx context.Context, q ports.RecentOrderQuery) ([]domain.Order, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + orderColumns + ` FROM orders
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at <= $3
		AND NOT (platform = $4 AND external_order_id = $5)`)
	args := []any{q.TenantID, q.Since, q.Until, q.ExcludePlatform, q.ExcludeExternal}

	if q.Field != "" {
		clause, ok := prefilterClauses[q.Field]
		if !ok {
			return nil, fmt.Errorf("field %q has no index", q.Field)
		}
		args = append(args, q.Values)
		sb.WriteString(" AND " + fmt.Sprintf(clause, "$"+strconv.Itoa(len(args))))
	}
	if q.Before != nil {
		args = append(args, q.Before.CreatedAt, q.Before.ID)
		sb.WriteString(fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	sb.WriteString(" ORDER BY created_at DESC, id DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find recent orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find recent orders: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	var customer, items []byte
	var total string
	if err := row.Scan(
		&o.ID, &o.TenantID, &o.LocationID, &o.ConnectionID, &o.Platform, &o.ExternalOrderID,
		&customer, &items, &total, &o.Currency, &o.PlacedAt, &o.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	t, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("decode total: %w", err)
	}
	o.Total = t
	return o, nil
}
