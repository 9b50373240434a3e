package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder() *domain.Order {
	return &domain.Order{
		ID:              uuid.New(),
		TenantID:        uuid.New(),
		LocationID:      uuid.New(),
		ConnectionID:    uuid.New(),
		Platform:        domain.PlatformShopify,
		ExternalOrderID: "5001",
		Customer:        domain.Customer{Name: "Ann  Lee", Phone: "+1 (555) 123-4567"},
		Items: []domain.LineItem{
			{ProductID: "1001", ProductName: "Widget", SKU: "W-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{ProductID: "1002", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50")},
		},
		Total:     decimal.RequireFromString("25.50"),
		Currency:  "USD",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func orderColumnNames() []string {
	return []string{"id", "tenant_id", "location_id", "connection_id", "platform", "external_order_id",
		"customer", "items", "total", "currency", "placed_at", "created_at"}
}

func orderRow(t *testing.T, o *domain.Order) *pgxmock.Rows {
	t.Helper()
	customer, err := json.Marshal(o.Customer)
	require.NoError(t, err)
	items, err := json.Marshal(o.Items)
	require.NoError(t, err)
	return pgxmock.NewRows(orderColumnNames()).AddRow(
		o.ID, o.TenantID, o.LocationID, o.ConnectionID, o.Platform, o.ExternalOrderID,
		customer, items, o.Total.StringFixed(2), o.Currency, o.PlacedAt, o.CreatedAt,
	)
}

func TestOrderRepo_Create_WritesNormalizedColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()

	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, o.TenantID, o.LocationID, o.ConnectionID, o.Platform, o.ExternalOrderID,
			pgxmock.AnyArg(), pgxmock.AnyArg(), "25.5", "USD", o.PlacedAt, o.CreatedAt,
			"ann lee", "+15551234567", []string{"1001", "1002"}, []string{"W-1"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_Create_UniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)

	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_orders_external"})

	err = repo.Create(context.Background(), newTestOrder())
	assert.ErrorIs(t, err, ports.ErrOrderExists)
}

func TestOrderRepo_Create_DataException(t *testing.T) {
	for _, code := range []string{"22001", "22003"} {
		t.Run(code, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewOrderRepo(mock)
			mock.ExpectExec("INSERT INTO orders").
				WillReturnError(&pgconn.PgError{Code: code, Message: "value out of range"})

			err = repo.Create(context.Background(), newTestOrder())
			assert.ErrorIs(t, err, ports.ErrOrderInvalid)
			assert.NotErrorIs(t, err, ports.ErrOrderExists)
			assert.Contains(t, err.Error(), code)
		})
	}
}

func TestOrderRepo_Create_OtherErrorsStayTransient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pgconn.PgError{Code: "57P01", Message: "terminating connection"})

	err = repo.Create(context.Background(), newTestOrder())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrOrderInvalid)
}

func TestOrderRepo_GetByExternalID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()

	mock.ExpectQuery("SELECT .+ FROM orders\\s+WHERE tenant_id = \\$1 AND platform = \\$2 AND external_order_id = \\$3").
		WithArgs(o.TenantID, o.Platform, o.ExternalOrderID).
		WillReturnRows(orderRow(t, o))

	got, err := repo.GetByExternalID(context.Background(), o.TenantID, o.Platform, o.ExternalOrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, o.ID, got.ID)
	assert.True(t, o.Total.Equal(got.Total))
	assert.Equal(t, "Ann  Lee", got.Customer.Name)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "W-1", got.Items[0].SKU)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetByExternalID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM orders").
		WillReturnRows(pgxmock.NewRows(orderColumnNames()))

	got, err := repo.GetByExternalID(context.Background(), uuid.New(), domain.PlatformYouCan, "x")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestOrderRepo_FindRecent_WithPrefilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()
	until := time.Now().UTC()
	q := ports.RecentOrderQuery{
		TenantID:        o.TenantID,
		Since:           until.Add(-24 * time.Hour),
		Until:           until,
		Field:           domain.FieldProductID,
		Values:          []string{"1001"},
		ExcludePlatform: domain.PlatformYouCan,
		ExcludeExternal: "yc-9",
		Limit:           50,
	}

	mock.ExpectQuery("created_at >= \\$2 AND created_at <= \\$3.+AND product_ids && \\$6 ORDER BY created_at DESC, id DESC LIMIT \\$7").
		WithArgs(q.TenantID, q.Since, q.Until, q.ExcludePlatform, q.ExcludeExternal, q.Values, q.Limit).
		WillReturnRows(orderRow(t, o))

	got, err := repo.FindRecent(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, o.ID, got[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_FindRecent_UnfilteredScan(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	until := time.Now().UTC()
	q := ports.RecentOrderQuery{TenantID: uuid.New(), Since: until.Add(-time.Hour), Until: until}

	mock.ExpectQuery("NOT \\(platform = \\$4 AND external_order_id = \\$5\\) ORDER BY created_at DESC, id DESC$").
		WithArgs(q.TenantID, q.Since, q.Until, q.ExcludePlatform, q.ExcludeExternal).
		WillReturnRows(pgxmock.NewRows(orderColumnNames()))

	got, err := repo.FindRecent(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_FindRecent_NextPage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	until := time.Now().UTC()
	cursor := &ports.OrderCursor{CreatedAt: until.Add(-time.Minute), ID: uuid.New()}
	q := ports.RecentOrderQuery{
		TenantID: uuid.New(),
		Since:    until.Add(-time.Hour),
		Until:    until,
		Limit:    20,
		Before:   cursor,
	}

	mock.ExpectQuery("AND \\(created_at, id\\) < \\(\\$6, \\$7\\) ORDER BY created_at DESC, id DESC LIMIT \\$8").
		WithArgs(q.TenantID, q.Since, q.Until, q.ExcludePlatform, q.ExcludeExternal, cursor.CreatedAt, cursor.ID, q.Limit).
		WillReturnRows(pgxmock.NewRows(orderColumnNames()))

	got, err := repo.FindRecent(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_FindRecent_UnindexedField(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)

	_, err = repo.FindRecent(context.Background(), ports.RecentOrderQuery{Field: domain.FieldOrderTotal, Values: []string{"1"}})
	assert.Error(t, err)
}
