package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Address is a customer's shipping address.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// String joins the non-empty address parts with ", ".
func (a Address) String() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.Region, a.PostalCode, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Customer holds the contact data of an order.
type Customer struct {
	Name    string  `json:"name,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	Email   string  `json:"email,omitempty"`
	Address Address `json:"address"`
}

// LineItem is one product line of an order.
type LineItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	SKU         string          `json:"sku,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// CandidateOrder is the normalized, not yet admitted, form of a platform order.
type CandidateOrder struct {
	Platform        PlatformType    `json:"platform"`
	ExternalOrderID string          `json:"external_order_id"`
	Customer        Customer        `json:"customer"`
	Items           []LineItem      `json:"items"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency,omitempty"`
	PlacedAt        *time.Time      `json:"placed_at,omitempty"`
}

// NeedsCatalog reports whether any line item is missing product details.
func (c *CandidateOrder) NeedsCatalog() bool {
	for _, it := range c.Items {
		if it.ProductName == "" && it.SKU == "" {
			return true
		}
	}
	return false
}

// Summary is the compact order description kept in the attempt ledger.
func (c *CandidateOrder) Summary() *OrderSummary {
	return &OrderSummary{
		ExternalOrderID: c.ExternalOrderID,
		CustomerName:    c.Customer.Name,
		CustomerPhone:   c.Customer.Phone,
		ItemCount:       len(c.Items),
		Total:           c.Total.StringFixed(2),
		Currency:        c.Currency,
	}
}

// Order is the canonical admitted order consumed downstream.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        uuid.UUID       `json:"tenant_id"`
	LocationID      uuid.UUID       `json:"location_id"`
	ConnectionID    uuid.UUID       `json:"connection_id"`
	Platform        PlatformType    `json:"platform"`
	ExternalOrderID string          `json:"external_order_id"`
	Customer        Customer        `json:"customer"`
	Items           []LineItem      `json:"items"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency,omitempty"`
	PlacedAt        *time.Time      `json:"placed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewOrder builds the canonical order for a candidate arriving through conn.
func NewOrder(c *CandidateOrder, conn *Connection, now time.Time) *Order {
	return &Order{
		ID:              uuid.New(),
		TenantID:        conn.TenantID,
		LocationID:      conn.LocationID,
		ConnectionID:    conn.ID,
		Platform:        c.Platform,
		ExternalOrderID: c.ExternalOrderID,
		Customer:        c.Customer,
		Items:           c.Items,
		Total:           c.Total,
		Currency:        c.Currency,
		PlacedAt:        c.PlacedAt,
		CreatedAt:       now,
	}
}

// ProductIDs returns the distinct product ids of the order's items.
func (o *Order) ProductIDs() []string {
	return distinct(o.Items, func(it LineItem) string { return it.ProductID })
}

// ProductCodes returns the distinct SKUs of the order's items.
func (o *Order) ProductCodes() []string {
	return distinct(o.Items, func(it LineItem) string { return it.SKU })
}

func distinct(items []LineItem, key func(LineItem) string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		k := key(it)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// OrderSummary is a short description of the order an attempt carried.
type OrderSummary struct {
	ExternalOrderID string `json:"external_order_id"`
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	ItemCount       int    `json:"item_count"`
	Total           string `json:"total"`
	Currency        string `json:"currency,omitempty"`
}

// BuildOrderKey is the idempotency key of an external order within a tenant.
func BuildOrderKey(tenantID uuid.UUID, platform PlatformType, externalOrderID string) string {
	return tenantID.String() + ":" + string(platform) + ":" + externalOrderID
}

// NormalizeText lower-cases s and collapses runs of whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizePhone keeps digits and a leading '+'.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 1 && strings.HasPrefix(b.String(), "+") {
		return ""
	}
	return b.String()
}
