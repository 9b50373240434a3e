package platform

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"order-intake-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
)

// ShopifySignatureHeader carries base64(HMAC-SHA256(app secret, body)).
const ShopifySignatureHeader = "X-Shopify-Hmac-Sha256"

// Shopify handles orders/create webhooks from Shopify stores.
type Shopify struct{}

func (Shopify) Type() domain.PlatformType { return domain.PlatformShopify }

func (Shopify) Verify(body []byte, headers map[string]string, secret string) Verification {
	v := Verification{Method: "hmac-sha256-base64", Provided: header(headers, ShopifySignatureHeader)}
	if v.Provided == "" || secret == "" {
		return v
	}
	provided, err := base64.StdEncoding.DecodeString(v.Provided)
	if err != nil {
		return v
	}
	v.Valid = hmacEqual(provided, computeHMAC(secret, body))
	return v
}

type shopifyAddress struct {
	Name     string `json:"name"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
}

type shopifyCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type shopifyLineItem struct {
	ProductID json.Number     `json:"product_id" validate:"required"`
	Title     string          `json:"title"`
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	Price     decimal.Decimal `json:"price"`
}

type shopifyOrder struct {
	ID              json.Number         `json:"id" validate:"required,max=128"`
	Email           string              `json:"email"`
	Phone           string              `json:"phone"`
	CreatedAt       string              `json:"created_at"`
	Currency        string              `json:"currency"`
	TotalPrice      decimal.NullDecimal `json:"total_price"`
	Customer        *shopifyCustomer    `json:"customer"`
	ShippingAddress *shopifyAddress     `json:"shipping_address"`
	BillingAddress  *shopifyAddress     `json:"billing_address"`
	LineItems       []shopifyLineItem   `json:"line_items" validate:"required,min=1,dive"`
}

func (s Shopify) Normalize(body []byte) (*domain.CandidateOrder, error) {
	var p shopifyOrder
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, decodeError(s.Type(), err)
	}
	if err := validatePayload(s.Type(), &p); err != nil {
		return nil, err
	}

	addr := p.ShippingAddress
	if addr == nil {
		addr = p.BillingAddress
	}
	if addr == nil {
		addr = &shopifyAddress{}
	}
	cust := p.Customer
	if cust == nil {
		cust = &shopifyCustomer{}
	}

	items := make([]domain.LineItem, 0, len(p.LineItems))
	for _, li := range p.LineItems {
		items = append(items, domain.LineItem{
			ProductID:   li.ProductID.String(),
			ProductName: strings.TrimSpace(li.Title),
			SKU:         strings.TrimSpace(li.SKU),
			Quantity:    li.Quantity,
			UnitPrice:   li.Price,
		})
	}

	return checkTotal(s.Type(), &domain.CandidateOrder{
		Platform:        s.Type(),
		ExternalOrderID: p.ID.String(),
		Customer: domain.Customer{
			Name:  firstNonEmpty(joinName(cust.FirstName, cust.LastName), addr.Name),
			Phone: domain.NormalizePhone(firstNonEmpty(cust.Phone, p.Phone, addr.Phone)),
			Email: firstNonEmpty(cust.Email, p.Email),
			Address: domain.Address{
				Line1:      addr.Address1,
				Line2:      addr.Address2,
				City:       addr.City,
				Region:     addr.Province,
				PostalCode: addr.Zip,
				Country:    addr.Country,
			},
		},
		Items:    items,
		Total:    totalOrSum(p.TotalPrice, items),
		Currency: strings.ToUpper(p.Currency),
		PlacedAt: parseTime(p.CreatedAt),
	})
}
