package platform

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"order-intake-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
)

// WooCommerceSignatureHeader carries base64(HMAC-SHA256(webhook secret, body)).
const WooCommerceSignatureHeader = "X-WC-Webhook-Signature"

// WooCommerce handles order.created webhooks from WooCommerce sites.
// Its webhooks are signed with a per-connection secret.
type WooCommerce struct{}

func (WooCommerce) Type() domain.PlatformType { return domain.PlatformWooCommerce }

func (WooCommerce) Verify(body []byte, headers map[string]string, secret string) Verification {
	v := Verification{Method: "hmac-sha256-base64", Provided: header(headers, WooCommerceSignatureHeader)}
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

type wooAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type wooLineItem struct {
	ProductID   json.Number     `json:"product_id" validate:"required"`
	VariationID json.Number     `json:"variation_id"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	Price       decimal.Decimal `json:"price"`
}

type wooOrder struct {
	ID             json.Number         `json:"id" validate:"required,max=128"`
	Status         string              `json:"status"`
	Currency       string              `json:"currency"`
	DateCreatedGMT string              `json:"date_created_gmt"`
	Total          decimal.NullDecimal `json:"total"`
	Billing        wooAddress          `json:"billing"`
	Shipping       wooAddress          `json:"shipping"`
	LineItems      []wooLineItem       `json:"line_items" validate:"required,min=1,dive"`
}

func (w WooCommerce) Normalize(body []byte) (*domain.CandidateOrder, error) {
	var p wooOrder
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, decodeError(w.Type(), err)
	}
	if err := validatePayload(w.Type(), &p); err != nil {
		return nil, err
	}

	addr := p.Shipping
	if addr.Address1 == "" && addr.City == "" {
		addr = p.Billing
	}

	items := make([]domain.LineItem, 0, len(p.LineItems))
	for _, li := range p.LineItems {
		items = append(items, domain.LineItem{
			ProductID:   li.ProductID.String(),
			ProductName: strings.TrimSpace(li.Name),
			SKU:         strings.TrimSpace(li.SKU),
			Quantity:    li.Quantity,
			UnitPrice:   li.Price,
		})
	}

	return checkTotal(w.Type(), &domain.CandidateOrder{
		Platform:        w.Type(),
		ExternalOrderID: p.ID.String(),
		Customer: domain.Customer{
			Name: firstNonEmpty(
				joinName(p.Billing.FirstName, p.Billing.LastName),
				joinName(p.Shipping.FirstName, p.Shipping.LastName),
			),
			Phone: domain.NormalizePhone(firstNonEmpty(p.Billing.Phone, p.Shipping.Phone)),
			Email: p.Billing.Email,
			Address: domain.Address{
				Line1:      addr.Address1,
				Line2:      addr.Address2,
				City:       addr.City,
				Region:     addr.State,
				PostalCode: addr.Postcode,
				Country:    addr.Country,
			},
		},
		Items:    items,
		Total:    totalOrSum(p.Total, items),
		Currency: strings.ToUpper(p.Currency),
		PlacedAt: parseTime(p.DateCreatedGMT),
	})
}
