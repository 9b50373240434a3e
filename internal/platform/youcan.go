package platform

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"order-intake-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
)

// YouCanSignatureHeader carries hex(HMAC-SHA256(app secret, body)).
const YouCanSignatureHeader = "X-YouCan-Signature"

// YouCan handles order.create webhooks from YouCan stores. Its variants often
// carry only product ids, leaving names and SKUs to a catalog lookup.
type YouCan struct{}

func (YouCan) Type() domain.PlatformType { return domain.PlatformYouCan }

func (YouCan) Verify(body []byte, headers map[string]string, secret string) Verification {
	v := Verification{Method: "hmac-sha256-hex", Provided: header(headers, YouCanSignatureHeader)}
	if v.Provided == "" || secret == "" {
		return v
	}
	provided, err := hex.DecodeString(strings.ToLower(v.Provided))
	if err != nil {
		return v
	}
	v.Valid = hmacEqual(provided, computeHMAC(secret, body))
	return v
}

type youcanAddress struct {
	FirstLine   string `json:"first_line"`
	SecondLine  string `json:"second_line"`
	City        string `json:"city"`
	Region      string `json:"region"`
	ZipCode     string `json:"zip_code"`
	CountryCode string `json:"country_code"`
}

type youcanCustomer struct {
	FullName  string `json:"full_name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

type youcanProduct struct {
	Name string `json:"name"`
	SKU  string `json:"sku"`
}

type youcanVariant struct {
	ProductID string          `json:"product_id" validate:"required"`
	VariantID string          `json:"variant_id"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
	Price     decimal.Decimal `json:"price"`
	Product   *youcanProduct  `json:"product"`
}

type youcanOrder struct {
	ID        string              `json:"id" validate:"required,max=128"`
	Ref       string              `json:"ref"`
	Currency  string              `json:"currency"`
	CreatedAt string              `json:"created_at"`
	Total     decimal.NullDecimal `json:"total"`
	Customer  youcanCustomer      `json:"customer"`
	Shipping  struct {
		Address youcanAddress `json:"address"`
	} `json:"shipping"`
	Variants []youcanVariant `json:"variants" validate:"required,min=1,dive"`
}

func (y YouCan) Normalize(body []byte) (*domain.CandidateOrder, error) {
	var p youcanOrder
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, decodeError(y.Type(), err)
	}
	if err := validatePayload(y.Type(), &p); err != nil {
		return nil, err
	}

	items := make([]domain.LineItem, 0, len(p.Variants))
	for _, v := range p.Variants {
		item := domain.LineItem{
			ProductID: v.ProductID,
			Quantity:  v.Quantity,
			UnitPrice: v.Price,
		}
		if v.Product != nil {
			item.ProductName = strings.TrimSpace(v.Product.Name)
			item.SKU = strings.TrimSpace(v.Product.SKU)
		}
		items = append(items, item)
	}

	addr := p.Shipping.Address
	return checkTotal(y.Type(), &domain.CandidateOrder{
		Platform:        y.Type(),
		ExternalOrderID: p.ID,
		Customer: domain.Customer{
			Name:  firstNonEmpty(p.Customer.FullName, joinName(p.Customer.FirstName, p.Customer.LastName)),
			Phone: domain.NormalizePhone(p.Customer.Phone),
			Email: p.Customer.Email,
			Address: domain.Address{
				Line1:      addr.FirstLine,
				Line2:      addr.SecondLine,
				City:       addr.City,
				Region:     addr.Region,
				PostalCode: addr.ZipCode,
				Country:    addr.CountryCode,
			},
		},
		Items:    items,
		Total:    totalOrSum(p.Total, items),
		Currency: strings.ToUpper(p.Currency),
		PlacedAt: parseTime(p.CreatedAt),
	})
}
