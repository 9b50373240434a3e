// Package platform holds the closed set of storefront platforms a webhook can
// come from. Each one knows how its notifications are signed and how its
// order payload maps to the canonical candidate order.
package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"order-intake-gateway/internal/core/domain"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Verification is the outcome of a signature check. It is data, not an error.
type Verification struct {
	Valid    bool
	Method   string
	Provided string
}

// Platform is one storefront platform variant.
type Platform interface {
	Type() domain.PlatformType
	// Verify checks the notification signature against secret. It never fails;
	// a missing or malformed header yields Valid=false.
	Verify(body []byte, headers map[string]string, secret string) Verification
	// Normalize maps the raw payload to a candidate order. It has no side effects.
	Normalize(body []byte) (*domain.CandidateOrder, error)
}

// NormalizationError describes why a payload could not be normalized.
type NormalizationError struct {
	Platform domain.PlatformType
	Field    string
	Reason   string
}

func (e *NormalizationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s payload: %s", e.Platform, e.Reason)
	}
	return fmt.Sprintf("%s payload: %s: %s", e.Platform, e.Field, e.Reason)
}

// IsNormalizationError reports whether err carries a *NormalizationError.
func IsNormalizationError(err error) bool {
	var ne *NormalizationError
	return errors.As(err, &ne)
}

// Registry resolves a platform type to its implementation.
type Registry struct {
	platforms map[domain.PlatformType]Platform
}

// NewRegistry builds a registry from the given platforms.
func NewRegistry(platforms ...Platform) *Registry {
	r := &Registry{platforms: make(map[domain.PlatformType]Platform, len(platforms))}
	for _, p := range platforms {
		r.platforms[p.Type()] = p
	}
	return r
}

// Default returns a registry with every supported platform.
func Default() *Registry {
	return NewRegistry(Shopify{}, WooCommerce{}, YouCan{})
}

// Get returns the platform for t.
func (r *Registry) Get(t domain.PlatformType) (Platform, bool) {
	p, ok := r.platforms[t]
	return p, ok
}

// Types lists the registered platform types in name order.
func (r *Registry) Types() []domain.PlatformType {
	out := make([]domain.PlatformType, 0, len(r.platforms))
	for t := range r.platforms {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// --- shared helpers ---

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validatePayload runs struct validation and reports the first failing field.
func validatePayload(t domain.PlatformType, payload interface{}) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		return &NormalizationError{Platform: t, Field: field, Reason: describeTag(fe)}
	}
	return &NormalizationError{Platform: t, Reason: err.Error()}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must have at least " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag()
	}
}

func decodeError(t domain.PlatformType, err error) error {
	return &NormalizationError{Platform: t, Reason: "malformed JSON: " + err.Error()}
}

// header looks up name case-insensitively.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func computeHMAC(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTime accepts the timestamp shapes platforms send; zone-less values are UTC.
// Unparseable or empty input yields nil.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func hmacEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// maxOrderTotal is exclusive.
var maxOrderTotal = decimal.New(1, 15)

// checkTotal rejects totals the orders table cannot hold.
func checkTotal(t domain.PlatformType, c *domain.CandidateOrder) (*domain.CandidateOrder, error) {
	if c.Total.IsNegative() {
		return nil, &NormalizationError{Platform: t, Field: "total", Reason: "must not be negative"}
	}
	if c.Total.GreaterThanOrEqual(maxOrderTotal) {
		return nil, &NormalizationError{Platform: t, Field: "total", Reason: "must be below " + maxOrderTotal.String()}
	}
	return c, nil
}

// totalOrSum uses the payload total, or the sum of line items when absent.
func totalOrSum(total decimal.NullDecimal, items []domain.LineItem) decimal.Decimal {
	if total.Valid {
		return total.Decimal
	}
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}
