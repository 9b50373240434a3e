package dto

import (
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"order-intake-gateway/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)
	shopDomainRe = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*(\.[a-z0-9][a-z0-9\-]*)+$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("safe_url", validateSafeURL)
		_ = v.RegisterValidation("shop_domain", validateShopDomain)
		_ = v.RegisterValidation("rule_field", validateRuleField)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateSafeURL accepts only http/https URLs.
func validateSafeURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true // optional field; use "required" tag to enforce presence
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// validateShopDomain accepts a bare lower-case host name such as demo.myshopify.com.
func validateShopDomain(fl validator.FieldLevel) bool {
	return shopDomainRe.MatchString(fl.Field().String())
}

func validateRuleField(fl validator.FieldLevel) bool {
	return domain.RuleField(fl.Field().String()).IsValid()
}

// ValidDiscriminator reports whether a webhook path discriminator is well formed.
func ValidDiscriminator(s string) bool {
	return len(s) <= 128 && safeStringRe.MatchString(s)
}

// TrimStrings trims surrounding whitespace from every exported string field
// (including *string) of a struct pointer. Values are stored as typed and
// escaped only by the encoder that renders them.
func TrimStrings(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	trimFields(rv.Elem())
}

func trimFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(strings.TrimSpace(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			if elem := f.Elem(); elem.Kind() == reflect.String {
				elem.SetString(strings.TrimSpace(elem.String()))
			}
		}
	}
}
