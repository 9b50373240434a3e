package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RuleField is a comparable order attribute a dedup rule can match on.
type RuleField string

const (
	FieldCustomerName    RuleField = "customer_name"
	FieldCustomerPhone   RuleField = "customer_phone"
	FieldCustomerAddress RuleField = "customer_address"
	FieldProductID       RuleField = "product_id"
	FieldProductName     RuleField = "product_name"
	FieldProductCode     RuleField = "product_code"
	FieldOrderTotal      RuleField = "order_total"
	FieldLocation        RuleField = "location"
)

// IsValid reports whether f is a known rule field.
func (f RuleField) IsValid() bool {
	switch f {
	case FieldCustomerName, FieldCustomerPhone, FieldCustomerAddress,
		FieldProductID, FieldProductName, FieldProductCode,
		FieldOrderTotal, FieldLocation:
		return true
	}
	return false
}

// LogicalOperator combines per-field matches.
type LogicalOperator string

const (
	OperatorAll LogicalOperator = "ALL"
	OperatorAny LogicalOperator = "ANY"
)

// WindowUnit is the unit of a dedup time window.
type WindowUnit string

const (
	UnitMinutes WindowUnit = "minutes"
	UnitHours   WindowUnit = "hours"
	UnitDays    WindowUnit = "days"
	UnitWeeks   WindowUnit = "weeks"
)

// TimeWindow is a look-back period expressed as value + unit.
type TimeWindow struct {
	Value int        `json:"value"`
	Unit  WindowUnit `json:"unit"`
}

// Duration converts the window to a time.Duration. Unknown units yield 0.
func (w TimeWindow) Duration() time.Duration {
	var unit time.Duration
	switch w.Unit {
	case UnitMinutes:
		unit = time.Minute
	case UnitHours:
		unit = time.Hour
	case UnitDays:
		unit = 24 * time.Hour
	case UnitWeeks:
		unit = 7 * 24 * time.Hour
	default:
		return 0
	}
	return time.Duration(w.Value) * unit
}

// IsZero reports whether the window was left unset.
func (w TimeWindow) IsZero() bool {
	return w.Value == 0 && w.Unit == ""
}

// DedupRule is one named duplicate-detection rule.
type DedupRule struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Fields   []RuleField     `json:"fields"`
	Operator LogicalOperator `json:"operator"`
	Window   TimeWindow      `json:"window"`
	Active   bool            `json:"active"`
}

// EffectiveWindow returns the rule's window, falling back to the set default.
func (r DedupRule) EffectiveWindow(def TimeWindow) TimeWindow {
	if r.Window.IsZero() {
		return def
	}
	return r.Window
}

// HasField reports whether the rule compares f.
func (r DedupRule) HasField(f RuleField) bool {
	for _, x := range r.Fields {
		if x == f {
			return true
		}
	}
	return false
}

// RuleSet is a tenant's ordered duplicate-detection configuration.
type RuleSet struct {
	TenantID      uuid.UUID   `json:"tenant_id"`
	Enabled       bool        `json:"enabled"`
	DefaultWindow TimeWindow  `json:"default_window"`
	Rules         []DedupRule `json:"rules"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ActiveRules returns active rules in stored order.
func (s *RuleSet) ActiveRules() []DedupRule {
	if s == nil || !s.Enabled {
		return nil
	}
	out := make([]DedupRule, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks the rule set invariants before it is stored.
func (s *RuleSet) Validate() error {
	if !s.DefaultWindow.IsZero() && s.DefaultWindow.Duration() <= 0 {
		return fmt.Errorf("default window must be positive with a known unit")
	}
	for i, r := range s.Rules {
		if r.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if r.Operator != OperatorAll && r.Operator != OperatorAny {
			return fmt.Errorf("rule %q: operator must be ALL or ANY", r.Name)
		}
		for _, f := range r.Fields {
			if !f.IsValid() {
				return fmt.Errorf("rule %q: unknown field %q", r.Name, f)
			}
		}
		if !r.Active {
			continue
		}
		if len(r.Fields) == 0 {
			return fmt.Errorf("rule %q: active rule needs at least one field", r.Name)
		}
		if r.EffectiveWindow(s.DefaultWindow).Duration() <= 0 {
			return fmt.Errorf("rule %q: time window must be positive", r.Name)
		}
	}
	return nil
}
