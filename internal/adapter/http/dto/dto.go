package dto

import (
	"time"

	"order-intake-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// AuthorizeRequest is the request body for starting an OAuth handshake.
type AuthorizeRequest struct {
	LocationID string `json:"location_id" binding:"required,uuid"`
	Shop       string `json:"shop,omitempty" binding:"omitempty,max=255,shop_domain"`
}

// AuthorizeResponse carries the platform consent URL.
type AuthorizeResponse struct {
	AuthorizeURL string `json:"authorize_url"`
}

// LinkRequest is the request body for linking a manual-method platform.
type LinkRequest struct {
	LocationID      string `json:"location_id" binding:"required,uuid"`
	StoreIdentifier string `json:"store_identifier" binding:"required,max=255,safe_url"`
}

// LinkResponse is shown once; the webhook secret is not retrievable later.
type LinkResponse struct {
	ConnectionID  string `json:"connection_id"`
	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `json:"webhook_secret"`
}

// ConnectionResponse describes an integration and its health.
type ConnectionResponse struct {
	ID                string     `json:"id"`
	LocationID        string     `json:"location_id"`
	Platform          string     `json:"platform"`
	Method            string     `json:"method"`
	Status            string     `json:"status"`
	Health            string     `json:"health"`
	StoreIdentifier   string     `json:"store_identifier,omitempty"`
	WebhookURL        string     `json:"webhook_url"`
	OrdersSynced      int64      `json:"orders_synced"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	LastError         *string    `json:"last_error,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// NewConnectionResponse maps a connection for the tenant API.
func NewConnectionResponse(c *domain.Connection, webhookURL string) ConnectionResponse {
	return ConnectionResponse{
		ID:                c.ID.String(),
		LocationID:        c.LocationID.String(),
		Platform:          string(c.Platform),
		Method:            string(c.Method),
		Status:            string(c.Status),
		Health:            c.Health(),
		StoreIdentifier:   c.StoreIdentifier,
		WebhookURL:        webhookURL,
		OrdersSynced:      c.OrdersSynced,
		ConsecutiveErrors: c.ConsecutiveErrs,
		LastSyncAt:        c.LastSyncAt,
		LastError:         c.LastError,
		CreatedAt:         c.CreatedAt,
	}
}

// WindowDTO is a look-back window.
type WindowDTO struct {
	Value int    `json:"value" binding:"required,gt=0"`
	Unit  string `json:"unit" binding:"required,oneof=minutes hours days weeks"`
}

func (w *WindowDTO) toDomain() domain.TimeWindow {
	if w == nil {
		return domain.TimeWindow{}
	}
	return domain.TimeWindow{Value: w.Value, Unit: domain.WindowUnit(w.Unit)}
}

// RuleDTO is one dedup rule in a rule set update.
type RuleDTO struct {
	ID       string     `json:"id,omitempty" binding:"omitempty,uuid"`
	Name     string     `json:"name" binding:"required,max=100"`
	Fields   []string   `json:"fields" binding:"dive,rule_field"`
	Operator string     `json:"operator" binding:"required,oneof=ALL ANY"`
	Window   *WindowDTO `json:"window,omitempty"`
	Active   bool       `json:"active"`
}

// RuleSetRequest replaces a tenant's dedup rules.
type RuleSetRequest struct {
	Enabled       bool       `json:"enabled"`
	DefaultWindow *WindowDTO `json:"default_window,omitempty"`
	Rules         []RuleDTO  `json:"rules" binding:"max=50,dive"`
}

// ToDomain converts the request into a rule set for tenantID.
func (r *RuleSetRequest) ToDomain(tenantID uuid.UUID) *domain.RuleSet {
	set := &domain.RuleSet{
		TenantID:      tenantID,
		Enabled:       r.Enabled,
		DefaultWindow: r.DefaultWindow.toDomain(),
		Rules:         make([]domain.DedupRule, 0, len(r.Rules)),
	}
	for i := range r.Rules {
		in := &r.Rules[i]
		TrimStrings(in)
		rule := domain.DedupRule{
			Name:     in.Name,
			Operator: domain.LogicalOperator(in.Operator),
			Window:   in.Window.toDomain(),
			Active:   in.Active,
			Fields:   make([]domain.RuleField, 0, len(in.Fields)),
		}
		if id, err := uuid.Parse(in.ID); err == nil {
			rule.ID = id
		}
		for _, f := range in.Fields {
			rule.Fields = append(rule.Fields, domain.RuleField(f))
		}
		set.Rules = append(set.Rules, rule)
	}
	return set
}

// AttemptListResponse wraps an attempt history page.
type AttemptListResponse struct {
	Items []domain.Attempt `json:"items"`
	Count int              `json:"count"`
}
