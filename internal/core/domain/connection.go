package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlatformType identifies the storefront platform that pushed a notification.
type PlatformType string

const (
	PlatformShopify     PlatformType = "shopify"
	PlatformWooCommerce PlatformType = "woocommerce"
	PlatformYouCan      PlatformType = "youcan"
)

// IsValid reports whether p is one of the supported platforms.
func (p PlatformType) IsValid() bool {
	switch p {
	case PlatformShopify, PlatformWooCommerce, PlatformYouCan:
		return true
	}
	return false
}

// ConnectionMethod is how an integration connection was established.
type ConnectionMethod string

const (
	ConnectionMethodOAuth  ConnectionMethod = "oauth"
	ConnectionMethodManual ConnectionMethod = "manual"
)

// DefaultMethod returns how connections to p are established. WooCommerce
// sites are linked manually; the others complete an OAuth handshake.
func (p PlatformType) DefaultMethod() ConnectionMethod {
	if p == PlatformWooCommerce {
		return ConnectionMethodManual
	}
	return ConnectionMethodOAuth
}

// ConnectionStatus is the lifecycle state of an integration connection.
type ConnectionStatus string

const (
	ConnectionStatusPending      ConnectionStatus = "pending"
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
	ConnectionStatusError        ConnectionStatus = "error"
)

// Connection is one integration record per (tenant, location, platform).
// Rows are never deleted; disconnecting clears credentials and flips the status.
type Connection struct {
	ID              uuid.UUID        `json:"id"`
	TenantID        uuid.UUID        `json:"tenant_id"`
	LocationID      uuid.UUID        `json:"location_id"`
	Platform        PlatformType     `json:"platform"`
	Method          ConnectionMethod `json:"method"`
	Status          ConnectionStatus `json:"status"`
	WebhookKey      string           `json:"webhook_key"`
	StoreIdentifier string           `json:"store_identifier,omitempty"`
	AccessTokenEnc  string           `json:"-"`
	RefreshTokenEnc string           `json:"-"`
	TokenExpiresAt  *time.Time       `json:"token_expires_at,omitempty"`
	LastSyncAt      *time.Time       `json:"last_sync_at,omitempty"`
	OrdersSynced    int64            `json:"orders_synced"`
	ConsecutiveErrs int              `json:"consecutive_errors"`
	LastError       *string          `json:"last_error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// IsConnected returns true if webhooks for this connection may be admitted.
func (c *Connection) IsConnected() bool {
	return c.Status == ConnectionStatusConnected
}

// TokenExpired reports whether the stored access token has passed its expiry.
// Connections without an expiry never expire.
func (c *Connection) TokenExpired(now time.Time) bool {
	return c.TokenExpiresAt != nil && !now.Before(*c.TokenExpiresAt)
}

// Health summarizes the connection for tenant-facing status indicators.
func (c *Connection) Health() string {
	switch {
	case c.Status != ConnectionStatusConnected:
		return string(c.Status)
	case c.ConsecutiveErrs >= 5:
		return "failing"
	case c.ConsecutiveErrs > 0:
		return "degraded"
	default:
		return "healthy"
	}
}

// SyncCounters is the best-effort follow-up applied after an admission or a failure.
type SyncCounters struct {
	ConnectionID uuid.UUID
	At           time.Time
	Success      bool
	Error        string
}
