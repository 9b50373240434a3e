package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents a tenant configuration change.
type AuditAction string

const (
	AuditActionUpdateRules        AuditAction = "UPDATE_DEDUP_RULES"
	AuditActionAuthorize          AuditAction = "AUTHORIZE_INTEGRATION"
	AuditActionLinkIntegration    AuditAction = "LINK_INTEGRATION"
	AuditActionDisconnect         AuditAction = "DISCONNECT_INTEGRATION"
	AuditActionConnectIntegration AuditAction = "CONNECT_INTEGRATION"
)

// AuditLog records a single audited action.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	TenantID     *uuid.UUID  `json:"tenant_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
