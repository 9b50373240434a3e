package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CtxAuditResourceID lets a handler name the resource an audited request touched.
const CtxAuditResourceID = "audit_resource_id"

// AuditLog records successful tenant configuration writes. Routes are
// matched on their registered pattern, so it must run inside the router.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var tenantID *uuid.UUID
		if id, ok := TenantID(c); ok {
			tenantID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			TenantID:     tenantID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxAuditResourceID),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/dedup-rules" && method == http.MethodPut:
		return domain.AuditActionUpdateRules, "dedup_rule_set"
	case route == "/api/v1/integrations/:platform/authorize" && method == http.MethodPost:
		return domain.AuditActionAuthorize, "integration_connection"
	case route == "/api/v1/integrations/:platform/link" && method == http.MethodPost:
		return domain.AuditActionLinkIntegration, "integration_connection"
	case route == "/api/v1/connections/:id/disconnect" && method == http.MethodPost:
		return domain.AuditActionDisconnect, "integration_connection"
	case route == "/integrations/:platform/callback" && method == http.MethodGet:
		return domain.AuditActionConnectIntegration, "integration_connection"
	}
	return "", ""
}
