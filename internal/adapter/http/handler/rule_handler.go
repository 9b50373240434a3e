package handler

import (
	"order-intake-gateway/internal/adapter/http/dto"
	"order-intake-gateway/internal/adapter/http/middleware"
	"order-intake-gateway/internal/core/ports"
	"order-intake-gateway/pkg/apperror"
	"order-intake-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// RuleHandler serves a tenant's duplicate-detection rules.
type RuleHandler struct {
	ruleSvc ports.RuleService
}

// NewRuleHandler creates a new RuleHandler.
func NewRuleHandler(ruleSvc ports.RuleService) *RuleHandler {
	return &RuleHandler{ruleSvc: ruleSvc}
}

// Get handles GET /api/v1/dedup-rules.
func (h *RuleHandler) Get(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	set, err := h.ruleSvc.Get(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, set)
}

// Replace handles PUT /api/v1/dedup-rules. The whole rule set is replaced.
func (h *RuleHandler) Replace(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.RuleSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	set, err := h.ruleSvc.Replace(c.Request.Context(), req.ToDomain(tenantID))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, tenantID.String())
	response.OK(c, set)
}
