package handler

import (
	"strconv"
	"strings"

	"order-intake-gateway/internal/adapter/http/dto"
	"order-intake-gateway/internal/adapter/http/middleware"
	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"
	"order-intake-gateway/pkg/apperror"
	"order-intake-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AttemptHandler exposes the webhook attempt history.
type AttemptHandler struct {
	ledger ports.AttemptLedger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(ledger ports.AttemptLedger) *AttemptHandler {
	return &AttemptHandler{ledger: ledger}
}

// List handles GET /api/v1/attempts?connection_id&platform&status&limit.
func (h *AttemptHandler) List(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	filter := domain.AttemptFilter{TenantID: tenantID}
	if raw := c.Query("connection_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.Validation("connection_id must be a UUID"))
			return
		}
		filter.ConnectionID = &id
	}
	if raw := c.Query("platform"); raw != "" {
		p := domain.PlatformType(strings.ToLower(raw))
		if !p.IsValid() {
			response.Error(c, apperror.Validation("platform must be one of shopify, woocommerce, youcan"))
			return
		}
		filter.Platform = &p
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.AttemptStatus(raw)
		filter.Status = &status
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			response.Error(c, apperror.Validation("limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	attempts, err := h.ledger.Search(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	response.OK(c, dto.AttemptListResponse{Items: attempts, Count: len(attempts)})
}

// Get handles GET /api/v1/attempts/:id. Attempts of other tenants, and
// attempts never attributed to a tenant, are reported as not found.
func (h *AttemptHandler) Get(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound("Attempt"))
		return
	}

	attempt, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}
	if attempt == nil || attempt.TenantID == nil || *attempt.TenantID != tenantID {
		response.Error(c, apperror.ErrNotFound("Attempt"))
		return
	}
	response.OK(c, attempt)
}
