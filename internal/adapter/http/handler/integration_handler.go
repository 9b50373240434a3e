package handler

import (
	"net/http"
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

// IntegrationHandler manages a tenant's platform connections.
type IntegrationHandler struct {
	connSvc ports.ConnectionService
}

// NewIntegrationHandler creates a new IntegrationHandler.
func NewIntegrationHandler(connSvc ports.ConnectionService) *IntegrationHandler {
	return &IntegrationHandler{connSvc: connSvc}
}

func platformParam(c *gin.Context) (domain.PlatformType, bool) {
	p := domain.PlatformType(strings.ToLower(c.Param("platform")))
	if !p.IsValid() {
		response.Error(c, apperror.ErrUnsupportedPlatform(c.Param("platform")))
		return "", false
	}
	return p, true
}

// List handles GET /api/v1/integrations.
func (h *IntegrationHandler) List(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	conns, err := h.connSvc.List(c.Request.Context(), tenantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.ConnectionResponse, 0, len(conns))
	for i := range conns {
		items = append(items, dto.NewConnectionResponse(&conns[i], h.connSvc.WebhookURL(&conns[i])))
	}
	response.OK(c, items)
}

// Authorize handles POST /api/v1/integrations/:platform/authorize.
func (h *IntegrationHandler) Authorize(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	platform, ok := platformParam(c)
	if !ok {
		return
	}

	var req dto.AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	url, err := h.connSvc.Authorize(c.Request.Context(), ports.AuthorizeRequest{
		TenantID:   tenantID,
		LocationID: uuid.MustParse(req.LocationID),
		Platform:   platform,
		Shop:       req.Shop,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.AuthorizeResponse{AuthorizeURL: url})
}

// Callback handles GET /integrations/:platform/callback, the OAuth redirect.
// The signed state identifies the tenant; no bearer token is involved.
func (h *IntegrationHandler) Callback(c *gin.Context) {
	platform, ok := platformParam(c)
	if !ok {
		return
	}
	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		if e := c.Query("error"); e != "" {
			response.Error(c, apperror.Validation("authorization denied: "+e))
			return
		}
		response.Error(c, apperror.Validation("code and state are required"))
		return
	}

	conn, err := h.connSvc.CompleteOAuth(c.Request.Context(), ports.CallbackRequest{
		Platform: platform,
		Code:     code,
		State:    state,
		Shop:     c.Query("shop"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxTenantID, conn.TenantID)
	c.Set(middleware.CtxAuditResourceID, conn.ID.String())
	response.OK(c, dto.NewConnectionResponse(conn, h.connSvc.WebhookURL(conn)))
}

// Link handles POST /api/v1/integrations/:platform/link.
func (h *IntegrationHandler) Link(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	platform, ok := platformParam(c)
	if !ok {
		return
	}

	var req dto.LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	res, err := h.connSvc.Link(c.Request.Context(), ports.LinkRequest{
		TenantID:        tenantID,
		LocationID:      uuid.MustParse(req.LocationID),
		Platform:        platform,
		StoreIdentifier: strings.TrimRight(strings.TrimSpace(req.StoreIdentifier), "/"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, res.Connection.ID.String())
	response.Created(c, dto.LinkResponse{
		ConnectionID:  res.Connection.ID.String(),
		WebhookURL:    res.WebhookURL,
		WebhookSecret: res.WebhookSecret,
	})
}

// Disconnect handles POST /api/v1/connections/:id/disconnect.
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	connID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrNotFound("Connection"))
		return
	}

	if err := h.connSvc.Disconnect(c.Request.Context(), tenantID, connID); err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, connID.String())
	c.Status(http.StatusNoContent)
}
