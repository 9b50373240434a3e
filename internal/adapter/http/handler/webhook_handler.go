package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"order-intake-gateway/internal/adapter/http/dto"
	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"
	"order-intake-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxLoggedDiscriminator = 128

// WebhookHandler receives storefront order notifications.
type WebhookHandler struct {
	ingestSvc ports.IngestService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(ingestSvc ports.IngestService) *WebhookHandler {
	return &WebhookHandler{ingestSvc: ingestSvc}
}

// Receive handles POST /webhooks/:platform/:discriminator.
// The raw body is passed through untouched; signatures are computed over it.
func (h *WebhookHandler) Receive(c *gin.Context) {
	req := webhookRequest(c)

	if !dto.ValidDiscriminator(req.Discriminator) {
		if len(req.Discriminator) > maxLoggedDiscriminator {
			req.Discriminator = req.Discriminator[:maxLoggedDiscriminator]
		}
		h.reject(c, req, ports.WebhookRejection{
			Status:     domain.AttemptStatusConnectionNotFound,
			HTTPStatus: http.StatusNotFound,
			Detail:     "malformed discriminator",
		})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	req.Body = body
	if err != nil {
		rej := ports.WebhookRejection{
			Status:     domain.AttemptStatusValidationFailed,
			HTTPStatus: http.StatusBadRequest,
			Detail:     "cannot read request body: " + err.Error(),
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			rej.HTTPStatus = http.StatusRequestEntityTooLarge
			rej.Detail = fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)
		}
		h.reject(c, req, rej)
		return
	}

	writeWebhookResult(c, h.ingestSvc.Ingest(c.Request.Context(), req))
}

// Throttled answers a rate-limited notification. The body is not read.
func (h *WebhookHandler) Throttled(c *gin.Context) {
	h.reject(c, webhookRequest(c), ports.WebhookRejection{
		Status:     domain.AttemptStatusFailed,
		HTTPStatus: http.StatusTooManyRequests,
		Retryable:  true,
		Detail:     "rate limit exceeded",
	})
}

func (h *WebhookHandler) reject(c *gin.Context, req ports.WebhookRequest, rej ports.WebhookRejection) {
	writeWebhookResult(c, h.ingestSvc.Reject(c.Request.Context(), req, rej))
}

func webhookRequest(c *gin.Context) ports.WebhookRequest {
	headers := make(map[string]string, len(c.Request.Header))
	for k, v := range c.Request.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return ports.WebhookRequest{
		Platform:      domain.PlatformType(strings.ToLower(c.Param("platform"))),
		Discriminator: c.Param("discriminator"),
		Headers:       headers,
		ReceivedAt:    time.Now().UTC(),
	}
}

func writeWebhookResult(c *gin.Context, result ports.WebhookResult) {
	response.Webhook(c, result.HTTPStatus, response.WebhookBody{
		Status:    result.Status,
		AttemptID: result.AttemptID.String(),
		Retryable: result.Retryable,
	})
}
