package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const swaggerPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Order Intake Gateway - API Docs</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/swagger/spec',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`

// DocsHandler serves the OpenAPI document loaded at startup and a Swagger UI page for it.
type DocsHandler struct {
	spec []byte
}

// NewDocsHandler creates a docs handler. A nil spec makes /swagger/spec return 404.
func NewDocsHandler(spec []byte) *DocsHandler {
	return &DocsHandler{spec: spec}
}

// Spec serves the raw OpenAPI YAML.
func (h *DocsHandler) Spec(c *gin.Context) {
	if len(h.spec) == 0 {
		c.String(http.StatusNotFound, "OpenAPI spec not loaded")
		return
	}
	c.Data(http.StatusOK, "application/x-yaml", h.spec)
}

// UI serves the Swagger UI page that loads /swagger/spec.
func (h *DocsHandler) UI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerPage))
}
