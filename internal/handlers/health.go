package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saudema/saudema/internal/monitoring"
)

// Root is the landing payload served on GET /.
func Root() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "API saudema está no ar!",
			"docs":    "/api-docs",
		})
	}
}

// HealthHandler renders the probe reports of a HealthManager.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Health runs every registered probe.
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.manager.Evaluate(requestContext(c))
	c.JSON(report.HTTPStatus(), report)
}

func (h *HealthHandler) Live(c *gin.Context) {
	report := h.manager.EvaluateLiveness(requestContext(c))
	c.JSON(report.HTTPStatus(), report)
}

func (h *HealthHandler) Ready(c *gin.Context) {
	report := h.manager.EvaluateReadiness(requestContext(c))
	c.JSON(report.HTTPStatus(), report)
}
