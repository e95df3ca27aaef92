package api

import (
	"github.com/gin-gonic/gin"

	"github.com/saudema/saudema/internal/handlers"
	"github.com/saudema/saudema/internal/middleware"
	"github.com/saudema/saudema/internal/models"
)

func registerPlacesRoutes(api *gin.RouterGroup, handler *handlers.PlacesHandler, requireAuth gin.HandlerFunc, withStats bool) {
	api.GET("/municipios", handler.Municipios)
	api.GET("/municipios/status", handler.MunicipiosStatus)

	units := api.Group("/health-units")
	units.GET("", handler.HealthUnits)
	if withStats {
		units.GET("/stats", requireAuth, middleware.Authorize(models.RoleAdmin), handler.SearchStats)
	}
}
