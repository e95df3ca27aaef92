package api

import (
	"github.com/gin-gonic/gin"

	"github.com/saudema/saudema/internal/middleware"
	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/pkg/logger"
)

// registerAdminRoutes mounts operator endpoints. The log level handler
// answers GET with the current level and accepts PUT {"level":"debug"}.
func registerAdminRoutes(api *gin.RouterGroup, requireAuth gin.HandlerFunc) {
	admin := api.Group("/admin", requireAuth, middleware.Authorize(models.RoleAdmin))
	level := gin.WrapH(logger.LevelHandler())
	admin.GET("/log-level", level)
	admin.PUT("/log-level", level)
}
