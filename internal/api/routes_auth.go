package api

import (
	"github.com/gin-gonic/gin"

	"github.com/saudema/saudema/internal/handlers"
	"github.com/saudema/saudema/internal/middleware"
	"github.com/saudema/saudema/internal/models"
)

type authRouteDeps struct {
	Auth        *handlers.AuthHandler
	Social      *handlers.SocialHandler
	RequireAuth gin.HandlerFunc
	Limiter     gin.HandlerFunc
}

func registerAuthRoutes(api *gin.RouterGroup, deps authRouteDeps) {
	mutations := []gin.HandlerFunc{}
	if deps.Limiter != nil {
		mutations = append(mutations, deps.Limiter)
	}
	with := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, mutations...), h)
	}

	auth := api.Group("/auth")
	{
		auth.POST("/register", with(deps.Auth.Register)...)
		auth.POST("/login", with(deps.Auth.Login)...)
		auth.POST("/forgot-password", with(deps.Auth.ForgotPassword)...)
		auth.POST("/reset-password", with(deps.Auth.ResetPassword)...)
		auth.GET("/logout", deps.Auth.Logout)

		auth.GET("/profile", deps.RequireAuth, deps.Auth.Profile)
		auth.GET("/admin", deps.RequireAuth, middleware.Authorize(models.RoleAdmin), deps.Auth.Admin)

		auth.GET("/providers", deps.Social.Providers)
		auth.GET("/google", deps.Social.Begin("google"))
		auth.GET("/google/callback", deps.Social.Callback("google"))
		auth.GET("/github", deps.Social.Begin("github"))
		auth.GET("/github/callback", deps.Social.Callback("github"))
	}

	api.GET("/user", deps.Social.CurrentUser)
}
