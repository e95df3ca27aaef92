package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/saudema/saudema/internal/app"
	iauth "github.com/saudema/saudema/internal/auth"
	"github.com/saudema/saudema/internal/auth/providers"
	"github.com/saudema/saudema/internal/handlers"
	"github.com/saudema/saudema/internal/middleware"
	"github.com/saudema/saudema/internal/monitoring"
	"github.com/saudema/saudema/internal/municipios"
)

const defaultSessionCookie = "saudema.sid"

// Services bundles the collaborators the HTTP layer is built from.
type Services struct {
	JWT        *iauth.JWTService
	Sessions   *iauth.SessionService
	Local      *providers.LocalProvider
	Resets     *iauth.PasswordResetService
	Social     *iauth.SocialManager
	Municipios handlers.MunicipioSource
	Snapshots  municipios.SnapshotReader
	Search     handlers.HealthUnitSearcher
	Stats      handlers.SearchStatsSource
	Health     *monitoring.HealthManager
	RateStore  middleware.RateStore
}

func (s Services) validate() error {
	switch {
	case s.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case s.Sessions == nil:
		return fmt.Errorf("session service must be provided")
	case s.Local == nil:
		return fmt.Errorf("local provider must be provided")
	case s.Resets == nil:
		return fmt.Errorf("password reset service must be provided")
	case s.Social == nil:
		return fmt.Errorf("social manager must be provided")
	case s.Municipios == nil:
		return fmt.Errorf("municipio source must be provided")
	case s.Search == nil:
		return fmt.Errorf("health unit search must be provided")
	case s.Health == nil:
		return fmt.Errorf("health manager must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(cfg *app.Config, svc Services) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if err := svc.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics("/metrics", "/health/live"))
	r.Use(middleware.SecurityHeaders(cfg.Auth.Session.Secure))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins))

	cookie := handlers.CookieConfig{
		Name:   cookieName(cfg),
		Secure: cfg.Auth.Session.Secure,
		MaxAge: int(svc.Sessions.TTL().Seconds()),
	}
	r.Use(middleware.LoadSession(svc.Sessions, cookie.Name))

	registerHealthRoutes(r, handlers.NewHealthHandler(svc.Health))

	authHandler := handlers.NewAuthHandler(svc.Local, svc.JWT, svc.Sessions, svc.Resets, cookie)
	socialHandler := handlers.NewSocialHandler(svc.Social, svc.JWT, handlers.SocialConfig{
		ClientURL:     cfg.Server.ClientURL,
		TokenRedirect: cfg.Auth.Social.TokenRedirect,
		Cookie:        cookie,
	})

	var limiter gin.HandlerFunc
	if cfg.RateLimit.Enabled && svc.RateStore != nil {
		limiter = middleware.RateLimit(svc.RateStore, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}

	requireAuth := middleware.Auth(svc.JWT, svc.Local.FindByID)
	api := r.Group("/api")
	registerAuthRoutes(api, authRouteDeps{
		Auth:        authHandler,
		Social:      socialHandler,
		RequireAuth: requireAuth,
		Limiter:     limiter,
	})

	placesHandler := handlers.NewPlacesHandler(svc.Municipios, svc.Search, svc.Stats, svc.Snapshots)
	registerPlacesRoutes(api, placesHandler, requireAuth, svc.Stats != nil)
	registerAdminRoutes(api, requireAuth)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func cookieName(cfg *app.Config) string {
	if name := strings.TrimSpace(cfg.Auth.Session.CookieName); name != "" {
		return name
	}
	return defaultSessionCookie
}
