package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/saudema/saudema/internal/auth"
	"github.com/saudema/saudema/internal/middleware"
	appErrors "github.com/saudema/saudema/pkg/errors"
	"github.com/saudema/saudema/pkg/logger"
	"github.com/saudema/saudema/pkg/response"
)

// SocialConfig controls where the browser lands after a social login.
type SocialConfig struct {
	ClientURL     string
	TokenRedirect bool
	Cookie        CookieConfig
}

// SocialHandler drives the Google and GitHub login redirects.
type SocialHandler struct {
	manager *iauth.SocialManager
	jwt     *iauth.JWTService
	cfg     SocialConfig
}

func NewSocialHandler(manager *iauth.SocialManager, jwt *iauth.JWTService, cfg SocialConfig) *SocialHandler {
	cfg.ClientURL = strings.TrimRight(strings.TrimSpace(cfg.ClientURL), "/")
	return &SocialHandler{manager: manager, jwt: jwt, cfg: cfg}
}

// Providers lists the enabled social providers.
func (h *SocialHandler) Providers(c *gin.Context) {
	response.Success(c, http.StatusOK, h.manager.Providers())
}

// Begin returns a handler redirecting to the provider's consent page.
func (h *SocialHandler) Begin(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		redirect, err := h.manager.Begin(provider)
		if err != nil {
			reason := failureReason(err)
			logger.WithModule("social").Warn("social login begin failed",
				zap.String("provider", provider),
				zap.String("reason", reason),
				zap.Error(err),
			)
			h.fail(c, reason)
			return
		}
		c.Redirect(http.StatusFound, redirect)
	}
}

// Callback returns the handler for the provider redirect back to the API.
func (h *SocialHandler) Callback(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("error") != "" {
			h.fail(c, "access_denied")
			return
		}

		result, err := h.manager.Complete(requestContext(c), provider, c.Query("state"), c.Query("code"), iauth.SessionMetadata{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		if err != nil {
			reason := failureReason(err)
			logger.WithModule("social").Warn("social login failed",
				zap.String("provider", provider),
				zap.String("reason", reason),
				zap.Error(err),
			)
			h.fail(c, reason)
			return
		}

		setSessionCookie(c, h.cfg.Cookie, result.SessionToken)

		if h.cfg.TokenRedirect && h.jwt != nil {
			token, err := h.jwt.GenerateAccessToken(result.User.ID, result.User.Role)
			if err != nil {
				logger.WithModule("social").Error("issue token after social login", zap.Error(err))
				h.fail(c, "server_error")
				return
			}
			c.Redirect(http.StatusFound, h.cfg.ClientURL+"/oauth-success?token="+url.QueryEscape(token))
			return
		}
		c.Redirect(http.StatusFound, h.cfg.ClientURL+"/")
	}
}

// CurrentUser returns the account attached to the browser session.
func (h *SocialHandler) CurrentUser(c *gin.Context) {
	user := middleware.SessionUser(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized.WithMessage("Utilizador não autenticado via sessão"))
		return
	}
	response.Success(c, http.StatusOK, toUserPayload(user))
}

func (h *SocialHandler) fail(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound, h.cfg.ClientURL+"/?authError="+url.QueryEscape(reason))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, iauth.ErrStateInvalid),
		errors.Is(err, iauth.ErrStateExpired),
		errors.Is(err, iauth.ErrProviderMismatch):
		return "invalid_state"
	case errors.Is(err, iauth.ErrExchangeFailed),
		errors.Is(err, iauth.ErrSubjectRequired):
		return "authentication_failed"
	case errors.Is(err, iauth.ErrUnknownProvider):
		return "provider_unavailable"
	default:
		return "server_error"
	}
}
