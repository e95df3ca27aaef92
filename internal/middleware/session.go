package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/saudema/saudema/internal/auth"
	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/pkg/errors"
	"github.com/saudema/saudema/pkg/logger"
	"github.com/saudema/saudema/pkg/response"
)

const CtxSessionUserKey = "sessionUser"

var errSessionRequired = errors.ErrUnauthorized.WithMessage("Utilizador não autenticado via sessão")

// LoadSession attaches the browser session named by cookieName, when one is
// present and active. It never rejects a request.
func LoadSession(sessions *iauth.SessionService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}

		user, session, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			logger.WithModule("session").Debug("ignoring session cookie", zap.Error(err))
			c.Next()
			return
		}

		c.Set(CtxSessionUserKey, user)
		c.Set(CtxSessionKey, session)
		c.Next()
	}
}

// RequireSession rejects requests without a session loaded by LoadSession.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if SessionUser(c) == nil {
			response.Abort(c, errSessionRequired)
			return
		}
		c.Next()
	}
}

// SessionUser returns the user attached by LoadSession, or nil.
func SessionUser(c *gin.Context) *models.User {
	v, ok := c.Get(CtxSessionUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
