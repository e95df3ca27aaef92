package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/saudema/saudema/internal/auth"
	"github.com/saudema/saudema/internal/models"
	"github.com/saudema/saudema/pkg/errors"
	"github.com/saudema/saudema/pkg/response"
)

const (
	CtxClaimsKey  = "authClaims"
	CtxUserIDKey  = "userID"
	CtxUserKey    = "authUser"
	CtxSessionKey = "session"
)

// UserLoader resolves the account named by a token.
type UserLoader func(ctx context.Context, id string) (*models.User, error)

// Auth enforces bearer JWT authentication. The token must name an existing
// user, which is stored in the context under CtxUserKey.
func Auth(jwt *iauth.JWTService, loadUser UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Abort(c, errors.ErrMissingToken)
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// all validation failures are a plain 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, errors.ErrInvalidToken)
			return
		}

		user, err := loadUser(c.Request.Context(), claims.UserID)
		if err != nil || user == nil {
			response.Abort(c, errors.ErrInvalidToken)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, user.ID)
		c.Set(CtxUserKey, user)

		c.Next()
	}
}

// Authorize lets the request through when the authenticated user holds one
// of roles. It must run after Auth.
func Authorize(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Abort(c, errors.ErrUnauthorized)
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		response.Abort(c, errors.ErrForbidden.WithMessage(
			fmt.Sprintf("Usuário com papel '%s' não tem permissão para acessar esta rota", user.Role),
		))
	}
}

// CurrentUser returns the user set by Auth, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
