package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/saudema/saudema/internal/auth"
	"github.com/saudema/saudema/internal/auth/providers"
	"github.com/saudema/saudema/internal/middleware"
	"github.com/saudema/saudema/internal/models"
	appErrors "github.com/saudema/saudema/pkg/errors"
	"github.com/saudema/saudema/pkg/logger"
	"github.com/saudema/saudema/pkg/metrics"
	"github.com/saudema/saudema/pkg/response"
	appValidator "github.com/saudema/saudema/pkg/validator"
)

const (
	msgRequiredFields      = "Por favor, preencha todos os campos obrigatórios."
	msgLoginRequired       = "Por favor, preencha o e-mail e a senha."
	msgInvalidEmail        = "Por favor, use um e-mail válido."
	msgEmailTaken          = "Usuário com este e-mail já existe."
	msgResetRequired       = "Token e nova senha são obrigatórios."
	msgResetInvalid        = "Token inválido ou expirado."
	msgUserNotFound        = "Usuário não encontrado."
	msgForgotPasswordSent  = "Se o e-mail estiver cadastrado, um link de recuperação será enviado."
	msgForgotPasswordError = "Erro ao processar sua solicitação. Tente novamente mais tarde."
	msgPasswordReset       = "Senha redefinida com sucesso!"
	msgLogout              = "Logout bem-sucedido."
)

// CookieConfig describes the browser session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge int
}

// AuthHandler serves the internal account flows: register, login, profile,
// logout and password recovery.
type AuthHandler struct {
	local    *providers.LocalProvider
	jwt      *iauth.JWTService
	sessions *iauth.SessionService
	resets   *iauth.PasswordResetService
	cookie   CookieConfig
}

func NewAuthHandler(local *providers.LocalProvider, jwt *iauth.JWTService, sessions *iauth.SessionService, resets *iauth.PasswordResetService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{local: local, jwt: jwt, sessions: sessions, resets: resets, cookie: cookie}
}

type registerRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,notblank"`
}

func (r *registerRequest) trim() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req, tagMessage{"required", msgRequiredFields}, tagMessage{"notblank", msgRequiredFields}) {
		return
	}
	if msg := iauth.CheckPasswordStrength(req.Password); msg != "" {
		response.Error(c, appErrors.NewBadRequest(msg))
		return
	}
	if !appValidator.IsEmailAddress(req.Email) {
		response.Error(c, appErrors.NewBadRequest(msgInvalidEmail))
		return
	}

	user, err := h.local.Register(requestContext(c), providers.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if errors.Is(err, providers.ErrEmailTaken) {
		response.Error(c, appErrors.ErrConflict.WithMessage(msgEmailTaken))
		return
	}
	if err != nil {
		logger.WithModule("auth").Error("register failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	payload, err := h.withToken(user)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusCreated, payload)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,notblank"`
}

func (r *loginRequest) trim() { r.Email = strings.TrimSpace(r.Email) }

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req, tagMessage{"required", msgLoginRequired}, tagMessage{"notblank", msgLoginRequired}) {
		return
	}

	user, err := h.local.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		if errors.Is(err, providers.ErrInvalidCredentials) {
			response.Error(c, appErrors.ErrInvalidCredentials)
			return
		}
		logger.WithModule("auth").Error("login failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	metrics.AuthAttempts.WithLabelValues("password", "success").Inc()

	payload, err := h.withToken(user)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, payload)
}

func (h *AuthHandler) withToken(user *models.User) (userPayload, error) {
	token, err := h.jwt.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		return userPayload{}, err
	}
	payload := toUserPayload(user)
	payload.Token = token
	return payload, nil
}

// GET /api/auth/profile
func (h *AuthHandler) Profile(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Error(c, appErrors.ErrNotFound.WithMessage(msgUserNotFound))
		return
	}
	response.Success(c, http.StatusOK, toUserPayload(user))
}

// GET /api/auth/admin
func (h *AuthHandler) Admin(c *gin.Context) {
	user := middleware.CurrentUser(c)
	response.Message(c, http.StatusOK, fmt.Sprintf("Bem-vindo, %s!", user.Username))
}

// GET /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(h.cookie.Name); err == nil && token != "" {
		if err := h.sessions.Revoke(requestContext(c), token); err != nil && !errors.Is(err, iauth.ErrSessionNotFound) {
			logger.WithModule("auth").Warn("session revoke failed", zap.Error(err))
		}
	}
	clearSessionCookie(c, h.cookie)
	response.Message(c, http.StatusOK, msgLogout)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.Request(requestContext(c), req.Email); err != nil {
		logger.WithModule("auth").Error("password reset request failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer.WithMessage(msgForgotPasswordError).WithInternal(err))
		return
	}
	response.Message(c, http.StatusOK, msgForgotPasswordSent)
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

func (r *resetPasswordRequest) trim() { r.Token = strings.TrimSpace(r.Token) }

// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req, tagMessage{"required", msgResetRequired}) {
		return
	}
	if msg := iauth.CheckPasswordStrength(req.NewPassword); msg != "" {
		response.Error(c, appErrors.NewBadRequest(msg))
		return
	}

	err := h.resets.Reset(requestContext(c), req.Token, req.NewPassword)
	switch {
	case err == nil:
		response.Message(c, http.StatusOK, msgPasswordReset)
	case errors.Is(err, iauth.ErrResetTokenInvalid):
		response.Error(c, appErrors.NewBadRequest(msgResetInvalid))
	case errors.Is(err, iauth.ErrResetUserNotFound):
		response.Error(c, appErrors.ErrNotFound.WithMessage(msgUserNotFound))
	default:
		logger.WithModule("auth").Error("password reset failed", zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
	}
}

func toUserPayload(user *models.User) userPayload {
	return userPayload{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}
}

func setSessionCookie(c *gin.Context, cfg CookieConfig, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.Name, token, cfg.MaxAge, "/", "", cfg.Secure, true)
}

func clearSessionCookie(c *gin.Context, cfg CookieConfig) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cfg.Name, "", -1, "/", "", cfg.Secure, true)
}
