// Package errors defines the errors rendered to API consumers. Messages are
// Portuguese and shown to end users; codes are stable identifiers the
// frontend branches on.
package errors

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
)

// AppError is an error with a client facing shape. Internal is logged and
// never serialised.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	StatusCode int               `json:"-"`
	Internal   error             `json:"-"`
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	default:
		return e.Message
	}
}

// Unwrap exposes the internal error for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches another AppError by code, so a copy made by WithMessage still
// satisfies errors.Is against its sentinel.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if e == nil || !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

func (e *AppError) clone() *AppError {
	cpy := *e
	cpy.Details = maps.Clone(e.Details)
	return &cpy
}

// WithInternal returns a copy carrying err as the internal cause.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := e.clone()
	cpy.Internal = err
	return cpy
}

// WithMessage returns a copy with a different user facing message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}
	cpy := e.clone()
	cpy.Message = message
	return cpy
}

// WithDetails returns a copy with per-field details, typically the failed
// validation rule of each request field.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	if e == nil {
		return nil
	}
	cpy := e.clone()
	cpy.Details = maps.Clone(details)
	return cpy
}

func define(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: status}
}

var (
	ErrBadRequest         = define(http.StatusBadRequest, "BAD_REQUEST", "Requisição inválida")
	ErrUnauthorized       = define(http.StatusUnauthorized, "UNAUTHORIZED", "Não autorizado")
	ErrMissingToken       = define(http.StatusUnauthorized, "AUTH_TOKEN_MISSING", "Não autorizado, nenhum token")
	ErrInvalidToken       = define(http.StatusUnauthorized, "AUTH_TOKEN_INVALID", "Não autorizado, token falhou")
	ErrInvalidCredentials = define(http.StatusUnauthorized, "INVALID_CREDENTIALS", "E-mail ou senha inválidos.")
	ErrForbidden          = define(http.StatusForbidden, "FORBIDDEN", "Acesso negado")
	ErrNotFound           = define(http.StatusNotFound, "NOT_FOUND", "Endpoint não encontrado.")
	ErrRateLimit          = define(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Muitas requisições, tente novamente mais tarde.")
	ErrInternalServer     = define(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Algo deu errado no servidor!")

	// ErrConflict answers 400, not 409: the web client only inspects 400
	// bodies on the registration form.
	ErrConflict = define(http.StatusBadRequest, "CONFLICT", "Recurso já existe")
)

// FromError converts any error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest is a 400 with a custom message.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}
