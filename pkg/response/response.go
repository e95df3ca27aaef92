// Package response writes the JSON envelope shared by every API endpoint:
// {success, data, error{code, message, details, request_id}, meta}.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/saudema/saudema/pkg/errors"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "requestID"

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo is the client facing part of an AppError. RequestID lets support
// match a complaint with the access log line.
type ErrorInfo struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// Meta describes list payloads. Cache carries the municipio cache state
// (fresh|stale) when the data came from it.
type Meta struct {
	Count int    `json:"count"`
	Cache string `json:"cache,omitempty"`
}

// MessageData is the payload of endpoints that only confirm an action.
type MessageData struct {
	Message string `json:"message"`
}

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{Success: true, Data: data})
}

// List writes data with a Meta block.
func List(c *gin.Context, data interface{}, meta Meta) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: &meta})
}

// Message writes a success envelope whose data is {"message": msg}.
func Message(c *gin.Context, statusCode int, msg string) {
	Success(c, statusCode, MessageData{Message: msg})
}

// Error renders err through appErrors.FromError. Unknown errors become a 500
// and their text never reaches the client.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}
	appErr := appErrors.FromError(err)

	status := appErr.StatusCode
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}

	info := &ErrorInfo{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: c.GetString(RequestIDKey),
	}
	if len(c.Errors) == 0 && appErr.Internal != nil {
		_ = c.Error(appErr.Internal)
	}
	c.JSON(status, Response{Success: false, Error: info})
}

// Abort writes err and stops the middleware chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
