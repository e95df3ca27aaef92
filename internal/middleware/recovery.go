package middleware

import (
	stderrors "errors"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saudema/saudema/pkg/errors"
	"github.com/saudema/saudema/pkg/logger"
	"github.com/saudema/saudema/pkg/response"
)

// Recovery turns a handler panic into the standard 500 envelope. A panic
// caused by the client hanging up is logged at warn level and nothing is
// written back. http.ErrAbortHandler is re-raised for net/http to handle.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			log := logger.WithModule("http").With(
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", c.GetString(CtxRequestIDKey)),
			)

			if err, ok := rec.(error); ok && clientGone(err) {
				log.Warn("client connection closed", zap.Error(err))
				c.Abort()
				return
			}

			log.Error("panic", zap.Any("error", rec), zap.Stack("stack"))
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Abort(c, errors.ErrInternalServer)
		}()
		c.Next()
	}
}

func clientGone(err error) bool {
	if stderrors.Is(err, syscall.EPIPE) || stderrors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		var sysErr *os.SyscallError
		if stderrors.As(opErr.Err, &sysErr) {
			msg := strings.ToLower(sysErr.Error())
			return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
		}
	}
	return false
}

// NotFoundHandler answers unknown routes with the JSON 404 envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound)
}
