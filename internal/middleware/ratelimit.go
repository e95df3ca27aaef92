package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saudema/saudema/pkg/errors"
	"github.com/saudema/saudema/pkg/logger"
	"github.com/saudema/saudema/pkg/response"
)

// RateLimit limits requests per (client IP, route) to limit per window.
// Store errors let the request through.
func RateLimit(store RateStore, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || limit <= 0 || window <= 0 {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		key := c.ClientIP() + "|" + c.Request.Method + "|" + path

		decision, err := store.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate limit store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(math.Ceil(decision.Reset.Seconds()))))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(max(1, int(math.Ceil(decision.Reset.Seconds())))))
			response.Abort(c, errors.ErrRateLimit)
			return
		}

		c.Next()
	}
}
