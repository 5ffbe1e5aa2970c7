package middleware

import (
	"net/http"

	"ctfex.com/pkg/common"
	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/metrics"
	"ctfex.com/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimit keys the bucket by client ip + route.
func RateLimit(service string, store *ratelimit.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := c.ClientIP() + ":" + route

		if !store.Allow(key) {
			// 可控拒绝, 不打堆栈
			logger.Warn(c.Request.Context(), "http rate limited",
				zap.String("ip", c.ClientIP()),
				zap.String("route", route),
			)
			metrics.RateLimitBlockTotal.WithLabelValues(service, route, "ip").Inc()
			common.Fail(c, http.StatusTooManyRequests, http.StatusTooManyRequests, "too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
