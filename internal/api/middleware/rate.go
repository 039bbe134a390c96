package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quillfeed/backend/internal/infrastructure/monitoring"
	"github.com/quillfeed/backend/internal/ratelimit"
)

// RateLimit rejects requests whose caller identity is over budget. The
// limiter decides the algorithm; identity derivation is the extractor's
// concern. Rejections are answered fast with 429 before any handler work.
func RateLimit(limiter ratelimit.Limiter, extract ratelimit.KeyExtractor, metrics *monitoring.Metrics) gin.HandlerFunc {
	if extract == nil {
		extract = ratelimit.DefaultKeyExtractor
	}

	return func(c *gin.Context) {
		key := extract(c.Request)

		if !limiter.Allow(key) {
			if metrics != nil {
				metrics.RecordRateLimitRejection("inbound")
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
