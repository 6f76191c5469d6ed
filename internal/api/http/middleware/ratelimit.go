package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paidwall/internal/api/http/handler"
)

const rateLimitWindow = time.Minute

// RateLimit caps submissions per client IP with a fixed window in Redis.
// The paywall is the economic limiter; this only guards the free
// pending-insert path from being flooded. Redis trouble fails open.
func RateLimit(log *zap.Logger, client *redis.Client, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:submit:%s:%d",
			c.ClientIP(),
			time.Now().Unix()/int64(rateLimitWindow.Seconds()),
		)

		count, err := client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count == 1 {
			client.Expire(c.Request.Context(), key, rateLimitWindow)
		}

		if count > int64(perMinute) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, handler.ResponseWithMessage{
				Status:  handler.StatusNotPermitted,
				Message: "too many submissions, slow down",
			})
			return
		}

		c.Next()
	}
}
