package middleware

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/ratelimit"
)

// Limiter is satisfied by ratelimit.RedisLimiter.
type Limiter interface {
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (ratelimit.Decision, error)
}

// RateLimit counts requests per resolved key in a store shared by every
// instance. A nil limiter disables limiting; a limiter error fails open.
func RateLimit(limiter Limiter, scope, keyTemplate string, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}

	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}

		decision, err := limiter.Allow(c.Request.Context(), scope, resolveRateLimitKey(c, keyTemplate), limit, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
			c.Next()
			return
		}
		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(decision.RetryAfter/time.Second)))
			response.Fail(c, 429, response.ErrTooManyRequests, "too many requests")
			c.Abort()
			return
		}

		c.Next()
	}
}

func resolveRateLimitKey(c *gin.Context, keyTemplate string) string {
	userID := ""
	if claims, ok := GetClaims(c); ok {
		userID = claims.UserID
	}

	switch keyTemplate {
	case "", "ip":
		return "ip:" + c.ClientIP()
	case "user_id":
		if userID == "" {
			return "user_id:anonymous:" + c.ClientIP()
		}
		return "user_id:" + userID
	default:
		replaced := strings.ReplaceAll(keyTemplate, "{ip}", c.ClientIP())
		replaced = strings.ReplaceAll(replaced, "{user_id}", userID)
		replaced = strings.ReplaceAll(replaced, "{store_id}", c.Param("store_id"))
		return replaced
	}
}
