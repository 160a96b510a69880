package api

import (
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"net/http"
	"time"
)

const headerUserId = "X-User-Id"

// RequestLogger puts a request-scoped logger into the request context and
// logs each request once it is served. X-User-Id is trusted as given.
func RequestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger := base.With().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Str("user_id", c.GetHeader(headerUserId)).
			Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		c.Next()

		event := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.Int("status", c.Writer.Status()).Dur("latency", time.Since(start)).Msg("request served")
	}
}

// RateLimiter counts requests per client in fixed Redis windows.
type RateLimiter struct {
	redisClient redis.Cmdable
}

func NewRateLimiter(client redis.Cmdable) *RateLimiter {
	return &RateLimiter{redisClient: client}
}

// Limit admits limit requests per window for each client. A nil limiter, or
// an unreachable Redis, admits everything.
func (rl *RateLimiter) Limit(keySuffix string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.redisClient == nil || limit <= 0 {
			c.Next()
			return
		}
		client := c.GetHeader(headerUserId)
		if client == "" {
			client = c.ClientIP()
		}
		key := fmt.Sprintf("rate_limit:%s:%s", keySuffix, client)

		count, err := rl.redisClient.Incr(c, key).Result()
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		// A window key without a TTL would block the client for good.
		if count == 1 {
			if err := rl.redisClient.Expire(c, key, window).Err(); err != nil {
				zerolog.Ctx(c.Request.Context()).Warn().Err(err).Str("key", key).Msg("failed to set rate limit window")
				if delErr := rl.redisClient.Del(c, key).Err(); delErr != nil {
					zerolog.Ctx(c.Request.Context()).Error().Err(delErr).Str("key", key).Msg("failed to drop rate limit key")
				}
				c.Next()
				return
			}
		}

		if count > int64(limit) {
			ttl, _ := rl.redisClient.TTL(c, key).Result()
			c.Header("Retry-After", fmt.Sprintf("%.0f", ttl.Seconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": fmt.Sprintf("%.0f seconds", ttl.Seconds()),
			})
			return
		}
		c.Next()
	}
}
