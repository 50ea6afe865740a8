package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"studykit-backend/internal/shared/telemetry"
	"studykit-backend/internal/shared/util"
)

// Logging emits a structured log per request. User ids are hashed.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		userKey := ""
		if userID := UserIDFromContext(c); userID != "" {
			userKey = util.HashUserKey(userID)
		}
		isGuest, _ := c.Get(isGuestKey)

		telemetry.Info("request.complete", map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"user_key":    userKey,
			"job_id":      c.GetString("jobId"),
			"kind":        c.GetString("jobKind"),
			"is_guest":    isGuest,
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		})
	}
}
