package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"studykit-backend/internal/shared/metrics"
	"studykit-backend/internal/shared/server/respond"
	"studykit-backend/internal/shared/telemetry"
	"studykit-backend/internal/shared/util"
)

// Recovery turns handler panics into a 500 with the standard error body.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			metrics.IncHTTPPanics()
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      rec,
				"stack":      string(debug.Stack()),
				"route":      c.FullPath(),
				"method":     c.Request.Method,
			}
			if jobID := c.GetString("jobId"); jobID != "" {
				fields["job_id"] = jobID
			}
			if userID := UserIDFromContext(c); userID != "" {
				fields["user_key"] = util.HashUserKey(userID)
			}
			telemetry.Error("http.panic", fields)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		}()
		c.Next()
	}
}
