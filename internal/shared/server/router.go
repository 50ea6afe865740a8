package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studykit-backend/internal/documents"
	"studykit-backend/internal/shared/config"
	"studykit-backend/internal/shared/metrics"
	"studykit-backend/internal/shared/server/middleware"
	"studykit-backend/internal/shared/server/respond"
)

const (
	uploadRateGroup = "UPLOAD"
	// statusRateGroup covers polling and the progress stream.
	statusRateGroup = "STATUS"
)

// RouterDeps carries everything NewRouter needs.
type RouterDeps struct {
	Config     config.Config
	Secret     []byte
	JobHandler *documents.Handler
	Limiter    *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(deps.Secret),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: rateGroupFor,
			Limiter:  deps.Limiter,
			Rules: map[string]middleware.RateLimitRule{
				uploadRateGroup: {Rate: cfg.UploadRatePerMinute / 60, Burst: cfg.UploadBurst},
				statusRateGroup: {Rate: 5, Burst: 20},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	registerMeRoutes(api)
	if deps.JobHandler != nil {
		deps.JobHandler.RegisterRoutes(api)
	}

	return r
}

func rateGroupFor(c *gin.Context) string {
	switch {
	case c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/jobs":
		return uploadRateGroup
	case c.Request.Method == http.MethodGet && c.FullPath() == "/api/v1/jobs/:id":
		return statusRateGroup
	default:
		return ""
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
