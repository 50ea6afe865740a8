package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"studykit-backend/internal/shared/telemetry"
)

func TestRequestIDPropagation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"generated when absent", "", false},
		{"kept when valid", "req-abc-123", true},
		{"replaced when too long", strings.Repeat("a", 200), false},
		{"replaced when it has spaces", "bad id", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var fromCtx, fromGin string
			router := gin.New()
			router.Use(RequestID())
			router.GET("/x", func(c *gin.Context) {
				fromGin = RequestIDFromContext(c)
				fromCtx = telemetry.RequestID(c.Request.Context())
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.inbound != "" {
				req.Header.Set("X-Request-Id", tc.inbound)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			header := resp.Header().Get("X-Request-Id")
			if header == "" || header != fromGin || header != fromCtx {
				t.Fatalf("request id mismatch: header=%q gin=%q ctx=%q", header, fromGin, fromCtx)
			}
			if tc.keep && header != tc.inbound {
				t.Fatalf("expected inbound id to be kept, got %q", header)
			}
			if !tc.keep && header == tc.inbound {
				t.Fatalf("expected inbound id to be replaced")
			}
		})
	}
}

func TestRecoveryReturnsStandardError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf strings.Builder
	t.Cleanup(telemetry.SetOutput(&buf))

	router := gin.New()
	router.Use(RequestID(), Recovery())
	router.GET("/api/v1/jobs/:id", func(c *gin.Context) {
		c.Set("jobId", c.Param("id"))
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-9", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"code":"internal"`) {
		t.Fatalf("expected standard error body, got %s", resp.Body.String())
	}
	logs := buf.String()
	if !strings.Contains(logs, "http.panic") || !strings.Contains(logs, "job-9") {
		t.Fatalf("expected panic log with job id, got %s", logs)
	}
}
