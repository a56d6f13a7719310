package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"fastap/internal/core/telemetry"
	"fastap/pkg/config"
)

func TestCurrentMiddleware_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(CurrentMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		requestID, _ := GetCurrent(c).GetString("request_id")
		c.String(http.StatusOK, requestID)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Body.String())
}

func TestSetupGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.GetDefaultConfig()
	cfg.ServiceName = "fastap-test"
	cfg.RateLimitConfigs = map[string]config.RateLimitConfig{
		"default": {Requests: 1, Window: time.Minute},
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewAppMetrics(registry)
	logger := config.NewNopLogger()
	limiter := config.NewRateLimiter(logger.Zap(), metrics, config.WithLimits(cfg.RateLimitConfigs))

	router := gin.New()
	SetupGinMiddleware(router, cfg, metrics, logger, limiter)
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	series, err := testutil.GatherAndCount(registry, "http_requests_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, series, "rejected requests stop before the metrics middleware")
}
