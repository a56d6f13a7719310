package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"fastap/internal/core/telemetry"
	"fastap/pkg/config"
)

// SetupGinMiddleware installs the ambient chain shared by every route.
// limiter may be nil when rate limiting is disabled.
func SetupGinMiddleware(router *gin.Engine, cfg *config.AppConfig, metrics *telemetry.AppMetrics, logger *config.LokiLogger, limiter *config.RateLimiter) {
	httpsEnforcer := config.NewHTTPSEnforcer(logger.Zap(), cfg.EnforceHTTPS, cfg.PublicHost)
	router.Use(httpsEnforcer.HTTPSMiddleware())

	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(CurrentMiddleware())
	router.Use(LoggingMiddleware(logger))

	if cfg.RateLimitEnabled && limiter != nil {
		router.Use(limiter.RateLimitMiddleware())
	}

	if metrics != nil {
		router.Use(MetricsMiddleware(metrics))
	}
}
