package config

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HTTPSEnforcer redirects plain HTTP requests to the public HTTPS origin.
type HTTPSEnforcer struct {
	enabled    bool
	publicHost string
	logger     *zap.Logger
}

// NewHTTPSEnforcer builds the redirect middleware. publicHost is the host the
// redirect points at; empty falls back to the request host.
func NewHTTPSEnforcer(logger *zap.Logger, enabled bool, publicHost string) *HTTPSEnforcer {
	return &HTTPSEnforcer{
		enabled:    enabled,
		publicHost: publicHost,
		logger:     logger,
	}
}

func (he *HTTPSEnforcer) HTTPSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !he.enabled || c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Next()
			return
		}

		if isLoopback(c.Request.Host) {
			c.Next()
			return
		}

		host := he.publicHost
		if host == "" {
			host = c.Request.Host
		}

		target := "https://" + host + c.Request.RequestURI

		// 308 keeps the method and body of the POST and PUT account routes.
		status := http.StatusPermanentRedirect
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			status = http.StatusMovedPermanently
		}

		he.logger.Info("Redirecting to HTTPS",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("https_url", target))

		c.Redirect(status, target)
		c.Abort()
	}
}

func isLoopback(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}

	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}
