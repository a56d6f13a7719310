package config

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fastap/internal/core/telemetry"
	. "fastap/pkg"
)

// AccountKey is the gin context key holding the authenticated account id.
const AccountKey = "account_id"

type RateLimitEndpointConfig struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(*gin.Context) string
	// PerAccount entries are enforced by AccountRateLimitMiddleware only.
	PerAccount bool
}

type RateLimiter struct {
	counter Counter
	config  map[string]RateLimitEndpointConfig
	logger  *zap.Logger
	metrics *telemetry.AppMetrics
	mutex   sync.RWMutex
}

type RateLimiterOption func(*RateLimiter)

// WithCounter replaces the in-memory counter, e.g. with a RedisCounter.
func WithCounter(counter Counter) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.counter = counter
	}
}

// WithLimits replaces the endpoint table. Keys are "METHOD /route" or
// "default".
func WithLimits(limits map[string]RateLimitConfig) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.config = endpointConfigs(limits)
	}
}

func NewRateLimiter(logger *zap.Logger, metrics *telemetry.AppMetrics, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		counter: NewMemoryCounter(),
		config:  endpointConfigs(GetDefaultConfig().RateLimitConfigs),
		logger:  logger,
		metrics: metrics,
	}

	for _, opt := range opts {
		opt(rl)
	}

	if _, ok := rl.config["default"]; !ok {
		rl.config["default"] = RateLimitEndpointConfig{
			Requests: 60,
			Window:   time.Minute,
			KeyFunc:  GetClientIP,
		}
	}

	return rl
}

func endpointConfigs(limits map[string]RateLimitConfig) map[string]RateLimitEndpointConfig {
	configs := make(map[string]RateLimitEndpointConfig, len(limits))

	for path, limit := range limits {
		keyFunc := GetClientIP
		if limit.PerAccount {
			keyFunc = getAccountID
		}

		configs[path] = RateLimitEndpointConfig{
			Requests:   limit.Requests,
			Window:     limit.Window,
			KeyFunc:    keyFunc,
			PerAccount: limit.PerAccount,
		}
	}

	return configs
}

// RateLimitMiddleware limits by client IP. It runs ahead of any session
// check, so routes limited per account are left to AccountRateLimitMiddleware.
func (rl *RateLimiter) RateLimitMiddleware() gin.HandlerFunc {
	return rl.middleware(false)
}

// AccountRateLimitMiddleware limits the PerAccount routes by the account id
// that Session stored under AccountKey. Mount it after Session.
func (rl *RateLimiter) AccountRateLimitMiddleware() gin.HandlerFunc {
	return rl.middleware(true)
}

func (rl *RateLimiter) middleware(perAccount bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		methodPath := c.Request.Method + " " + path
		config := rl.lookup(methodPath, path)

		if config.PerAccount != perAccount {
			c.Next()
			return
		}

		key := rl.generateKey(c, methodPath, config.KeyFunc)

		allowed, remaining, resetTime, err := rl.checkRateLimit(c.Request.Context(), key, config)
		if err != nil {
			rl.logger.Error("Rate limit check failed",
				zap.String("key", key),
				zap.String("path", path),
				zap.Error(err))
			c.Next()
			return
		}

		keyType := "ip"
		if strings.Contains(key, "account_") {
			keyType = "account"
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitHit(c.Request.Context(), path, keyType)
			}

			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("path", path),
				zap.Int("limit", config.Requests),
				zap.Duration("window", config.Window))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"message":     fmt.Sprintf("Demasiadas solicitudes. Límite: %d cada %v", config.Requests, config.Window),
				"retry_after": int(time.Until(resetTime).Seconds()),
			})
			c.Abort()
			return
		}

		if rl.metrics != nil {
			rl.metrics.RecordRateLimitAllowed(c.Request.Context(), path, keyType)
		}

		c.Next()
	}
}

func (rl *RateLimiter) lookup(methodPath, path string) RateLimitEndpointConfig {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	if config, ok := rl.config[methodPath]; ok {
		return config
	}

	if config, ok := rl.config[path]; ok {
		return config
	}

	return rl.config["default"]
}

func (rl *RateLimiter) checkRateLimit(ctx context.Context, key string, config RateLimitEndpointConfig) (bool, int, time.Time, error) {
	count, resetTime, err := rl.counter.Hit(ctx, key, config.Window)
	if err != nil {
		return false, 0, time.Time{}, err
	}

	if count > config.Requests {
		return false, 0, resetTime, nil
	}

	return true, config.Requests - count, resetTime, nil
}

func (rl *RateLimiter) generateKey(c *gin.Context, path string, keyFunc func(*gin.Context) string) string {
	if keyFunc == nil {
		keyFunc = GetClientIP
	}

	return fmt.Sprintf("rate_limit:%s:%s", path, keyFunc(c))
}

func getAccountID(c *gin.Context) string {
	if accountID, exists := c.Get(AccountKey); exists {
		return fmt.Sprintf("account_%v", accountID)
	}

	return GetClientIP(c)
}
