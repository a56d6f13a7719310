package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fastap/internal/adapter/http/routes"
	"fastap/internal/core/port"
	"fastap/internal/core/telemetry"
	"fastap/pkg/config"
)

const shutdownTimeout = 10 * time.Second

// Server ties the container, the rate limiter and the gin router to one
// listener.
type Server struct {
	cfg       *config.AppConfig
	container *Container
	limiter   *config.RateLimiter
	redis     *config.RedisCounter
	logger    *config.LokiLogger
	http      *http.Server
}

func NewServer(ctx context.Context, cfg *config.AppConfig, probe port.Telemetry, metrics *telemetry.AppMetrics, logger *config.LokiLogger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := NewContainer(ctx, cfg, probe, metrics, logger.Zap())

	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		container: container,
		logger:    logger,
	}

	if cfg.RateLimitEnabled {
		opts := []config.RateLimiterOption{config.WithLimits(cfg.RateLimitConfigs)}

		if cfg.RedisURL != "" {
			counter, err := config.NewRedisCounterFromURL(ctx, cfg.RedisURL)

			if err != nil {
				container.Close(ctx)
				return nil, err
			}

			s.redis = counter
			opts = append(opts, config.WithCounter(counter))
		}

		s.limiter = config.NewRateLimiter(logger.Zap(), metrics, opts...)
	}

	router := routes.SetupRouter(routes.HandlersConfig{
		Accounts:       container.Accounts,
		AccountHandler: container.AccountHandler,
		SessionHandler: container.SessionHandler,
		HealthHandler:  container.HealthHandler,
	}, cfg, metrics, logger, s.limiter)

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       time.Minute,
		MaxHeaderBytes:    8 * 1024,
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// closes the store.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Logger.Info("server starting",
			zap.String("listen", s.cfg.Listen),
			zap.String("store", s.cfg.Store),
			zap.String("environment", s.cfg.Environment),
			zap.Bool("rate_limit_enabled", s.cfg.RateLimitEnabled),
			zap.Bool("https_enforced", s.cfg.EnforceHTTPS))

		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	var serveErr error

	select {
	case <-ctx.Done():
		s.logger.Logger.Info("shutting down gracefully")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}

func (s *Server) Shutdown(ctx context.Context) error {
	errs := []error{s.http.Shutdown(ctx), s.container.Close(ctx)}

	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}

	return errors.Join(errs...)
}
