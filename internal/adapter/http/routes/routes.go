package routes

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"fastap/internal/adapter/http/handler"
	"fastap/internal/adapter/http/middleware"
	"fastap/internal/core/port"
	"fastap/internal/core/telemetry"
	"fastap/pkg/config"
)

type HandlersConfig struct {
	// Accounts backs the Session middleware on private routes.
	Accounts       port.AccountService
	AccountHandler *handler.AccountHandler
	SessionHandler *handler.SessionHandler
	HealthHandler  *handler.HealthHandler
}

func SetupRouter(handlers HandlersConfig, cfg *config.AppConfig, metrics *telemetry.AppMetrics, logger *config.LokiLogger, limiter *config.RateLimiter) *gin.Engine {
	router := gin.New()

	// Validate has already checked every entry.
	_ = router.SetTrustedProxies(cfg.TrustedProxies)

	middleware.SetupGinMiddleware(router, cfg, metrics, logger, limiter)

	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.CORSOrigin))

	if !cfg.RateLimitEnabled {
		limiter = nil
	}

	mount(router, handlers, limiter)

	return router
}

// SetupRouterForTests mounts the routes without the ambient chain.
func SetupRouterForTests(handlers HandlersConfig) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CurrentMiddleware())

	mount(router, handlers, nil)

	return router
}

func mount(router *gin.Engine, handlers HandlersConfig, limiter *config.RateLimiter) {
	if handlers.HealthHandler != nil {
		router.GET("/health", handlers.HealthHandler.Check)
	}

	user := router.Group("/user")

	if handlers.AccountHandler != nil && handlers.SessionHandler != nil {
		setupPublicRoutes(user, handlers.AccountHandler, handlers.SessionHandler)
	}

	if handlers.AccountHandler != nil && handlers.Accounts != nil {
		setupPrivateRoutes(user, handlers.Accounts, handlers.AccountHandler, limiter)
	}
}

func setupPublicRoutes(user *gin.RouterGroup, accounts *handler.AccountHandler, sessions *handler.SessionHandler) {
	user.POST("/register", accounts.Register)
	user.POST("/confirm-email/:token", accounts.ConfirmEmail)
	user.POST("/login", sessions.Login)
	user.POST("/recovery", accounts.RequestRecovery)
	user.POST("/change-password/:token", accounts.ChangePassword)
	user.POST("/change-password", accounts.ChangePassword)
	user.GET("/validateSession", sessions.Validate)
	user.GET("/closeSession", sessions.Close)
}

func setupPrivateRoutes(user *gin.RouterGroup, svc port.AccountService, accounts *handler.AccountHandler, limiter *config.RateLimiter) {
	private := user.Group("")
	private.Use(middleware.Session(svc))

	if limiter != nil {
		private.Use(limiter.AccountRateLimitMiddleware())
	}

	private.PUT("/modify", accounts.ModifySelf)
	private.PUT("/delete", accounts.DeactivateSelf)

	admin := private.Group("")
	admin.Use(middleware.IsAdmin())
	{
		admin.GET("/get", accounts.List)
		admin.PUT("/modify/other", accounts.ModifyOther)
		admin.PUT("/enable/:id", accounts.Enable)
	}
}

// corsMiddleware allows credentialed requests from the configured origins,
// a comma separated list.
func corsMiddleware(origins string) gin.HandlerFunc {
	var allowed []string

	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed = append(allowed, origin)
		}
	}

	policy := cors.New(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
	})

	return func(c *gin.Context) {
		policy.HandlerFunc(c.Writer, c.Request)

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
