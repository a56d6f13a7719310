package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	server "fastap/internal/adapter/http"
	"fastap/internal/adapter/telemetry"
	"fastap/pkg/config"
)

type Globals struct {
	Debug   bool
	Version string
}

type ServeCmd struct {
	Listen      string `help:"HTTP listen address." default:":8080" env:"FASTAP_LISTEN"`
	Environment string `help:"Deployment environment." default:"development" env:"FASTAP_ENV" enum:"development,staging,production"`
	CORSOrigins string `help:"Comma separated list of allowed origins." default:"http://localhost:5173" env:"FASTAP_CORS_ORIGINS"`
	HTTPS       bool   `help:"Redirect plain HTTP requests to HTTPS." env:"FASTAP_ENFORCE_HTTPS"`
	PublicHost  string `help:"Host that HTTPS redirects point at. Empty reuses the request host." env:"FASTAP_PUBLIC_HOST"`

	TrustedProxies []string `help:"IPs or CIDRs of reverse proxies allowed to set X-Forwarded-For." env:"FASTAP_TRUSTED_PROXIES"`

	Store StoreFlags `embed:"" prefix:"store-"`
	Auth  AuthFlags  `embed:"" prefix:"auth-"`
	SMTP  SMTPFlags  `embed:"" prefix:"smtp-"`

	RateLimit bool   `help:"Enable per route rate limiting." default:"true" negatable:"" env:"FASTAP_RATE_LIMIT"`
	RedisURL  string `help:"Redis URL for rate limit counters shared between instances." env:"REDIS_URL"`

	Telemetry TelemetryFlags `embed:"" prefix:"telemetry-"`
}

type StoreFlags struct {
	Kind           string `name:"kind" help:"Account store." default:"mongo" enum:"mongo,sqlite,postgres" env:"FASTAP_STORE"`
	MongoURI       string `name:"mongo-uri" help:"MongoDB connection string." default:"mongodb://localhost:27017" env:"MONGO_URI"`
	MongoDatabase  string `name:"mongo-database" help:"MongoDB database name." default:"fastap" env:"MONGO_DATABASE"`
	DatabasePath   string `name:"sqlite-path" help:"SQLite database file." default:"database.db" env:"DATABASE_PATH"`
	DatabaseURL    string `name:"postgres-url" help:"PostgreSQL connection string." env:"DATABASE_URL"`
	MigrationsPath string `name:"migrations" help:"Migrations directory for the SQL stores." env:"MIGRATIONS_PATH"`
}

type AuthFlags struct {
	JWTSecret   string `name:"jwt-secret" help:"HMAC secret for session and recovery tokens, at least 32 bytes." env:"FASTAP_JWT_SECRET" required:""`
	CipherKey   string `name:"cipher-key" help:"Hex encoded 32 byte key for cookie envelopes. Empty generates one per process." env:"FASTAP_CIPHER_KEY"`
	Separator   string `name:"separator" help:"Separator between ciphertext and IV in envelopes." default:"." env:"FASTAP_ENVELOPE_SEPARATOR"`
	ConfirmURL  string `name:"confirm-url" help:"Front end page that receives confirmation tokens." default:"http://localhost:5173/confirm-email" env:"FASTAP_CONFIRM_URL"`
	RecoveryURL string `name:"recovery-url" help:"Front end page that receives recovery tokens." default:"https://fastap.com/recovery" env:"FASTAP_RECOVERY_URL"`
}

type SMTPFlags struct {
	Host     string `help:"SMTP host. Empty logs emails instead of sending them." env:"SMTP_HOST"`
	Port     int    `help:"SMTP port." default:"465" env:"SMTP_PORT"`
	Username string `help:"SMTP user." env:"SMTP_USERNAME"`
	Password string `help:"SMTP password." env:"SMTP_PASSWORD"`
	From     string `help:"Sender address." default:"FasTap <no-reply@fastap.com>" env:"SMTP_FROM"`
	TLS      bool   `help:"Use TLS." default:"true" negatable:"" env:"SMTP_TLS"`
}

type TelemetryFlags struct {
	Enabled     bool   `help:"Export traces over OTLP and serve /metrics." env:"FASTAP_TELEMETRY"`
	MetricsPort string `help:"Port for the Prometheus listener." default:"9091" env:"FASTAP_METRICS_PORT"`
	OTLP        string `name:"otlp-endpoint" help:"OTLP gRPC endpoint." default:"localhost:4317" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LokiURL     string `name:"loki-url" help:"Loki push endpoint." env:"FASTAP_LOKI_URL"`
}

// AppConfig maps the flags onto the runtime configuration.
func (c *ServeCmd) AppConfig(globals *Globals) *config.AppConfig {
	cfg := config.GetDefaultConfig()

	cfg.Debug = globals.Debug
	cfg.Listen = c.Listen
	cfg.Environment = c.Environment
	cfg.CORSOrigin = c.CORSOrigins
	cfg.TrustedProxies = c.TrustedProxies
	cfg.EnforceHTTPS = c.HTTPS || c.Environment == "production"
	cfg.PublicHost = c.PublicHost
	cfg.RateLimitEnabled = c.RateLimit
	cfg.RedisURL = c.RedisURL

	cfg.Store = c.Store.Kind
	cfg.Mongo = config.MongoConfig{URI: c.Store.MongoURI, Database: c.Store.MongoDatabase}
	cfg.SQL = config.SQLConfig{
		DatabasePath:   c.Store.DatabasePath,
		DatabaseURL:    c.Store.DatabaseURL,
		MigrationsPath: c.Store.MigrationsPath,
	}

	cfg.Auth = config.AuthConfig{
		JWTSecret:         c.Auth.JWTSecret,
		CipherKey:         c.Auth.CipherKey,
		EnvelopeSeparator: c.Auth.Separator,
		ConfirmURL:        c.Auth.ConfirmURL,
		RecoveryURL:       c.Auth.RecoveryURL,
	}

	cfg.SMTP = config.SMTPConfig(c.SMTP)

	cfg.Telemetry = config.TelemetryConfig{
		Enabled:        c.Telemetry.Enabled,
		ServiceVersion: globals.Version,
		MetricsPort:    c.Telemetry.MetricsPort,
		OTLPEndpoint:   c.Telemetry.OTLP,
		LokiURL:        c.Telemetry.LokiURL,
	}

	return cfg
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	cfg := c.AppConfig(globals)

	logger, err := config.NewLokiLogger(cfg.ServiceName, cfg.Telemetry.LokiURL)

	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	defer logger.Sync()

	zap.ReplaceGlobals(logger.Zap())
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	container, err := telemetry.NewContainer(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		MetricsPort:    cfg.Telemetry.MetricsPort,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	}, logger.Zap())

	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := container.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("telemetry shutdown", zap.Error(err))
		}
	}()

	container.AppMetrics.StartSystemMetrics(ctx)

	logger.Logger.Info("starting fastap",
		zap.String("version", globals.Version),
		zap.String("store", cfg.Store),
		zap.String("origins", strings.ReplaceAll(cfg.CORSOrigin, ",", " ")))

	srv, err := server.NewServer(ctx, cfg, container.NewTelemetryProbe(logger.Logger), container.AppMetrics, logger)

	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
