package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	StoreMongo    = "mongo"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type AppConfig struct {
	RateLimitEnabled bool
	RateLimitConfigs map[string]RateLimitConfig

	EnforceHTTPS bool
	// PublicHost is the host HTTPS redirects point at.
	PublicHost string

	Environment string
	// Debug turns on query and command logging in the store adapters.
	Debug bool

	ServiceName string
	Listen      string
	Store       string
	CORSOrigin  string
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For is honoured
	// when resolving the client address. Empty trusts none.
	TrustedProxies []string

	Auth      AuthConfig
	Mongo     MongoConfig
	SQL       SQLConfig
	RedisURL  string
	SMTP      SMTPConfig
	Telemetry TelemetryConfig
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// PerAccount keys the limit by the authenticated account when known.
	PerAccount bool
}

type AuthConfig struct {
	JWTSecret string
	// CipherKey is a hex encoded 32 byte key; empty means a per process key.
	CipherKey         string
	EnvelopeSeparator string
	ConfirmURL        string
	RecoveryURL       string
}

type MongoConfig struct {
	URI      string
	Database string
}

type SQLConfig struct {
	DatabasePath   string
	DatabaseURL    string
	MigrationsPath string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      bool
}

type TelemetryConfig struct {
	Enabled        bool
	ServiceVersion string
	MetricsPort    string
	OTLPEndpoint   string
	LokiURL        string
}

func GetDefaultConfig() *AppConfig {
	return &AppConfig{
		RateLimitEnabled: true,
		RateLimitConfigs: map[string]RateLimitConfig{
			"POST /user/register": {
				Requests: 5,
				Window:   time.Minute,
			},
			"POST /user/login": {
				Requests: 10,
				Window:   time.Minute,
			},
			"POST /user/recovery": {
				Requests: 5,
				Window:   time.Minute,
			},
			"POST /user/change-password/:token": {
				Requests: 5,
				Window:   time.Minute,
			},
			"POST /user/change-password": {
				Requests: 5,
				Window:   time.Minute,
			},
			"POST /user/confirm-email/:token": {
				Requests: 10,
				Window:   time.Minute,
			},
			"PUT /user/modify": {
				Requests:   10,
				Window:     time.Minute,
				PerAccount: true,
			},
			"PUT /user/delete": {
				Requests:   5,
				Window:     time.Minute,
				PerAccount: true,
			},
			"default": {
				Requests: 60,
				Window:   time.Minute,
			},
		},
		EnforceHTTPS: false,
		Environment:  "development",
		ServiceName:  "fastap",
		Listen:       ":8080",
		Store:        StoreMongo,
		CORSOrigin:   "http://localhost:5173",
		Auth: AuthConfig{
			EnvelopeSeparator: ".",
			ConfirmURL:        "http://localhost:5173/confirm-email",
			RecoveryURL:       "https://fastap.com/recovery",
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "fastap",
		},
		SQL: SQLConfig{
			DatabasePath: "database.db",
		},
		SMTP: SMTPConfig{
			Port: 587,
			TLS:  true,
		},
		Telemetry: TelemetryConfig{
			ServiceVersion: "1.0.0",
			MetricsPort:    "9091",
			OTLPEndpoint:   "localhost:4317",
		},
	}
}

// Validate checks the settings the server cannot start without.
func (c *AppConfig) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 bytes")
	}

	if c.Auth.EnvelopeSeparator == "" {
		return errors.New("envelope separator must not be empty")
	}

	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}

		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("trusted proxy %q is neither an IP nor a CIDR", proxy)
		}
	}

	switch c.Store {
	case StoreMongo:
		if c.Mongo.URI == "" {
			return errors.New("mongo uri is required for the mongo store")
		}
	case StoreSQLite:
		if c.SQL.DatabasePath == "" {
			return errors.New("database path is required for the sqlite store")
		}
	case StorePostgres:
		if c.SQL.DatabaseURL == "" {
			return errors.New("database url is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	return nil
}
