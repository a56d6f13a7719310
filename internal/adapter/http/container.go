package http

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mongodb "fastap/internal/adapter/database/mongo"
	mongorepo "fastap/internal/adapter/database/mongo/repository"
	"fastap/internal/adapter/database/postgres"
	pgrepo "fastap/internal/adapter/database/postgres/repository"
	"fastap/internal/adapter/database/sqlite"
	sqliterepo "fastap/internal/adapter/database/sqlite/repository"
	"fastap/internal/adapter/http/handler"
	"fastap/internal/adapter/http/validation"
	"fastap/internal/adapter/mail"
	"fastap/internal/core/port"
	"fastap/internal/core/service"
	"fastap/internal/core/telemetry"
	"fastap/internal/core/util"
	"fastap/pkg/auth"
	"fastap/pkg/config"
)

type closer func(context.Context) error

type Container struct {
	AccountRepo port.AccountRepository
	Accounts    *service.AccountService

	AccountHandler *handler.AccountHandler
	SessionHandler *handler.SessionHandler
	HealthHandler  *handler.HealthHandler

	closers []closer
}

// NewContainer opens the configured store and wires the account service
// with its mailer and token primitives.
func NewContainer(ctx context.Context, cfg *config.AppConfig, probe port.Telemetry, metrics *telemetry.AppMetrics, logger *zap.Logger) (*Container, error) {
	c := &Container{}
	checks := map[string]handler.HealthCheck{}

	repo, err := c.openStore(ctx, cfg, probe, checks)

	if err != nil {
		return nil, err
	}

	cipher, err := util.NewTokenCipherFromHex(cfg.Auth.CipherKey)

	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	if cfg.Auth.CipherKey == "" {
		logger.Warn("no cipher key configured, sessions will not survive a restart")
	}

	tokens, err := auth.NewJWT(cfg.Auth.JWTSecret)

	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	mailer, err := newMailer(cfg.SMTP, metrics, logger)

	if err != nil {
		c.Close(ctx)
		return nil, err
	}

	c.AccountRepo = repo
	c.Accounts = service.NewAccountService(repo, mailer, validation.New(), tokens, cipher, probe, service.AccountConfig{
		ConfirmURL:  cfg.Auth.ConfirmURL,
		RecoveryURL: cfg.Auth.RecoveryURL,
		Separator:   cfg.Auth.EnvelopeSeparator,
	})

	c.AccountHandler = handler.NewAccountHandler(c.Accounts)
	c.SessionHandler = handler.NewSessionHandler(c.Accounts)
	c.HealthHandler = handler.NewHealthHandler(checks)

	return c, nil
}

func (c *Container) openStore(ctx context.Context, cfg *config.AppConfig, probe port.Telemetry, checks map[string]handler.HealthCheck) (port.AccountRepository, error) {
	switch cfg.Store {
	case config.StoreMongo:
		db, err := mongodb.NewDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Debug)

		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}

		checks[config.StoreMongo] = db.Ping
		c.closers = append(c.closers, db.Close)

		return mongorepo.NewAccountRepository(db, probe), nil

	case config.StoreSQLite:
		db, err := sqlite.NewDB(cfg.SQL.DatabasePath, cfg.SQL.MigrationsPath, cfg.Debug)

		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}

		checks[config.StoreSQLite] = db.PingContext
		c.closers = append(c.closers, func(context.Context) error { return db.Close() })

		return sqliterepo.NewAccountRepository(db, probe), nil

	case config.StorePostgres:
		db, err := postgres.NewDB(ctx, cfg.SQL.DatabaseURL, cfg.SQL.MigrationsPath)

		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}

		checks[config.StorePostgres] = db.Ping
		c.closers = append(c.closers, func(context.Context) error {
			db.Close()
			return nil
		})

		return pgrepo.NewAccountRepository(db, probe), nil
	}

	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func newMailer(cfg config.SMTPConfig, metrics *telemetry.AppMetrics, logger *zap.Logger) (port.Mailer, error) {
	if cfg.Host == "" {
		logger.Warn("no smtp host configured, account emails are only logged")
		return mail.NewLogMailer(logger), nil
	}

	client, err := mail.NewClient(cfg)

	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return mail.NewSMTPMailer(client, cfg.From, mail.WithMetrics(metrics)), nil
}

// Close releases the store connections in reverse order of opening.
func (c *Container) Close(ctx context.Context) error {
	var errs []error

	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i](ctx))
	}

	c.closers = nil

	return errors.Join(errs...)
}
