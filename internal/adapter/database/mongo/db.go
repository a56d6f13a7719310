package mongo

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/event"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	DefaultDatabase    = "fastap"
	AccountsCollection = "accounts"

	UsernameIndex = "accounts_username_key"
	EmailIndex    = "accounts_email_key"
)

type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewDB connects to uri, pings the primary and makes sure the unique indexes
// on the accounts collection exist. With debug every command is logged.
func NewDB(ctx context.Context, uri, database string, debug bool) (*DB, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is not set")
	}

	if database == "" {
		database = DefaultDatabase
	}

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second)

	if debug {
		opts.SetMonitor(commandMonitor())
	}

	client, err := mongo.Connect(opts)

	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := &DB{
		Client:   client,
		Database: client.Database(database),
	}

	if err := db.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return db, nil
}

func (db *DB) Accounts() *mongo.Collection {
	return db.Database.Collection(AccountsCollection)
}

func (db *DB) EnsureIndexes(ctx context.Context) error {
	_, err := db.Accounts().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(UsernameIndex),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(EmailIndex),
		},
	})

	if err != nil {
		return fmt.Errorf("create account indexes: %w", err)
	}

	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Client.Ping(ctx, readpref.Primary())
}

func (db *DB) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

func commandMonitor() *event.CommandMonitor {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "mongo").Logger()

	return &event.CommandMonitor{
		Started: func(_ context.Context, e *event.CommandStartedEvent) {
			logger.Debug().
				Str("command", e.CommandName).
				Str("database", e.DatabaseName).
				Int64("request_id", e.RequestID).
				Msg("mongo command started")
		},
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			logger.Debug().
				Str("command", e.CommandName).
				Dur("duration", e.Duration).
				Msg("mongo command succeeded")
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			logger.Warn().
				Str("command", e.CommandName).
				Dur("duration", e.Duration).
				Err(e.Failure).
				Msg("mongo command failed")
		},
	}
}
