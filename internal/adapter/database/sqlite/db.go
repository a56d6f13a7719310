package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"fastap/pkg"

	_ "github.com/mattn/go-sqlite3"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"go.opentelemetry.io/otel"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/rs/zerolog"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
)

const DefaultMigrationsPath = "db/migrations"

type DB struct {
	*sql.DB
	QueryBuilder *squirrel.StatementBuilderType
}

// IsMemory reports whether path names an in-memory database. Every
// connection to such a database sees its own copy, so the pool is pinned to
// a single connection.
func IsMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Open returns a traced, query-logging handle on the sqlite database at path.
// Queries are logged at debug level only when debug is set.
func Open(path string, debug bool) (*sql.DB, error) {
	tracedDB, err := otelsql.Open("sqlite3", path,
		otelsql.WithDBSystem("sqlite"),
		otelsql.WithDBName("fastap"),
		otelsql.WithTracerProvider(otel.GetTracerProvider()),
	)

	if err != nil {
		return nil, err
	}

	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("component", "sqlite").Logger()

	db := sqldblogger.OpenDriver(path, tracedDB.Driver(), zerologadapter.New(logger),
		sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug),
		sqldblogger.WithLogArguments(false),
	)

	if IsMemory(path) {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(100)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// NewDB opens the database and brings its schema up to date.
func NewDB(path, migrationsPath string, debug bool) (*DB, error) {
	if path == "" {
		path = "database.db"
	}

	if migrationsPath == "" {
		migrationsPath = DefaultMigrationsPath
	}

	if !filepath.IsAbs(migrationsPath) {
		migrationsPath = filepath.Join(pkg.FindProjectRoot(), migrationsPath)
	}

	sqlDB, err := Open(path, debug)

	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := RunMigrations(sqlDB, migrationsPath); err != nil {
		sqlDB.Close()
		return nil, err
	}

	queryBuilder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

	return &DB{
		DB:           sqlDB,
		QueryBuilder: &queryBuilder,
	}, nil
}

// RunMigrations applies every pending migration. The handle is left open.
func RunMigrations(db *sql.DB, migrationsPath string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})

	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+migrationsPath,
		"sqlite3",
		driver,
	)

	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
