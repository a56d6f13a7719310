package test

import (
	"log"
	"path/filepath"
	"strings"
	"testing"

	"fastap/internal/adapter/database/sqlite"
	"fastap/pkg"
)

// InitTestDB returns a migrated in-memory database.
func InitTestDB() *sqlite.DB {
	migrationsPath := filepath.Join(pkg.FindProjectRoot(), "db", "migrations")

	db, err := sqlite.NewDB(":memory:", migrationsPath, false)

	if err != nil {
		log.Fatal(err)
	}

	return db
}

// CleanDB empties every application table, leaving the migration state.
func CleanDB(t *testing.T, db *sqlite.DB) {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'table' and name not in ('sqlite_sequence', 'schema_migrations')")
	if err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}

	var tables []string

	for rows.Next() {
		var table string

		if err := rows.Scan(&table); err != nil {
			rows.Close()
			t.Fatalf("Failed to scan table name: %v", err)
		}

		tables = append(tables, strings.TrimSpace(table))
	}

	if err := rows.Err(); err != nil {
		t.Fatalf("Error iterating over rows: %v", err)
	}

	rows.Close()

	for _, table := range tables {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("Failed to execute delete for table %s: %v", table, err)
		}
	}
}

func TeardownTestDB(t *testing.T, db *sqlite.DB) {
	t.Helper()

	if db != nil {
		CleanDB(t, db)
		db.Close()
	}
}
