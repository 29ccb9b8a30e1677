// Package storage owns the embedded SQLite database: URL normalization, pool
// construction, schema bootstrap, and additive column migrations.
//
// All persistence lives in one file-backed database shared by every store.
// Writes rely on SQLite's own transaction semantics; no multi-statement
// transactions are required by the design.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/freegin/freegin-ai/pkg/apperr"
)

const (
	appDirName  = "freegin-ai"
	dbFileName  = "app.db"
	maxOpenConn = 5
)

// DefaultDatabaseURL returns the sqlite: URL for the default database file
// under the user's data directory.
func DefaultDatabaseURL() string {
	return "sqlite://" + filepath.Join(defaultDataDir(), dbFileName)
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		// XDG data dir when available; fall back to the config dir tree.
		if data := os.Getenv("XDG_DATA_HOME"); data != "" {
			return filepath.Join(data, appDirName)
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", appDirName)
		}
		return filepath.Join(dir, appDirName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, appDirName)
	}
	return appDirName
}

// NormalizeURL resolves a sqlite: database URL to an absolute form, creating
// the parent directory when needed. Relative paths resolve under the default
// data directory. Non-sqlite URLs and in-memory URLs pass through untouched.
func NormalizeURL(databaseURL string) (string, error) {
	if !strings.HasPrefix(databaseURL, "sqlite:") {
		return databaseURL, nil
	}

	// Strip the scheme and at most one "//" separator so that an absolute
	// path keeps its leading slash: sqlite:///abs/path -> /abs/path.
	remainder := strings.TrimPrefix(databaseURL, "sqlite:")
	remainder = strings.TrimPrefix(remainder, "//")
	if remainder == ":memory:" || strings.HasPrefix(remainder, "memory") {
		return databaseURL, nil
	}

	path := remainder
	if path == "" {
		path = filepath.Join(defaultDataDir(), dbFileName)
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(defaultDataDir(), path)
	}

	if parent := filepath.Dir(path); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", apperr.Config("failed to create database directory %s: %v", parent, err)
		}
	}

	return "sqlite://" + path, nil
}

// Open normalizes databaseURL, opens the pool, and bootstraps the schema.
func Open(databaseURL string) (*sqlx.DB, error) {
	normalized, err := NormalizeURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", dsn(normalized))
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindDatabase, Msg: "failed to connect to the database", Err: err}
	}
	// modernc.org/sqlite serializes writes; a small pool suffices and keeps
	// file-lock contention down.
	db.SetMaxOpenConns(maxOpenConn)

	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// dsn converts a sqlite: URL to the driver's DSN form.
func dsn(databaseURL string) string {
	remainder := strings.TrimPrefix(databaseURL, "sqlite:")
	remainder = strings.TrimPrefix(remainder, "//")
	if remainder == ":memory:" || strings.HasPrefix(remainder, "memory") {
		return ":memory:"
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", remainder)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS provider_credentials (
		provider TEXT PRIMARY KEY,
		nonce BLOB NOT NULL,
		ciphertext BLOB NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS provider_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		model TEXT,
		success INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		error_message TEXT,
		prompt_tokens INTEGER,
		completion_tokens INTEGER,
		total_tokens INTEGER,
		input_cost_micros INTEGER,
		output_cost_micros INTEGER,
		total_cost_micros INTEGER,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS provider_models (
		provider TEXT NOT NULL,
		workload TEXT NOT NULL,
		model TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		priority INTEGER NOT NULL DEFAULT 100,
		rationale TEXT,
		metadata TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(provider, workload, model)
	)`,
	`CREATE TABLE IF NOT EXISTS provider_model_suggestions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		workload TEXT NOT NULL,
		model TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		rationale TEXT,
		metadata TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(provider, workload, model)
	)`,
	`CREATE TABLE IF NOT EXISTS provider_health (
		provider TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'available',
		last_error TEXT,
		last_error_at TEXT,
		retry_after TEXT,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		last_success_at TEXT,
		updated_at TEXT NOT NULL
	)`,
}

var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_provider_models_active
		ON provider_models(provider, workload, status, priority)`,
	`CREATE INDEX IF NOT EXISTS idx_provider_model_suggestions
		ON provider_model_suggestions(provider, workload, status)`,
	`CREATE INDEX IF NOT EXISTS idx_provider_usage_provider_model_time
		ON provider_usage(provider, model, created_at)`,
}

// EnsureSchema creates missing tables, applies additive column migrations to
// provider_usage, and creates the lookup indexes. Safe to run at every
// startup.
func EnsureSchema(db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return apperr.Database(err)
		}
	}

	if err := migrateUsageColumns(db); err != nil {
		return err
	}

	for _, stmt := range indexStatements {
		if _, err := db.Exec(stmt); err != nil {
			return apperr.Database(err)
		}
	}

	return nil
}

// migrateUsageColumns adds the model and token/cost columns to databases
// created before those columns existed. A failing probe SELECT means the
// column is missing.
func migrateUsageColumns(db *sqlx.DB) error {
	type column struct {
		name    string
		sqlType string
	}
	columns := []column{
		{"model", "TEXT"},
		{"prompt_tokens", "INTEGER"},
		{"completion_tokens", "INTEGER"},
		{"total_tokens", "INTEGER"},
		{"input_cost_micros", "INTEGER"},
		{"output_cost_micros", "INTEGER"},
		{"total_cost_micros", "INTEGER"},
	}

	for _, c := range columns {
		probe := fmt.Sprintf("SELECT %s FROM provider_usage LIMIT 1", c.name)
		if _, err := db.Exec(probe); err == nil {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE provider_usage ADD COLUMN %s %s", c.name, c.sqlType)
		if _, err := db.Exec(alter); err != nil {
			return apperr.Database(err)
		}
	}

	return nil
}
