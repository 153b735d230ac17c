package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Config holds database configuration.
type Config struct {
	Path          string
	RetentionDays int
}

// DB wraps a sql.DB with retention settings.
type DB struct {
	db            *sql.DB
	retentionDays int
}

// RawDB returns the underlying *sql.DB for components that need direct access.
func (d *DB) RawDB() *sql.DB {
	return d.db
}

// RetentionDays returns the configured retention window.
func (d *DB) RetentionDays() int {
	return d.retentionDays
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Open creates the directory, opens the SQLite database, sets WAL mode and
// pragmas, and ensures all tables exist.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is empty")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// In WAL mode SQLite supports concurrent readers with a single writer.
	// Allow multiple connections so API reads don't block behind scan writes.
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	retDays := cfg.RetentionDays
	if retDays <= 0 {
		retDays = 90
	}

	return &DB{db: sqlDB, retentionDays: retDays}, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS recommendation_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			recommendation_type TEXT NOT NULL,
			recommendation TEXT NOT NULL,
			feedback_status TEXT NOT NULL DEFAULT '',
			last_metric_capture INTEGER NOT NULL,
			savings REAL NOT NULL DEFAULT 0,
			added_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_key
			ON recommendation_history(resource_id, resource_type, recommendation_type, added_at)`,
		`CREATE TABLE IF NOT EXISTS report_archive (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			produced_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_resource
			ON report_archive(resource_id, produced_at)`,
		`CREATE TABLE IF NOT EXISTS group_recommendations (
			policy_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			produced_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Prune deletes rows older than the retention window. Call periodically.
func (d *DB) Prune(cutoffUnix int64) error {
	for _, table := range []struct{ name, col string }{
		{"recommendation_history", "added_at"},
		{"report_archive", "produced_at"},
	} {
		if _, err := d.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE %s < ?", table.name, table.col), cutoffUnix,
		); err != nil {
			return fmt.Errorf("pruning %s: %w", table.name, err)
		}
	}
	return nil
}
