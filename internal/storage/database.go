package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// New opens a SQLite database connection at the given path.
// Foreign keys and a busy timeout are enabled on every pooled connection
// through the DSN, and WAL journaling lets readers proceed during writes.
func New(path string) (*sql.DB, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS notebooks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			last_accessed INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			notebook_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			file_size INTEGER NOT NULL DEFAULT 0,
			file_type TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('pending', 'ready', 'error')),
			created_at INTEGER NOT NULL,
			FOREIGN KEY (notebook_id) REFERENCES notebooks(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_notebook ON attachments(notebook_id);`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_status ON attachments(status);`,
		`CREATE TABLE IF NOT EXISTS chat_entries (
			id TEXT PRIMARY KEY,
			notebook_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system', 'tool')),
			message TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			FOREIGN KEY (notebook_id) REFERENCES notebooks(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_entries_notebook ON chat_entries(notebook_id, timestamp);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
