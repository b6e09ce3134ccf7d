package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salesbot/src/logger"

	_ "modernc.org/sqlite"
)

const memoryDSN = ":memory:"

// OpenSQLite opens the database file and creates the schema when missing.
// ":memory:" opens a private in-process database pinned to one connection.
func OpenSQLite(ctx context.Context, dbPath string) (*sql.DB, error) {
	dsn := dbPath
	if dbPath != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == memoryDSN {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("💾 SQLite ready")
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS admin_sessions (
		session_id TEXT PRIMARY KEY,
		admin_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_activity INTEGER NOT NULL,
		ended_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_admin_sessions_status ON admin_sessions(status, last_activity);

	CREATE TABLE IF NOT EXISTS chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		admin_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		assistant_response TEXT NOT NULL,
		source_type TEXT NOT NULL,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		tokens_used INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_history_session ON chat_history(session_id, created_at);

	CREATE TABLE IF NOT EXISTS retrieved_context (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		admin_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		query_text TEXT NOT NULL,
		record_count INTEGER NOT NULL DEFAULT 0,
		payload TEXT,
		error_message TEXT,
		retrieval_time_ms INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_retrieved_context_session ON retrieved_context(session_id, source_type, id);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		admin_id TEXT NOT NULL,
		session_id TEXT,
		action TEXT NOT NULL,
		metadata TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_session ON audit_logs(session_id, created_at);

	CREATE TABLE IF NOT EXISTS crm_records (
		table_name TEXT NOT NULL,
		id INTEGER NOT NULL,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (table_name, id)
	);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// IsSQLiteConflictError reports SQLITE_BUSY or "database is locked" failures
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Retry runs op up to three times, backing off exponentially on lock conflicts
func Retry(ctx context.Context, op func() error) error {
	delay := 50 * time.Millisecond
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = op(); err == nil || !IsSQLiteConflictError(err) {
			return err
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("⚠️ SQLite busy, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
