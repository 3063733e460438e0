package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the tables the service needs if they do not
// exist yet.  The statements are idempotent so the server can be
// restarted against the same database without a separate migration
// step.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(16) NOT NULL DEFAULT 'STUDENT',
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			user_id BIGINT UNSIGNED NOT NULL,
			token_hash CHAR(64) NOT NULL,
			expires_at DATETIME NOT NULL,
			revoked_at DATETIME NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_refresh_hash (token_hash),
			INDEX idx_refresh_user (user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id VARCHAR(64) NOT NULL PRIMARY KEY,
			available_balance DECIMAL(12,2) NOT NULL DEFAULT 0,
			held_amount DECIMAL(12,2) NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS holds (
			id CHAR(36) NOT NULL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			session_id CHAR(36) NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			status VARCHAR(16) NOT NULL,
			charged DECIMAL(12,2) NOT NULL DEFAULT 0,
			refunded DECIMAL(12,2) NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			settled_at DATETIME NULL,
			INDEX idx_holds_session (session_id),
			INDEX idx_holds_user (user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_transactions (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			tx_type VARCHAR(16) NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			session_id CHAR(36) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			INDEX idx_wtx_user (user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS billing_sessions (
			id CHAR(36) NOT NULL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			video_id VARCHAR(128) NOT NULL,
			course_id VARCHAR(64) NOT NULL DEFAULT '',
			price_per_minute DECIMAL(10,2) NOT NULL DEFAULT 0,
			locked_amount DECIMAL(12,2) NOT NULL DEFAULT 0,
			hold_id CHAR(36) NOT NULL DEFAULT '',
			state VARCHAR(16) NOT NULL,
			accumulated_seconds DOUBLE NOT NULL DEFAULT 0,
			last_sync_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			ended_at DATETIME NULL,
			INDEX idx_sessions_user_state (user_id, state),
			INDEX idx_sessions_state_sync (state, last_sync_at)
		)`,
		`CREATE TABLE IF NOT EXISTS settlements (
			session_id CHAR(36) NOT NULL PRIMARY KEY,
			duration_seconds DOUBLE NOT NULL,
			duration_minutes DECIMAL(10,2) NOT NULL,
			price_per_minute DECIMAL(10,2) NOT NULL,
			amount_charged DECIMAL(12,2) NOT NULL,
			amount_locked DECIMAL(12,2) NOT NULL,
			refund DECIMAL(12,2) NOT NULL,
			final_balance DECIMAL(12,2) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS courses (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			teacher_id VARCHAR(64) NOT NULL DEFAULT '',
			duration_minutes DECIMAL(10,2) NOT NULL,
			created_at DATETIME NOT NULL,
			INDEX idx_courses_teacher (teacher_id)
		)`,
		`CREATE TABLE IF NOT EXISTS course_pricing (
			course_id VARCHAR(64) NOT NULL PRIMARY KEY,
			rating DECIMAL(3,1) NOT NULL,
			price_per_minute DECIMAL(10,2) NOT NULL,
			total_duration_minutes DECIMAL(10,2) NOT NULL,
			lock_amount DECIMAL(12,2) NOT NULL
		)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
