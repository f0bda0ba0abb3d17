package database

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/kramwallet/backend/internal/config"
)

// InitDB opens the single process-wide Postgres handle. No other
// component opens its own connection; everything receives this one.
func InitDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Println("Database connection established")
	return db, nil
}

// Bootstrap creates the four ledger tables if they do not exist yet.
// transactions is append-only; deposits carry the label uniqueness
// constraint that makes the label usable as an idempotency key.
func Bootstrap(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id    BIGINT PRIMARY KEY,
			is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS balances (
			user_id BIGINT PRIMARY KEY,
			amount  NUMERIC(12,2) NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id        BIGSERIAL PRIMARY KEY,
			from_user BIGINT NOT NULL,
			to_user   BIGINT NOT NULL,
			amount    NUMERIC(12,2) NOT NULL,
			ts        TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS deposits (
			id         BIGSERIAL PRIMARY KEY,
			user_id    BIGINT NOT NULL,
			amount     NUMERIC(12,2) NOT NULL,
			label      TEXT NOT NULL UNIQUE,
			status     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			done_at    TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_from_user ON transactions (from_user)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_to_user ON transactions (to_user)`,
		`CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits (status)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("error bootstrapping schema: %w", err)
		}
	}
	return nil
}
