package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/quartzlabs/econd/internal/config"
)

type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Rebind(query string) string { return rebindPositional(query) }

func (PostgresDialect) CreateAccountsTable(prefix string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %saccounts (
		uuid VARCHAR(36) PRIMARY KEY,
		name VARCHAR(64) NOT NULL,
		balance NUMERIC(20, 2) NOT NULL,
		version BIGINT NOT NULL DEFAULT 0
	)`, prefix)
}

func (PostgresDialect) CreateTransactionsTable(prefix string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %stransactions (
		id BIGSERIAL PRIMARY KEY,
		timestamp BIGINT NOT NULL,
		source VARCHAR(64) NOT NULL,
		target VARCHAR(64) NOT NULL,
		amount NUMERIC(20, 2) NOT NULL,
		type VARCHAR(32) NOT NULL,
		details TEXT
	)`, prefix)
}

func (PostgresDialect) AddVersionColumn(prefix string) string {
	return fmt.Sprintf(`ALTER TABLE %saccounts ADD COLUMN version BIGINT NOT NULL DEFAULT 0`, prefix)
}

func (PostgresDialect) UpsertBalance(prefix string) string {
	return fmt.Sprintf(`INSERT INTO %saccounts (uuid, name, balance, version) VALUES (?, ?, ?, 1)
		ON CONFLICT (uuid) DO UPDATE SET balance = excluded.balance, version = %saccounts.version + 1`,
		prefix, prefix)
}

// OpenPostgres opens the PostgreSQL pool with the configured sizing.
func OpenPostgres(cfg config.Storage) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize / 2)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	return db, nil
}
