package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/quartzlabs/econd/internal/config"
)

type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) Rebind(query string) string { return query }

func (MySQLDialect) CreateAccountsTable(prefix string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %saccounts (
		uuid VARCHAR(36) PRIMARY KEY,
		name VARCHAR(64) NOT NULL,
		balance DECIMAL(20, 2) NOT NULL,
		version BIGINT NOT NULL DEFAULT 0
	)`, prefix)
}

func (MySQLDialect) CreateTransactionsTable(prefix string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %stransactions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		timestamp BIGINT NOT NULL,
		source VARCHAR(64) NOT NULL,
		target VARCHAR(64) NOT NULL,
		amount DECIMAL(20, 2) NOT NULL,
		type VARCHAR(32) NOT NULL,
		details TEXT
	)`, prefix)
}

func (MySQLDialect) AddVersionColumn(prefix string) string {
	return fmt.Sprintf(`ALTER TABLE %saccounts ADD COLUMN version BIGINT NOT NULL DEFAULT 0`, prefix)
}

func (MySQLDialect) UpsertBalance(prefix string) string {
	return fmt.Sprintf(`INSERT INTO %saccounts (uuid, name, balance, version) VALUES (?, ?, ?, 1)
		ON DUPLICATE KEY UPDATE balance = VALUES(balance), version = version + 1`, prefix)
}

// OpenMySQL opens the MySQL pool with the configured sizing.
func OpenMySQL(cfg config.Storage) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.PoolSize)
	db.SetMaxIdleConns(cfg.PoolSize / 2)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	return db, nil
}
