package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/quartzlabs/econd/internal/config"
)

type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Rebind(query string) string { return query }

func (SQLiteDialect) CreateAccountsTable(prefix string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %saccounts (
		uuid TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		balance NUMERIC NOT NULL,
		version INTEGER NOT NULL DEFAULT 0
	)`, prefix)
}

func (SQLiteDialect) CreateTransactionsTable(prefix string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %stransactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		type TEXT NOT NULL,
		details TEXT
	)`, prefix)
}

func (SQLiteDialect) AddVersionColumn(prefix string) string {
	return fmt.Sprintf(`ALTER TABLE %saccounts ADD COLUMN version INTEGER NOT NULL DEFAULT 0`, prefix)
}

func (SQLiteDialect) UpsertBalance(prefix string) string {
	return fmt.Sprintf(`INSERT INTO %saccounts (uuid, name, balance, version) VALUES (?, ?, ?, 1)
		ON CONFLICT (uuid) DO UPDATE SET balance = excluded.balance, version = version + 1`, prefix)
}

// OpenSQLite opens the embedded database file. A single connection avoids
// SQLITE_BUSY churn under the ledger's retry loop; the driver serializes
// writers regardless.
func OpenSQLite(cfg config.Storage) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.File)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
