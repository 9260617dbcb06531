package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quartzlabs/econd/internal/core/domain"
)

// Dialect captures the wire-protocol differences between the SQL variants:
// placeholder style, auto-increment syntax and column types. Everything else
// is shared by SQLAdapter.
type Dialect interface {
	Name() string

	// Rebind rewrites ?-style placeholders into the driver's native style.
	Rebind(query string) string

	CreateAccountsTable(prefix string) string
	CreateTransactionsTable(prefix string) string

	// AddVersionColumn upgrades a pre-versioning schema in place.
	AddVersionColumn(prefix string) string

	// UpsertBalance is a single-statement write of (uuid, name, amount) that
	// inserts the account at version 1 or overwrites the balance and bumps
	// the version, without touching the name of an existing row.
	UpsertBalance(prefix string) string
}

// SQLAdapter is the base implementation shared by the MySQL, PostgreSQL and
// SQLite backends. Accounts and audit entries are rows; the compare-and-swap
// primitive is a conditional UPDATE on (uuid, version).
type SQLAdapter struct {
	db             *sql.DB
	dialect        Dialect
	prefix         string
	defaultBalance decimal.Decimal
	log            *logrus.Logger
}

func NewSQLAdapter(db *sql.DB, dialect Dialect, prefix string, defaultBalance decimal.Decimal, log *logrus.Logger) *SQLAdapter {
	return &SQLAdapter{
		db:             db,
		dialect:        dialect,
		prefix:         prefix,
		defaultBalance: defaultBalance,
		log:            log,
	}
}

// Load pings the pool, creates missing tables and runs the defensive
// version-column migration so pre-versioning schemas upgrade transparently.
func (s *SQLAdapter) Load(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.dialect.Name(), err)
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.CreateAccountsTable(s.prefix)); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.CreateTransactionsTable(s.prefix)); err != nil {
		return fmt.Errorf("create transactions table: %w", err)
	}

	return s.migrateVersionColumn(ctx)
}

func (s *SQLAdapter) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLAdapter) GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT balance FROM %saccounts WHERE uuid = ?`), id.String(),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaultBalance, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

// SetBalance writes the balance in one atomic statement: an unknown account
// is registered under the placeholder name with the requested balance, an
// existing one keeps its name and gets overwritten.
func (s *SQLAdapter) SetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		s.dialect.Rebind(s.dialect.UpsertBalance(s.prefix)),
		id.String(), "Unknown", amount,
	)
	if err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

func (s *SQLAdapter) CheckAndSetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		s.q(`UPDATE %saccounts SET balance = ?, version = version + 1 WHERE uuid = ? AND version = ?`),
		amount, id.String(), expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("conditional update: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (s *SQLAdapter) HasAccount(ctx context.Context, id uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT 1 FROM %saccounts WHERE uuid = ?`), id.String(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query account: %w", err)
	}
	return true, nil
}

func (s *SQLAdapter) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	acct := domain.Account{ID: id}
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT name, balance, version FROM %saccounts WHERE uuid = ?`), id.String(),
	).Scan(&acct.Name, &acct.Balance, &acct.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &acct, nil
}

func (s *SQLAdapter) CreateAccount(ctx context.Context, id uuid.UUID, name string) error {
	var current string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT name FROM %saccounts WHERE uuid = ?`), id.String(),
	).Scan(&current)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			s.q(`INSERT INTO %saccounts (uuid, name, balance, version) VALUES (?, ?, ?, 0)`),
			id.String(), name, s.defaultBalance,
		)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("query account: %w", err)
	case current == name:
		return nil
	default:
		_, err = s.db.ExecContext(ctx,
			s.q(`UPDATE %saccounts SET name = ? WHERE uuid = ?`), name, id.String(),
		)
		if err != nil {
			return fmt.Errorf("update account name: %w", err)
		}
		return nil
	}
}

func (s *SQLAdapter) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM %saccounts WHERE uuid = ?`), id.String(),
	)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (s *SQLAdapter) GetUUID(ctx context.Context, name string) (uuid.UUID, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT uuid FROM %saccounts WHERE LOWER(name) = LOWER(?)`), name,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("query uuid: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("parse stored uuid %q: %w", raw, err)
	}
	return id, true, nil
}

func (s *SQLAdapter) GetOfflineNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT name FROM %saccounts`))
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLAdapter) GetTopAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT uuid, name, balance, version FROM %saccounts ORDER BY balance DESC LIMIT ?`), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var (
			acct domain.Account
			raw  string
		)
		if err := rows.Scan(&raw, &acct.Name, &acct.Balance, &acct.Version); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if acct.ID, err = uuid.Parse(raw); err != nil {
			return nil, fmt.Errorf("parse stored uuid %q: %w", raw, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (s *SQLAdapter) LogTransaction(ctx context.Context, entry domain.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO %stransactions (timestamp, source, target, amount, type, details) VALUES (?, ?, ?, ?, ?, ?)`),
		entry.Timestamp.UnixMilli(), entry.Source, entry.Target, entry.Amount, entry.Category, entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *SQLAdapter) SearchLogs(ctx context.Context, target string, cutoff time.Time) ([]domain.AuditEntry, error) {
	query := `SELECT timestamp, source, target, amount, type, details FROM %stransactions WHERE timestamp > ?`
	args := []interface{}{cutoff.UnixMilli()}

	if target != "*" {
		query += ` AND (LOWER(source) LIKE ? OR LOWER(target) LIKE ?)`
		pattern := "%" + strings.ToLower(target) + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			entry  domain.AuditEntry
			millis int64
		)
		if err := rows.Scan(&millis, &entry.Source, &entry.Target, &entry.Amount, &entry.Category, &entry.Detail); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		entry.Timestamp = time.UnixMilli(millis)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLAdapter) SupportsTransactionLog() bool { return true }

// q expands the table prefix and rebinds placeholders for the dialect.
func (s *SQLAdapter) q(query string) string {
	return s.dialect.Rebind(strings.ReplaceAll(query, "%s", s.prefix))
}

// migrateVersionColumn probes for the version column and adds it with a
// default of zero when missing, so data written before optimistic locking
// keeps working.
func (s *SQLAdapter) migrateVersionColumn(ctx context.Context) error {
	var v int64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT version FROM %saccounts LIMIT 1`),
	).Scan(&v)
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return nil
	}

	s.log.WithField("backend", s.dialect.Name()).Info("adding version column to accounts table")
	if _, err := s.db.ExecContext(ctx, s.dialect.AddVersionColumn(s.prefix)); err != nil {
		return fmt.Errorf("add version column: %w", err)
	}
	return nil
}

// rebindPositional converts ?-style placeholders to $1..$n for drivers that
// use numbered parameters.
func rebindPositional(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
