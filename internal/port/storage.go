package port

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quartzlabs/econd/internal/core/domain"
)

// Storage is the durable backend for accounts and the transaction audit
// table. Implementations own their resource lifecycle (connection pool or
// file handle) between Load and Close.
type Storage interface {
	// Load acquires the backend's resources (opens the pool, reads the file).
	// Safe to call once per process lifetime.
	Load(ctx context.Context) error

	// Close flushes pending state and releases resources.
	Close(ctx context.Context) error

	// GetBalance returns the account's balance, or the configured default
	// balance when no account exists. Reads never fail for unknown accounts.
	GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error)

	// SetBalance overwrites the balance unconditionally and increments the
	// version. Administrative path; bypasses the optimistic check.
	SetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error

	// CheckAndSetBalance writes the balance only if the stored version still
	// equals expectedVersion, incrementing it on success. Returns false on a
	// version mismatch without making any change. This is the sole
	// concurrency-safe mutation primitive.
	CheckAndSetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error)

	// HasAccount reports whether the account exists.
	HasAccount(ctx context.Context, id uuid.UUID) (bool, error)

	// GetAccount returns the full record including the current version, or
	// nil when absent.
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)

	// CreateAccount inserts the account with the default balance and version
	// zero if absent; if present it only refreshes the name when changed.
	CreateAccount(ctx context.Context, id uuid.UUID, name string) error

	// DeleteAccount removes the account permanently. Not versioned.
	DeleteAccount(ctx context.Context, id uuid.UUID) error

	// GetUUID resolves a display name to an account id, case-insensitively.
	// The second return is false when no account carries that name.
	GetUUID(ctx context.Context, name string) (uuid.UUID, bool, error)

	// GetOfflineNames returns all known display names.
	GetOfflineNames(ctx context.Context) ([]string, error)

	// GetTopAccounts returns up to limit accounts ordered by balance,
	// descending. Tie order is backend-native and not significant.
	GetTopAccounts(ctx context.Context, limit int) ([]domain.Account, error)

	// LogTransaction appends an entry to the structured transaction table.
	// A no-op for backends that rely on the file-based audit fallback.
	LogTransaction(ctx context.Context, entry domain.AuditEntry) error

	// SearchLogs returns entries newer than cutoff, newest first. target "*"
	// matches everything, otherwise a case-insensitive substring match
	// against source or target.
	SearchLogs(ctx context.Context, target string, cutoff time.Time) ([]domain.AuditEntry, error)

	// SupportsTransactionLog reports whether LogTransaction/SearchLogs are
	// backed by structured storage.
	SupportsTransactionLog() bool
}
