package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quartzlabs/econd/internal/config"
	"github.com/quartzlabs/econd/internal/core/domain"
	"github.com/quartzlabs/econd/internal/port"
)

const (
	// maxRetries bounds the optimistic-concurrency retry loop. Exhaustion is
	// an expected-to-be-rare outcome under heavy contention, reported to the
	// caller as false rather than an error.
	maxRetries = 10

	backoffBase   = 10 * time.Millisecond
	backoffJitter = 25 // extra milliseconds, randomized per attempt
)

// placeholderName is used when a balance write targets an account that has
// never been seen by name. CreateAccount refreshes it on first contact.
const placeholderName = "Unknown"

// Ledger is the single entry point for balance mutations. It layers a
// bounded optimistic retry loop over the backend's compare-and-swap
// primitive and owns currency formatting and the default-balance policy.
//
// The ledger holds no cross-call locks: the persisted version is the only
// concurrency-coordinated state, and the backend's atomic conditional update
// is the sole authority, so the same discipline holds across processes
// sharing one backend.
type Ledger struct {
	store     port.Storage
	publisher port.TransactionPublisher
	currency  config.Currency
	log       *logrus.Logger

	// Read cache, populated only from backend reads and dropped on any local
	// write or bus invalidation.
	mu    sync.RWMutex
	cache map[uuid.UUID]decimal.Decimal
}

// NewLedger wires the ledger over a storage backend. publisher may be nil;
// balance changes are then not broadcast.
func NewLedger(store port.Storage, publisher port.TransactionPublisher, currency config.Currency, log *logrus.Logger) *Ledger {
	if publisher == nil {
		publisher = port.NoopPublisher{}
	}
	return &Ledger{
		store:     store,
		publisher: publisher,
		currency:  currency,
		log:       log,
		cache:     make(map[uuid.UUID]decimal.Decimal),
	}
}

// SetPublisher attaches the invalidation bus. The bus needs the ledger as
// its cache invalidator, so it is wired in a second step during startup,
// before any traffic.
func (l *Ledger) SetPublisher(publisher port.TransactionPublisher) {
	if publisher == nil {
		publisher = port.NoopPublisher{}
	}
	l.publisher = publisher
}

// GetBalance returns the current balance, or the configured default for
// unknown accounts. Backend failures degrade to the default balance rather
// than propagating; reads are never an error.
func (l *Ledger) GetBalance(ctx context.Context, id uuid.UUID) decimal.Decimal {
	l.mu.RLock()
	cached, ok := l.cache[id]
	l.mu.RUnlock()
	if ok {
		return cached
	}

	balance, err := l.store.GetBalance(ctx, id)
	if err != nil {
		l.log.WithError(err).WithField("account", id).Warn("balance read failed, returning default")
		return l.currency.DefaultBalance.Decimal
	}

	l.mu.Lock()
	l.cache[id] = balance
	l.mu.Unlock()
	return balance
}

// MutationOutcome classifies why a balance mutation did or did not apply.
type MutationOutcome int

const (
	OutcomeApplied MutationOutcome = iota

	// OutcomeInsufficient is the terminal business rejection: the freshly
	// read balance could not cover the debit. Never retried.
	OutcomeInsufficient

	// OutcomeContention means the retry budget was exhausted, or the context
	// was cancelled first, without a successful conditional write.
	OutcomeContention

	// OutcomeError means the backend failed; nothing was applied.
	OutcomeError
)

// AddBalance credits amount to the account, creating it with the default
// balance on first contact. Applied exactly once on success; false means
// nothing was applied.
func (l *Ledger) AddBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) bool {
	return l.Credit(ctx, id, amount) == OutcomeApplied
}

// Credit is AddBalance with the failure reason preserved, for callers that
// report the distinction onward.
func (l *Ledger) Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) MutationOutcome {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 && !l.backoff(ctx) {
			return OutcomeContention
		}

		acct, err := l.snapshot(ctx, id)
		if err != nil {
			l.log.WithError(err).WithField("account", id).Error("credit: snapshot failed")
			return OutcomeError
		}

		next := acct.Balance.Add(amount)
		ok, err := l.store.CheckAndSetBalance(ctx, id, next, acct.Version)
		if err != nil {
			l.log.WithError(err).WithField("account", id).Error("credit: conditional write failed")
			return OutcomeError
		}
		if ok {
			l.afterWrite(ctx, id, next)
			return OutcomeApplied
		}
	}

	l.log.WithField("account", id).Warn("credit: retries exhausted")
	return OutcomeContention
}

// RemoveBalance debits amount from the account. False means nothing was
// applied, whether for insufficiency or contention; use Debit to tell them
// apart.
func (l *Ledger) RemoveBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) bool {
	return l.Debit(ctx, id, amount) == OutcomeApplied
}

// Debit removes amount from the account. Insufficient balance is checked
// against each freshly read snapshot and fails immediately without retrying,
// since retrying cannot change the shortfall. Only version conflicts are
// retried.
func (l *Ledger) Debit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) MutationOutcome {
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 && !l.backoff(ctx) {
			return OutcomeContention
		}

		acct, err := l.snapshot(ctx, id)
		if err != nil {
			l.log.WithError(err).WithField("account", id).Error("debit: snapshot failed")
			return OutcomeError
		}

		if acct.Balance.LessThan(amount) {
			return OutcomeInsufficient
		}

		next := acct.Balance.Sub(amount)
		ok, err := l.store.CheckAndSetBalance(ctx, id, next, acct.Version)
		if err != nil {
			l.log.WithError(err).WithField("account", id).Error("debit: conditional write failed")
			return OutcomeError
		}
		if ok {
			l.afterWrite(ctx, id, next)
			return OutcomeApplied
		}
	}

	l.log.WithField("account", id).Warn("debit: retries exhausted")
	return OutcomeContention
}

// SetBalance overwrites the balance unconditionally. Administrative path: it
// bypasses the optimistic check and always wins, including against
// concurrent Add/Remove retries. Not safe to mix with organic traffic on the
// same account.
func (l *Ledger) SetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	if err := l.store.SetBalance(ctx, id, amount); err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	l.afterWrite(ctx, id, amount)
	return nil
}

// ResetBalance sets the account back to the configured default balance.
func (l *Ledger) ResetBalance(ctx context.Context, id uuid.UUID) error {
	return l.SetBalance(ctx, id, l.currency.DefaultBalance.Decimal)
}

// CreateAccount registers the account on first contact. Idempotent:
// re-creation only refreshes the display name when it changed.
func (l *Ledger) CreateAccount(ctx context.Context, id uuid.UUID, name string) error {
	if err := l.store.CreateAccount(ctx, id, name); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// HasAccount reports whether the account exists in the backend.
func (l *Ledger) HasAccount(ctx context.Context, id uuid.UUID) bool {
	ok, err := l.store.HasAccount(ctx, id)
	if err != nil {
		l.log.WithError(err).WithField("account", id).Warn("existence check failed")
		return false
	}
	return ok
}

// DeleteAccount removes the account permanently. Destructive admin action,
// not versioned and not reversible.
func (l *Ledger) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	if err := l.store.DeleteAccount(ctx, id); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	l.InvalidateAccount(id)
	return nil
}

// GetUUID resolves a display name to an account id, case-insensitively.
func (l *Ledger) GetUUID(ctx context.Context, name string) (uuid.UUID, bool) {
	id, ok, err := l.store.GetUUID(ctx, name)
	if err != nil {
		l.log.WithError(err).WithField("name", name).Warn("name lookup failed")
		return uuid.Nil, false
	}
	return id, ok
}

// GetOfflinePlayerNames returns all display names known to the backend.
func (l *Ledger) GetOfflinePlayerNames(ctx context.Context) []string {
	names, err := l.store.GetOfflineNames(ctx)
	if err != nil {
		l.log.WithError(err).Warn("name listing failed")
		return nil
	}
	return names
}

// GetTopAccounts returns up to limit accounts ordered by balance, descending.
func (l *Ledger) GetTopAccounts(ctx context.Context, limit int) []domain.Account {
	accounts, err := l.store.GetTopAccounts(ctx, limit)
	if err != nil {
		l.log.WithError(err).Warn("leaderboard query failed")
		return nil
	}
	return accounts
}

// Format renders the amount with the configured currency symbol.
func (l *Ledger) Format(amount decimal.Decimal) string {
	if l.currency.SymbolBefore {
		return l.currency.Symbol + amount.String()
	}
	return amount.String() + l.currency.Symbol
}

// PublishTransaction broadcasts a rich balance-change message, carrying the
// category, the initiating actor and an optional text to deliver to the
// account's live session on whichever instance hosts it. Best-effort.
func (l *Ledger) PublishTransaction(ctx context.Context, id uuid.UUID, newBalance decimal.Decimal, category, source, message string) {
	l.publisher.PublishTransaction(ctx, domain.BalanceUpdate{
		ID:       id,
		Balance:  newBalance,
		Category: category,
		Source:   source,
		Message:  message,
	})
}

// InvalidateAccount drops the cached balance so the next read goes to the
// backend. Called locally after writes and by the invalidation bus on
// receipt, including for self-published messages.
func (l *Ledger) InvalidateAccount(id uuid.UUID) {
	l.mu.Lock()
	delete(l.cache, id)
	l.mu.Unlock()
}

// snapshot reads a consistent account record for the retry loop, creating
// the account with the default balance on first contact.
func (l *Ledger) snapshot(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	acct, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		if err := l.store.CreateAccount(ctx, id, placeholderName); err != nil {
			return nil, err
		}
		acct, err = l.store.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		if acct == nil {
			return nil, fmt.Errorf("account %s missing after create", id)
		}
	}
	return acct, nil
}

func (l *Ledger) afterWrite(ctx context.Context, id uuid.UUID, balance decimal.Decimal) {
	l.InvalidateAccount(id)
	l.publisher.PublishTransaction(ctx, domain.BalanceUpdate{ID: id, Balance: balance})
}

// backoff sleeps a small randomized delay to de-correlate contending
// writers. Returns false when the context was cancelled first.
func (l *Ledger) backoff(ctx context.Context) bool {
	delay := backoffBase + time.Duration(rand.Intn(backoffJitter))*time.Millisecond
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
