package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/quartzlabs/econd/internal/core/domain"
)

// TransactionPublisher broadcasts a balance change to other instances sharing
// the same backend. Publishing is best-effort: implementations swallow
// transport failures and the ledger's correctness never depends on delivery.
type TransactionPublisher interface {
	PublishTransaction(ctx context.Context, update domain.BalanceUpdate)
}

// CacheInvalidator drops any locally cached copy of an account so the next
// read fetches fresh data from the backend.
type CacheInvalidator interface {
	InvalidateAccount(id uuid.UUID)
}

// SessionNotifier delivers a message to a live session for the account, if
// one exists on this instance. Returns false when the account has no session
// here.
type SessionNotifier interface {
	NotifySession(id uuid.UUID, message string) bool
}

// NoopPublisher is the default publisher when the invalidation bus is
// disabled or its transport is unavailable.
type NoopPublisher struct{}

func (NoopPublisher) PublishTransaction(context.Context, domain.BalanceUpdate) {}
