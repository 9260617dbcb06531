package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is a balance record keyed by a stable 128-bit identifier. The id
// never changes; the display name is refreshed whenever the owner is seen
// under a different one.
type Account struct {
	ID      uuid.UUID
	Name    string
	Balance decimal.Decimal
	Version int64 // optimistic locking, +1 per successful balance write
}
