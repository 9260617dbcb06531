package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceUpdate is the wire message broadcast on the invalidation bus after a
// successful mutation. Receivers treat it as a cache hint only; the storage
// backend remains the source of truth.
type BalanceUpdate struct {
	ID       uuid.UUID       `json:"id"`
	Balance  decimal.Decimal `json:"balance"`
	Category string          `json:"category,omitempty"`
	Source   string          `json:"source,omitempty"`
	Message  string          `json:"message,omitempty"`
}
