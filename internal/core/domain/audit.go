package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction categories recorded in the audit log.
const (
	CategoryTransfer   = "transfer"
	CategoryAdminGrant = "admin-grant"
	CategoryAdminSet   = "admin-set"
	CategorySale       = "sale"
)

// AuditEntry is one immutable record of a balance-affecting event. Entries
// are append-only; there is no update or delete path.
type AuditEntry struct {
	Timestamp time.Time
	Category  string
	Source    string
	Target    string
	Amount    decimal.Decimal
	Detail    string
}
