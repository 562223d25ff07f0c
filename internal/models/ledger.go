package models

import "time"

// CreditEntryKind classifies ledger entries.
type CreditEntryKind string

const (
	CreditGrant  CreditEntryKind = "grant"
	CreditDebit  CreditEntryKind = "debit"
	CreditRefund CreditEntryKind = "refund"
)

// CreditEntry is an immutable record of one balance change. BalanceAfter is
// the subscription's remaining credits once the change was applied.
type CreditEntry struct {
	ID             string          `db:"id" json:"id"`
	ClientID       int64           `db:"client_id" json:"clientId"`
	SubscriptionID int64           `db:"subscription_id" json:"subscriptionId"`
	Delta          int             `db:"delta" json:"delta"`
	BalanceAfter   int             `db:"balance_after" json:"balanceAfter"`
	Kind           CreditEntryKind `db:"kind" json:"kind"`
	Reference      *string         `db:"reference" json:"reference,omitempty"`
	Memo           string          `db:"memo" json:"memo"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}
