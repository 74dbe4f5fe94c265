// Package credit holds the append-only credit audit trail.
package credit

import (
	"time"

	"github.com/rechtskompass/ledger/id"
)

// Kind classifies a credit movement.
type Kind string

const (
	KindSubscriptionCredit  Kind = "subscription_credit"
	KindSubscriptionRenewal Kind = "subscription_renewal"
	KindPurchase            Kind = "purchase"
	KindConsumption         Kind = "consumption"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSubscriptionCredit, KindSubscriptionRenewal, KindPurchase, KindConsumption:
		return true
	}
	return false
}

// Transaction is a write-once record of one credit movement. Amount is
// signed; BalanceAfter is the balance once the movement was applied.
type Transaction struct {
	ID           id.TransactionID `json:"id"`
	AccountID    id.AccountID     `json:"account_id"`
	Amount       int64            `json:"amount"`
	Kind         Kind             `json:"kind"`
	Description  string           `json:"description"`
	BalanceAfter int64            `json:"balance_after"`
	CreatedAt    time.Time        `json:"created_at"`
}

// NewTransaction stamps a new transaction id and creation time.
func NewTransaction(accountID id.AccountID, kind Kind, amount, balanceAfter int64, description string, now time.Time) *Transaction {
	return &Transaction{
		ID:           id.NewTransactionID(),
		AccountID:    accountID,
		Amount:       amount,
		Kind:         kind,
		Description:  description,
		BalanceAfter: balanceAfter,
		CreatedAt:    now.UTC(),
	}
}
