// Package account holds the user account model: identity, assigned plan and
// the references the payment provider knows the account by.
package account

import (
	"strings"
	"time"

	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/types"
)

// Account is one registered user.
type Account struct {
	types.Entity
	ID          id.AccountID `json:"id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"display_name,omitempty"`
	PlanID      plan.ID      `json:"plan_id"`

	// CustomerID and SubscriptionID are provider references. Both are empty
	// until the first completed checkout.
	CustomerID     string `json:"customer_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// New returns a free-tier account.
func New(email, displayName string, now time.Time) *Account {
	return &Account{
		Entity:      types.NewEntity(now),
		ID:          id.NewAccountID(),
		Email:       NormalizeEmail(email),
		DisplayName: strings.TrimSpace(displayName),
		PlanID:      plan.Free,
	}
}

// NormalizeEmail lower-cases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Paid reports whether the account is on a paid tier.
func (a *Account) Paid() bool { return a.PlanID != plan.Free }
