package account

import (
	"context"

	"github.com/rechtskompass/ledger/id"
)

// Store persists accounts. CreateAccount also creates the account's empty
// usage ledger so the two always exist together.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	GetAccountByCustomer(ctx context.Context, customerID string) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
}
