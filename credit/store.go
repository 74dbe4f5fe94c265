package credit

import (
	"context"

	"github.com/rechtskompass/ledger/id"
)

// Store is append-only: there is no update or delete.
type Store interface {
	AppendTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, accountID id.AccountID, opts ListOpts) ([]*Transaction, error)
}

// ListOpts filters ListTransactions. Results are newest first.
type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}
