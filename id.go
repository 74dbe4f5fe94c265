package ledger

import "github.com/rechtskompass/ledger/id"

// ID is the primary identifier type for all persisted entities.
type ID = id.ID

// AccountID identifies an account.
type AccountID = id.AccountID

// TransactionID identifies a credit transaction.
type TransactionID = id.TransactionID
