package usage

import (
	"context"
	"time"

	"github.com/rechtskompass/ledger/id"
)

// Store persists usage ledgers. Every mutation is a single atomic update
// keyed by account id; none of them read-modify-write in the caller.
type Store interface {
	GetUsage(ctx context.Context, accountID id.AccountID) (*Ledger, error)

	// IncrementUsage adds one unit of kind. For KindChat it rolls the daily
	// counter over when day differs from the stored day.
	IncrementUsage(ctx context.Context, accountID id.AccountID, kind Kind, day time.Time) error

	// SetCredits replaces the balance.
	SetCredits(ctx context.Context, accountID id.AccountID, amount int64) error

	// AdjustCredits adds delta and returns the new balance. A delta that
	// would take the balance below zero fails with ledger.ErrInsufficientCredits.
	AdjustCredits(ctx context.Context, accountID id.AccountID, delta int64) (int64, error)

	// ResetUsage zeroes counters and sets the period window.
	ResetUsage(ctx context.Context, accountID id.AccountID, start, end time.Time) error

	// ClearUsage zeroes credits and counters.
	ClearUsage(ctx context.Context, accountID id.AccountID) error
}
