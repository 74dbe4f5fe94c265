package event

import "context"

// Store is the processed-events ledger.
type Store interface {
	// ClaimEvent inserts r unless its ID is already present. It reports
	// whether this call made the claim.
	ClaimEvent(ctx context.Context, r *Record) (bool, error)
	GetEvent(ctx context.Context, eventID string) (*Record, error)
}
