// Package store defines the persistence contract shared by all backends.
package store

import (
	"context"

	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/event"
	"github.com/rechtskompass/ledger/usage"
)

// Store is the unified storage interface. Method names carry the entity so
// the per-entity interfaces can be embedded without collisions.
type Store interface {
	account.Store
	usage.Store
	credit.Store
	event.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
