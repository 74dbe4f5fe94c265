package main

import (
	"context"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"

	ledgerstore "github.com/rechtskompass/ledger/store"
	"github.com/rechtskompass/ledger/store/memory"
	"github.com/rechtskompass/ledger/store/mongo"
	"github.com/rechtskompass/ledger/store/postgres"
	"github.com/rechtskompass/ledger/store/sqlite"
)

// openStore picks the backend named by LEDGER_DATABASE_DRIVER. The memory
// store keeps nothing across restarts and is meant for local runs.
func openStore(ctx context.Context, cfg config) (ledgerstore.Store, error) {
	if cfg.DatabaseDriver != "memory" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("LEDGER_DATABASE_URL is required for driver %q", cfg.DatabaseDriver)
	}

	switch cfg.DatabaseDriver {
	case "memory":
		return memory.New(), nil

	case "postgres":
		pgdb := pgdriver.New()
		if err := pgdb.Open(ctx, cfg.DatabaseURL, driver.WithPoolSize(cfg.DatabasePoolSize)); err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db, err := grove.Open(pgdb)
		if err != nil {
			_ = pgdb.Close()
			return nil, fmt.Errorf("grove open: %w", err)
		}
		return postgres.New(db), nil

	case "sqlite":
		// SQLite has a single writer.
		sdb := sqlitedriver.New()
		if err := sdb.Open(ctx, cfg.DatabaseURL, driver.WithPoolSize(1)); err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db, err := grove.Open(sdb)
		if err != nil {
			_ = sdb.Close()
			return nil, fmt.Errorf("grove open: %w", err)
		}
		return sqlite.New(db), nil

	case "mongo":
		mdb := mongodriver.New()
		if err := mdb.Open(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		db, err := grove.Open(mdb)
		if err != nil {
			_ = mdb.Close()
			return nil, fmt.Errorf("grove open: %w", err)
		}
		return mongo.New(db), nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}
