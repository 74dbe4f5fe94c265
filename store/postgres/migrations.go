package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Ledger store.
var Migrations = migrate.NewGroup("ledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_ledger_accounts",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_accounts (
    id              TEXT PRIMARY KEY,
    email           TEXT NOT NULL,
    display_name    TEXT NOT NULL DEFAULT '',
    plan_id         TEXT NOT NULL DEFAULT 'free',
    customer_id     TEXT NOT NULL DEFAULT '',
    subscription_id TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_accounts_email ON ledger_accounts (email);
CREATE INDEX IF NOT EXISTS idx_ledger_accounts_customer ON ledger_accounts (customer_id) WHERE customer_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ledger_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ledger_usage",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_usage (
    account_id        TEXT PRIMARY KEY REFERENCES ledger_accounts (id) ON DELETE CASCADE,
    credits           BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
    messages_today    BIGINT NOT NULL DEFAULT 0,
    messages_day      TEXT NOT NULL DEFAULT '',
    letters_generated BIGINT NOT NULL DEFAULT 0,
    scans_used        BIGINT NOT NULL DEFAULT 0,
    period_start      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    period_end        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ledger_usage`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ledger_credit_transactions",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_credit_transactions (
    id            TEXT PRIMARY KEY,
    account_id    TEXT NOT NULL REFERENCES ledger_accounts (id) ON DELETE CASCADE,
    amount        BIGINT NOT NULL,
    kind          TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    balance_after BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_ledger_credit_tx_account ON ledger_credit_transactions (account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ledger_credit_tx_kind ON ledger_credit_transactions (account_id, kind);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ledger_credit_transactions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_ledger_billing_events",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_billing_events (
    id           TEXT PRIMARY KEY,
    type         TEXT NOT NULL DEFAULT '',
    provider     TEXT NOT NULL DEFAULT '',
    processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS ledger_billing_events`)
				return err
			},
		},
	)
}
