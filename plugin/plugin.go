// Package plugin provides the hook system for the ledger engine.
// Plugins implement any subset of the hook interfaces below; the registry
// discovers them at registration time.
package plugin

import (
	"context"
	"time"

	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/usage"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. l is the *ledger.Ledger.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered is called after a new account and its usage ledger
// were created.
type OnAccountRegistered interface {
	Plugin
	OnAccountRegistered(ctx context.Context, a *account.Account) error
}

// OnPlanChanged is called after an account moved from one tier to another.
type OnPlanChanged interface {
	Plugin
	OnPlanChanged(ctx context.Context, a *account.Account, from, to plan.ID) error
}

// OnSubscriptionCanceled is called after an account was returned to the
// free tier.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, a *account.Account) error
}

// ──────────────────────────────────────────────────
// Credit and usage hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted is called after a grant or purchase was recorded.
type OnCreditsGranted interface {
	Plugin
	OnCreditsGranted(ctx context.Context, tx *credit.Transaction) error
}

// OnCreditsSpent is called after a consumption was recorded.
type OnCreditsSpent interface {
	Plugin
	OnCreditsSpent(ctx context.Context, tx *credit.Transaction) error
}

// OnUsageRecorded is called after a usage counter was incremented.
type OnUsageRecorded interface {
	Plugin
	OnUsageRecorded(ctx context.Context, accountID id.AccountID, kind usage.Kind) error
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked is called for every server-side entitlement check.
type OnEntitlementChecked interface {
	Plugin
	OnEntitlementChecked(ctx context.Context, accountID id.AccountID, result entitlement.Result) error
}

// OnQuotaExceeded is called when a check was denied.
type OnQuotaExceeded interface {
	Plugin
	OnQuotaExceeded(ctx context.Context, accountID id.AccountID, result entitlement.Result) error
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnBillingEventProcessed is called once per provider event with the
// processing outcome.
type OnBillingEventProcessed interface {
	Plugin
	OnBillingEventProcessed(ctx context.Context, eventID, eventType, outcome string, elapsed time.Duration) error
}
