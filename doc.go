// Package ledger is the entitlement and credits engine behind the
// Rechtskompass guidance app.
//
// It decides which plan an account is on, what that plan allows, how much
// of it has been used and how many credits are left. The payment provider
// is the source of truth for subscription state; the engine only applies
// the transitions its webhooks announce.
//
//   - Static plan catalog with fail-closed lookups (package plan)
//   - Pure entitlement decisions over a usage snapshot (package entitlement)
//   - Per-account usage counters updated atomically in the store
//   - Append-only credit audit trail (package credit)
//   - Idempotent webhook processing (packages billing and webhook)
//
// # Quick Start
//
//	import (
//	    "github.com/rechtskompass/ledger"
//	    "github.com/rechtskompass/ledger/store/memory"
//	)
//
//	l := ledger.New(memory.New(), ledger.WithLogger(logger))
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	acct, err := l.RegisterAccount(ctx, "erika@example.de", "Erika")
//
// # Checking and recording usage
//
// Entitlement checks never consume anything. Record the consumption once
// the guarded action actually ran:
//
//	res, err := l.Entitled(ctx, acct.ID, entitlement.ActionChat)
//	if err != nil || !res.Allowed {
//	    return res.Reason
//	}
//	// ... answer the chat message ...
//	_ = l.RecordConsumption(ctx, acct.ID, usage.KindChat)
//
// Letters are never denied. On the free tier and once the monthly quota is
// used up, the result carries the per-letter price in Cost.
//
// # Plan transitions
//
// AssignPlan, RenewPlan and Downgrade implement the subscription lifecycle
// free → active(tier) → active(tier) → free. Grants replace the balance;
// they never accumulate across periods.
//
// # Stores
//
// store/memory is safe for tests and single-process use. store/postgres
// and store/sqlite use grove with migrations; store/mongo uses grove's
// mongo driver. All of them implement increments as single atomic updates.
//
// # Plugins
//
// Register plugins with WithPlugin. audit_hook turns lifecycle hooks into
// audit events; observability exports counters through a MetricFactory.
package ledger
