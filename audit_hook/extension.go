// Package audithook bridges Ledger lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any audit backend. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnAccountRegistered     = (*Extension)(nil)
	_ plugin.OnPlanChanged           = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled  = (*Extension)(nil)
	_ plugin.OnCreditsGranted        = (*Extension)(nil)
	_ plugin.OnCreditsSpent          = (*Extension)(nil)
	_ plugin.OnEntitlementChecked    = (*Extension)(nil)
	_ plugin.OnQuotaExceeded         = (*Extension)(nil)
	_ plugin.OnBillingEventProcessed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Ledger lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	catalog  *plan.Catalog
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		catalog:  plan.Default(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account and subscription hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered implements plugin.OnAccountRegistered.
func (e *Extension) OnAccountRegistered(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionAccountRegistered, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.ID.String(), CategoryAccount, "",
		"plan_id", a.PlanID,
	)
}

// OnPlanChanged implements plugin.OnPlanChanged.
func (e *Extension) OnPlanChanged(ctx context.Context, a *account.Account, from, to plan.ID) error {
	action := ActionSubscriptionUpgraded
	if e.catalog.Compare(from, to) == plan.Downgrade {
		action = ActionSubscriptionDowngraded
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, a.ID.String(), CategorySubscription, "",
		"from", from,
		"to", to,
		"subscription_id", a.SubscriptionID,
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, a.ID.String(), CategorySubscription, "",
		"customer_id", a.CustomerID,
	)
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (e *Extension) OnCreditsGranted(ctx context.Context, tx *credit.Transaction) error {
	return e.recordTx(ctx, ActionCreditsGranted, tx)
}

// OnCreditsSpent implements plugin.OnCreditsSpent.
func (e *Extension) OnCreditsSpent(ctx context.Context, tx *credit.Transaction) error {
	return e.recordTx(ctx, ActionCreditsSpent, tx)
}

func (e *Extension) recordTx(ctx context.Context, action string, tx *credit.Transaction) error {
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceCredit, tx.ID.String(), CategoryCredits, "",
		"account_id", tx.AccountID.String(),
		"kind", tx.Kind,
		"amount", tx.Amount,
		"balance_after", tx.BalanceAfter,
	)
}

// ──────────────────────────────────────────────────
// Entitlement hooks
// ──────────────────────────────────────────────────

// OnEntitlementChecked implements plugin.OnEntitlementChecked. Only
// denials are audited.
func (e *Extension) OnEntitlementChecked(ctx context.Context, accountID id.AccountID, result entitlement.Result) error {
	if result.Allowed {
		return nil
	}
	return e.record(ctx, ActionEntitlementDenied, SeverityInfo, OutcomeFailure,
		ResourceEntitlement, accountID.String(), CategoryAccess, result.Reason,
		"action", result.Action,
	)
}

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (e *Extension) OnQuotaExceeded(ctx context.Context, accountID id.AccountID, result entitlement.Result) error {
	return e.record(ctx, ActionQuotaExceeded, SeverityWarning, OutcomeFailure,
		ResourceEntitlement, accountID.String(), CategoryAccess, result.Reason,
		"action", result.Action,
		"used", result.Used,
		"limit", result.Limit.String(),
	)
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnBillingEventProcessed implements plugin.OnBillingEventProcessed.
// Ignored, skipped and duplicate events are not audited.
func (e *Extension) OnBillingEventProcessed(ctx context.Context, eventID, eventType, outcome string, elapsed time.Duration) error {
	var action, severity, result string
	switch outcome {
	case "applied":
		action, severity, result = ActionBillingEventApplied, SeverityInfo, OutcomeSuccess
	case "unresolved":
		action, severity, result = ActionBillingEventUnresolved, SeverityWarning, OutcomeFailure
	case "failed":
		action, severity, result = ActionBillingEventFailed, SeverityCritical, OutcomeFailure
	default:
		return nil
	}
	return e.record(ctx, action, severity, result,
		ResourceBillingEvent, eventID, CategoryIntegration, "",
		"event_type", eventType,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
