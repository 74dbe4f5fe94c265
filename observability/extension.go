// Package observability provides a metrics extension for Ledger that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/plugin"
	"github.com/rechtskompass/ledger/usage"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnAccountRegistered     = (*MetricsExtension)(nil)
	_ plugin.OnPlanChanged           = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled  = (*MetricsExtension)(nil)
	_ plugin.OnCreditsGranted        = (*MetricsExtension)(nil)
	_ plugin.OnCreditsSpent          = (*MetricsExtension)(nil)
	_ plugin.OnUsageRecorded         = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementChecked    = (*MetricsExtension)(nil)
	_ plugin.OnQuotaExceeded         = (*MetricsExtension)(nil)
	_ plugin.OnBillingEventProcessed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Ledger plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory
	catalog *plan.Catalog

	// Account metrics
	AccountsRegistered Counter

	// Subscription metrics
	SubscriptionUpgraded   Counter
	SubscriptionDowngraded Counter
	SubscriptionCanceled   Counter

	// Credit metrics
	CreditsGranted     Counter
	CreditsSpent       Counter
	CreditTransactions Counter

	// Usage metrics
	ChatMessages     Counter
	LettersGenerated Counter
	DocumentsScanned Counter

	// Entitlement metrics
	EntitlementChecks Counter
	EntitlementDenied Counter
	QuotaExceeded     Counter

	// Billing webhook metrics
	BillingEventsProcessed  Counter
	BillingEventsApplied    Counter
	BillingEventsDuplicate  Counter
	BillingEventsUnresolved Counter
	BillingEventsFailed     Counter
	BillingLatency          Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory standalone.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,
		catalog: plan.Default(),

		AccountsRegistered: factory.Counter("ledger.account.registered"),

		SubscriptionUpgraded:   factory.Counter("ledger.subscription.upgraded"),
		SubscriptionDowngraded: factory.Counter("ledger.subscription.downgraded"),
		SubscriptionCanceled:   factory.Counter("ledger.subscription.canceled"),

		CreditsGranted:     factory.Counter("ledger.credits.granted"),
		CreditsSpent:       factory.Counter("ledger.credits.spent"),
		CreditTransactions: factory.Counter("ledger.credits.transactions"),

		ChatMessages:     factory.Counter("ledger.usage.chat"),
		LettersGenerated: factory.Counter("ledger.usage.letter"),
		DocumentsScanned: factory.Counter("ledger.usage.scan"),

		EntitlementChecks: factory.Counter("ledger.entitlement.checks"),
		EntitlementDenied: factory.Counter("ledger.entitlement.denied"),
		QuotaExceeded:     factory.Counter("ledger.quota.exceeded"),

		BillingEventsProcessed:  factory.Counter("ledger.billing.events.processed"),
		BillingEventsApplied:    factory.Counter("ledger.billing.events.applied"),
		BillingEventsDuplicate:  factory.Counter("ledger.billing.events.duplicate"),
		BillingEventsUnresolved: factory.Counter("ledger.billing.events.unresolved"),
		BillingEventsFailed:     factory.Counter("ledger.billing.events.failed"),
		BillingLatency:          factory.Histogram("ledger.billing.latency_ms"),
	}
}

// WithCatalog sets the catalog used to tell upgrades from downgrades.
func (m *MetricsExtension) WithCatalog(c *plan.Catalog) *MetricsExtension {
	if c != nil {
		m.catalog = c
	}
	return m
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Account and plan hooks
// ──────────────────────────────────────────────────

// OnAccountRegistered implements plugin.OnAccountRegistered.
func (m *MetricsExtension) OnAccountRegistered(_ context.Context, _ *account.Account) error {
	m.AccountsRegistered.Inc()
	return nil
}

// OnPlanChanged implements plugin.OnPlanChanged.
func (m *MetricsExtension) OnPlanChanged(_ context.Context, _ *account.Account, from, to plan.ID) error {
	switch m.catalog.Compare(from, to) {
	case plan.Upgrade:
		m.SubscriptionUpgraded.Inc()
	case plan.Downgrade:
		m.SubscriptionDowngraded.Inc()
	}
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *account.Account) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (m *MetricsExtension) OnCreditsGranted(_ context.Context, tx *credit.Transaction) error {
	m.CreditTransactions.Inc()
	if tx.Amount > 0 {
		m.CreditsGranted.Add(float64(tx.Amount))
	}
	return nil
}

// OnCreditsSpent implements plugin.OnCreditsSpent.
func (m *MetricsExtension) OnCreditsSpent(_ context.Context, tx *credit.Transaction) error {
	m.CreditTransactions.Inc()
	m.CreditsSpent.Add(float64(-tx.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Usage and entitlement hooks
// ──────────────────────────────────────────────────

// OnUsageRecorded implements plugin.OnUsageRecorded.
func (m *MetricsExtension) OnUsageRecorded(_ context.Context, _ id.AccountID, kind usage.Kind) error {
	switch kind {
	case usage.KindChat:
		m.ChatMessages.Inc()
	case usage.KindLetter:
		m.LettersGenerated.Inc()
	case usage.KindScan:
		m.DocumentsScanned.Inc()
	}
	return nil
}

// OnEntitlementChecked implements plugin.OnEntitlementChecked.
func (m *MetricsExtension) OnEntitlementChecked(_ context.Context, _ id.AccountID, result entitlement.Result) error {
	m.EntitlementChecks.Inc()
	if !result.Allowed {
		m.EntitlementDenied.Inc()
	}
	return nil
}

// OnQuotaExceeded implements plugin.OnQuotaExceeded.
func (m *MetricsExtension) OnQuotaExceeded(_ context.Context, _ id.AccountID, _ entitlement.Result) error {
	m.QuotaExceeded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Billing hooks
// ──────────────────────────────────────────────────

// OnBillingEventProcessed implements plugin.OnBillingEventProcessed.
func (m *MetricsExtension) OnBillingEventProcessed(_ context.Context, _, _, outcome string, elapsed time.Duration) error {
	m.BillingEventsProcessed.Inc()
	m.BillingLatency.Observe(float64(elapsed.Milliseconds()))

	switch outcome {
	case "applied":
		m.BillingEventsApplied.Inc()
	case "duplicate":
		m.BillingEventsDuplicate.Inc()
	case "unresolved":
		m.BillingEventsUnresolved.Inc()
	case "failed":
		m.BillingEventsFailed.Inc()
	}
	return nil
}
