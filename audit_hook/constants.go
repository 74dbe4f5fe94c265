package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountRegistered = "account.registered"

	// Subscription actions
	ActionSubscriptionUpgraded   = "subscription.upgraded"
	ActionSubscriptionDowngraded = "subscription.downgraded"
	ActionSubscriptionCanceled   = "subscription.canceled"

	// Credit actions
	ActionCreditsGranted = "credits.granted"
	ActionCreditsSpent   = "credits.spent"

	// Entitlement actions
	ActionEntitlementDenied = "entitlement.denied"
	ActionQuotaExceeded     = "quota.exceeded"

	// Billing webhook actions
	ActionBillingEventApplied    = "billing_event.applied"
	ActionBillingEventUnresolved = "billing_event.unresolved"
	ActionBillingEventFailed     = "billing_event.failed"
)

// Resource constants for audit events.
const (
	ResourceAccount      = "account"
	ResourceSubscription = "subscription"
	ResourceCredit       = "credit_transaction"
	ResourceEntitlement  = "entitlement"
	ResourceBillingEvent = "billing_event"
)

// Category constants for audit events.
const (
	CategoryAccount      = "account"
	CategorySubscription = "subscription"
	CategoryCredits      = "credits"
	CategoryAccess       = "access"
	CategoryIntegration  = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
