// Package billing applies payment-provider events to the ledger.
//
// Events form a closed set: CheckoutCompleted, InvoicePaid,
// SubscriptionDeleted and Unhandled. The transport (package webhook)
// decodes provider payloads into these variants; the Processor resolves
// the account and drives the plan state machine
// free → active(tier) → active(tier) → free.
package billing

// Event is implemented only by the variants in this package.
type Event interface {
	// EventMeta returns the provider envelope shared by every variant.
	EventMeta() Meta
	isEvent()
}

// Meta identifies a provider event.
type Meta struct {
	// ID is the provider event id, used for deduplication.
	ID string `json:"id"`
	// Type is the provider's event type string.
	Type string `json:"type"`
	// App is the application discriminator carried in metadata. Empty when
	// the payload had none.
	App string `json:"app"`
}

// CheckoutCompleted is a finished checkout session.
type CheckoutCompleted struct {
	Meta
	// UserRef is the direct account reference passed into the checkout.
	UserRef        string `json:"user_ref,omitempty"`
	Email          string `json:"email,omitempty"`
	PlanID         string `json:"plan_id"`
	CustomerID     string `json:"customer_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// InvoicePaid is a paid subscription invoice.
type InvoicePaid struct {
	Meta
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	// BillingReason is the provider's reason for the invoice, e.g.
	// "subscription_cycle" or "subscription_create".
	BillingReason string `json:"billing_reason,omitempty"`
}

// SubscriptionDeleted is a subscription that ended.
type SubscriptionDeleted struct {
	Meta
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// Unhandled is any other provider event. Processing it is a no-op.
type Unhandled struct {
	Meta
}

func (e CheckoutCompleted) EventMeta() Meta   { return e.Meta }
func (e InvoicePaid) EventMeta() Meta         { return e.Meta }
func (e SubscriptionDeleted) EventMeta() Meta { return e.Meta }
func (e Unhandled) EventMeta() Meta           { return e.Meta }

func (CheckoutCompleted) isEvent()   {}
func (InvoicePaid) isEvent()         {}
func (SubscriptionDeleted) isEvent() {}
func (Unhandled) isEvent()           {}

// BillingReasonCreate marks the first invoice of a new subscription. Its
// credits were already granted by the checkout.
const BillingReasonCreate = "subscription_create"
