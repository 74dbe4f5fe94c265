package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/event"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
)

// Outcome classifies how an event was handled. Every outcome is
// acknowledged to the provider; none of them asks for a redelivery.
type Outcome string

const (
	// OutcomeApplied means the transition was written.
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored covers foreign apps, unhandled kinds, unknown plans
	// and events that do not apply to the account's state.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeSkipped means the event carried no app discriminator.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDuplicate means the event id was processed before.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeUnresolved means no account matched the event's references.
	OutcomeUnresolved Outcome = "unresolved"
	// OutcomeFailed means persistence failed after the account was
	// resolved. The failure is logged.
	OutcomeFailed Outcome = "failed"
)

// Result reports what Process did.
type Result struct {
	Outcome   Outcome      `json:"outcome"`
	AccountID id.AccountID `json:"account_id,omitzero"`
	Reason    string       `json:"reason,omitempty"`

	// Err is set for duplicate and failed outcomes.
	Err error `json:"-"`
}

// Processor applies billing events for one application.
type Processor struct {
	ledger   *ledger.Ledger
	app      string
	provider string
	logger   *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger. Defaults to the ledger's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithProvider names the payment provider in processed-event records.
func WithProvider(name string) Option {
	return func(p *Processor) { p.provider = name }
}

// NewProcessor returns a processor that only acts on events whose
// discriminator equals app.
func NewProcessor(l *ledger.Ledger, app string, opts ...Option) *Processor {
	p := &Processor{
		ledger:   l,
		app:      app,
		provider: "stripe",
		logger:   l.Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// App returns the discriminator this processor accepts.
func (p *Processor) App() string { return p.app }

// Process applies ev. It never returns an error: failures are logged and
// reported through the Outcome so the transport can still acknowledge.
func (p *Processor) Process(ctx context.Context, ev Event) Result {
	start := time.Now()
	meta := ev.EventMeta()
	log := p.logger.With("event_id", meta.ID, "event_type", meta.Type)

	res := p.process(ctx, log, ev)

	lvl := slog.LevelInfo
	if res.Outcome == OutcomeFailed {
		lvl = slog.LevelError
	}
	log.Log(ctx, lvl, "billing event processed",
		"outcome", res.Outcome,
		"account_id", res.AccountID.String(),
		"reason", res.Reason,
		"error", res.Err,
	)
	p.ledger.Plugins().EmitBillingEventProcessed(ctx, meta.ID, meta.Type, string(res.Outcome), time.Since(start))
	return res
}

func (p *Processor) process(ctx context.Context, log *slog.Logger, ev Event) Result {
	meta := ev.EventMeta()

	switch {
	case meta.App == "":
		return Result{Outcome: OutcomeSkipped, Reason: "missing app discriminator"}
	case meta.App != p.app:
		return Result{Outcome: OutcomeIgnored, Reason: "foreign app " + meta.App}
	}
	if _, ok := ev.(Unhandled); ok {
		return Result{Outcome: OutcomeIgnored, Reason: "unhandled event type"}
	}

	if meta.ID != "" {
		claimed, err := p.ledger.ClaimEvent(ctx, &event.Record{
			ID:       meta.ID,
			Type:     meta.Type,
			Provider: p.provider,
		})
		if err != nil {
			log.Error("claim billing event", "error", err)
			return Result{Outcome: OutcomeFailed, Reason: "claim failed", Err: err}
		}
		if !claimed {
			return Result{Outcome: OutcomeDuplicate, Err: ledger.ErrDuplicateEvent}
		}
	} else {
		log.Warn("billing event without id cannot be deduplicated")
	}

	switch e := ev.(type) {
	case CheckoutCompleted:
		return p.checkoutCompleted(ctx, log, e)
	case InvoicePaid:
		return p.invoicePaid(ctx, log, e)
	case SubscriptionDeleted:
		return p.subscriptionDeleted(ctx, log, e)
	default:
		return Result{Outcome: OutcomeIgnored, Reason: "unhandled event type"}
	}
}

func (p *Processor) checkoutCompleted(ctx context.Context, log *slog.Logger, e CheckoutCompleted) Result {
	planID, ok := plan.ParseID(e.PlanID)
	if !ok || planID == plan.Free {
		return Result{Outcome: OutcomeIgnored, Reason: "unknown plan " + e.PlanID}
	}

	a, res, ok := p.resolveCheckout(ctx, log, e)
	if !ok {
		return res
	}

	refs := ledger.ProviderRefs{CustomerID: e.CustomerID, SubscriptionID: e.SubscriptionID}
	if _, err := p.ledger.AssignPlan(ctx, a.ID, planID, refs); err != nil {
		log.Error("assign plan", "account_id", a.ID.String(), "plan", planID, "error", err)
		return Result{Outcome: OutcomeFailed, AccountID: a.ID, Reason: "assign plan failed", Err: err}
	}
	return Result{Outcome: OutcomeApplied, AccountID: a.ID}
}

// resolveCheckout finds the account by the direct reference, falling back
// to email only when the checkout carried no direct reference.
func (p *Processor) resolveCheckout(ctx context.Context, log *slog.Logger, e CheckoutCompleted) (*account.Account, Result, bool) {
	var (
		a   *account.Account
		err error
		by  string
	)
	switch {
	case e.UserRef != "":
		by = "user_ref"
		accountID, perr := id.ParseAccountID(e.UserRef)
		if perr != nil {
			return nil, Result{Outcome: OutcomeUnresolved, Reason: "malformed user reference"}, false
		}
		a, err = p.ledger.GetAccount(ctx, accountID)
	case e.Email != "":
		by = "email"
		a, err = p.ledger.FindAccountByEmail(ctx, e.Email)
	default:
		return nil, Result{Outcome: OutcomeUnresolved, Reason: "no account reference"}, false
	}

	switch {
	case ledger.IsNotFound(err):
		return nil, Result{Outcome: OutcomeUnresolved, Reason: "no account for " + by}, false
	case err != nil:
		log.Error("resolve account", "by", by, "error", err)
		return nil, Result{Outcome: OutcomeFailed, Reason: "account lookup failed", Err: err}, false
	}
	return a, Result{}, true
}

func (p *Processor) invoicePaid(ctx context.Context, log *slog.Logger, e InvoicePaid) Result {
	if e.BillingReason == BillingReasonCreate {
		return Result{Outcome: OutcomeIgnored, Reason: "first invoice is covered by checkout"}
	}

	a, res, ok := p.resolveCustomer(ctx, log, e.CustomerID)
	if !ok {
		return res
	}
	if !a.Paid() {
		return Result{Outcome: OutcomeIgnored, AccountID: a.ID, Reason: "account is on the free plan"}
	}

	if _, err := p.ledger.RenewPlan(ctx, a.ID); err != nil {
		log.Error("renew plan", "account_id", a.ID.String(), "error", err)
		return Result{Outcome: OutcomeFailed, AccountID: a.ID, Reason: "renewal failed", Err: err}
	}
	return Result{Outcome: OutcomeApplied, AccountID: a.ID}
}

func (p *Processor) subscriptionDeleted(ctx context.Context, log *slog.Logger, e SubscriptionDeleted) Result {
	a, res, ok := p.resolveCustomer(ctx, log, e.CustomerID)
	if !ok {
		return res
	}

	if err := p.ledger.Downgrade(ctx, a.ID); err != nil {
		log.Error("downgrade", "account_id", a.ID.String(), "error", err)
		return Result{Outcome: OutcomeFailed, AccountID: a.ID, Reason: "downgrade failed", Err: err}
	}
	return Result{Outcome: OutcomeApplied, AccountID: a.ID}
}

func (p *Processor) resolveCustomer(ctx context.Context, log *slog.Logger, customerID string) (*account.Account, Result, bool) {
	if customerID == "" {
		return nil, Result{Outcome: OutcomeUnresolved, Reason: "no customer reference"}, false
	}
	a, err := p.ledger.FindAccountByCustomer(ctx, customerID)
	switch {
	case ledger.IsNotFound(err):
		return nil, Result{Outcome: OutcomeUnresolved, Reason: "no account for customer"}, false
	case err != nil:
		log.Error("resolve customer", "error", err)
		return nil, Result{Outcome: OutcomeFailed, Reason: "account lookup failed", Err: err}, false
	}
	return a, Result{}, true
}
