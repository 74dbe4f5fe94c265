package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/event"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/plugin"
	"github.com/rechtskompass/ledger/store"
	"github.com/rechtskompass/ledger/usage"
)

// Ledger is the entitlement and credits engine.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	catalog *plan.Catalog
	checker *entitlement.Checker
	clock   func() time.Time
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		catalog: plan.Default(),
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}
	l.checker = entitlement.NewChecker(l.catalog)

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		if err := l.plugins.Register(p); err != nil {
			l.logger.Warn("plugin registration failed", "plugin", p.Name(), "error", err)
		}
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.plugins.WithTimeout(d) }
}

// WithCatalog replaces the default plan catalog.
func WithCatalog(c *plan.Catalog) Option {
	return func(l *Ledger) {
		if c != nil {
			l.catalog = c
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.clock = now
		}
	}
}

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("ledger started",
		"plans", len(l.catalog.Plans()),
		"plugins", l.plugins.Count(),
	)
	return nil
}

// Stop shuts down plugins and closes the store.
func (l *Ledger) Stop() error {
	l.plugins.EmitShutdown(context.Background())
	return l.store.Close()
}

// Ping checks store connectivity.
func (l *Ledger) Ping(ctx context.Context) error { return l.store.Ping(ctx) }

// Catalog returns the plan catalog in use.
func (l *Ledger) Catalog() *plan.Catalog { return l.catalog }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Logger returns the engine logger.
func (l *Ledger) Logger() *slog.Logger { return l.logger }

// Now returns the current time from the engine clock, in UTC.
func (l *Ledger) Now() time.Time { return l.clock().UTC() }

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

// RegisterAccount creates a free-tier account with an empty usage ledger.
func (l *Ledger) RegisterAccount(ctx context.Context, email, displayName string) (*account.Account, error) {
	email = account.NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ValidationError{Field: "email", Message: "must be a valid address"}
	}

	if _, err := l.store.GetAccountByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !IsNotFound(err) {
		return nil, err
	}

	a := account.New(email, displayName, l.Now())
	if err := l.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	l.plugins.EmitAccountRegistered(ctx, a)
	l.logger.Info("account registered", "account_id", a.ID.String())
	return a, nil
}

// GetAccount retrieves an account by ID.
func (l *Ledger) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return l.store.GetAccount(ctx, accountID)
}

// FindAccountByEmail retrieves an account by its normalized email.
func (l *Ledger) FindAccountByEmail(ctx context.Context, email string) (*account.Account, error) {
	return l.store.GetAccountByEmail(ctx, account.NormalizeEmail(email))
}

// FindAccountByCustomer retrieves an account by its provider customer ID.
func (l *Ledger) FindAccountByCustomer(ctx context.Context, customerID string) (*account.Account, error) {
	if customerID == "" {
		return nil, ErrAccountNotFound
	}
	return l.store.GetAccountByCustomer(ctx, customerID)
}

// Snapshot is the read model a client caches: the account, its resolved
// plan and its usage normalized to the current day.
type Snapshot struct {
	Account account.Account `json:"account"`
	Plan    plan.Plan       `json:"plan"`
	Usage   usage.Ledger    `json:"usage"`
}

// Snapshot loads the current state of an account.
func (l *Ledger) Snapshot(ctx context.Context, accountID id.AccountID) (*Snapshot, error) {
	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	u, err := l.store.GetUsage(ctx, accountID)
	if err != nil {
		return nil, err
	}
	u.Normalize(l.Now())

	return &Snapshot{
		Account: *a,
		Plan:    l.catalog.Lookup(a.PlanID),
		Usage:   *u,
	}, nil
}

// Transactions lists an account's credit transactions, newest first.
func (l *Ledger) Transactions(ctx context.Context, accountID id.AccountID, opts credit.ListOpts) ([]*credit.Transaction, error) {
	return l.store.ListTransactions(ctx, accountID, opts)
}

// ──────────────────────────────────────────────────
// Usage
// ──────────────────────────────────────────────────

// RecordConsumption adds one unit of kind to the account's counters. The
// increment happens inside the store, never as read-modify-write here.
func (l *Ledger) RecordConsumption(ctx context.Context, accountID id.AccountID, kind usage.Kind) error {
	if !kind.Valid() {
		return ValidationError{Field: "kind", Message: fmt.Sprintf("unknown usage kind %q", kind)}
	}
	if err := l.store.IncrementUsage(ctx, accountID, kind, usage.Day(l.Now())); err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}

	l.plugins.EmitUsageRecorded(ctx, accountID, kind)
	return nil
}

// ResetPeriodCounters zeroes the usage counters and opens a new 30-day
// period starting now. Credits are untouched.
func (l *Ledger) ResetPeriodCounters(ctx context.Context, accountID id.AccountID) error {
	start := l.Now()
	if err := l.store.ResetUsage(ctx, accountID, start, start.Add(usage.PeriodLength)); err != nil {
		return fmt.Errorf("reset period: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Credits
// ──────────────────────────────────────────────────

// GrantCredits sets the balance to amount and records the grant. Grants
// replace the balance; they do not accumulate.
func (l *Ledger) GrantCredits(ctx context.Context, accountID id.AccountID, amount int64, kind credit.Kind, description string) (*credit.Transaction, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	if !kind.Valid() {
		return nil, ValidationError{Field: "kind", Message: fmt.Sprintf("unknown credit kind %q", kind)}
	}

	if err := l.store.SetCredits(ctx, accountID, amount); err != nil {
		return nil, fmt.Errorf("grant credits: %w", err)
	}

	tx := credit.NewTransaction(accountID, kind, amount, amount, description, l.Now())
	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	l.plugins.EmitCreditsGranted(ctx, tx)
	return tx, nil
}

// AddCredits tops the balance up by amount, for one-off purchases.
func (l *Ledger) AddCredits(ctx context.Context, accountID id.AccountID, amount int64, description string) (*credit.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	balance, err := l.store.AdjustCredits(ctx, accountID, amount)
	if err != nil {
		return nil, fmt.Errorf("add credits: %w", err)
	}

	tx := credit.NewTransaction(accountID, credit.KindPurchase, amount, balance, description, l.Now())
	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	l.plugins.EmitCreditsGranted(ctx, tx)
	return tx, nil
}

// SpendCredits deducts amount if the balance covers it. The check and the
// decrement are one conditional update in the store.
func (l *Ledger) SpendCredits(ctx context.Context, accountID id.AccountID, amount int64, description string) (*credit.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	balance, err := l.store.AdjustCredits(ctx, accountID, -amount)
	if err != nil {
		return nil, fmt.Errorf("spend credits: %w", err)
	}

	tx := credit.NewTransaction(accountID, credit.KindConsumption, -amount, balance, description, l.Now())
	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}

	l.plugins.EmitCreditsSpent(ctx, tx)
	return tx, nil
}

// ──────────────────────────────────────────────────
// Plan transitions
// ──────────────────────────────────────────────────

// ProviderRefs are the payment provider's identifiers for an account.
// Empty fields leave the stored value unchanged.
type ProviderRefs struct {
	CustomerID     string
	SubscriptionID string
}

// AssignPlan moves an account onto planID, grants the plan's monthly
// credits and opens a new period.
func (l *Ledger) AssignPlan(ctx context.Context, accountID id.AccountID, planID plan.ID, refs ProviderRefs) (*credit.Transaction, error) {
	p, ok := l.catalog.Get(planID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}

	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	from := a.PlanID
	a.PlanID = p.ID
	if refs.CustomerID != "" {
		a.CustomerID = refs.CustomerID
	}
	if refs.SubscriptionID != "" {
		a.SubscriptionID = refs.SubscriptionID
	}
	a.Touch(l.Now())
	if err := l.store.UpdateAccount(ctx, a); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	tx, err := l.GrantCredits(ctx, a.ID, p.MonthlyCredits, credit.KindSubscriptionCredit, "Abo "+p.Name)
	if err != nil {
		return nil, err
	}
	if err := l.ResetPeriodCounters(ctx, a.ID); err != nil {
		return nil, err
	}

	if from != p.ID {
		l.plugins.EmitPlanChanged(ctx, a, from, p.ID)
	}
	l.logger.Info("plan assigned",
		"account_id", a.ID.String(),
		"from", from,
		"to", p.ID,
		"credits", p.MonthlyCredits,
	)
	return tx, nil
}

// RenewPlan grants the current plan's credits again and opens a new period.
// Free accounts have nothing to renew.
func (l *Ledger) RenewPlan(ctx context.Context, accountID id.AccountID) (*credit.Transaction, error) {
	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !a.Paid() {
		return nil, ValidationError{Field: "plan", Message: "free accounts cannot renew"}
	}

	p := l.catalog.Lookup(a.PlanID)
	tx, err := l.GrantCredits(ctx, a.ID, p.MonthlyCredits, credit.KindSubscriptionRenewal, "Verlängerung "+p.Name)
	if err != nil {
		return nil, err
	}
	if err := l.ResetPeriodCounters(ctx, a.ID); err != nil {
		return nil, err
	}

	l.logger.Info("plan renewed", "account_id", a.ID.String(), "plan", p.ID, "credits", p.MonthlyCredits)
	return tx, nil
}

// Downgrade returns an account to the free tier: subscription reference
// cleared, credits and counters zeroed, no transaction recorded.
func (l *Ledger) Downgrade(ctx context.Context, accountID id.AccountID) error {
	a, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	from := a.PlanID
	a.PlanID = plan.Free
	a.SubscriptionID = ""
	a.Touch(l.Now())
	if err := l.store.UpdateAccount(ctx, a); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if err := l.store.ClearUsage(ctx, a.ID); err != nil {
		return fmt.Errorf("clear usage: %w", err)
	}

	l.plugins.EmitSubscriptionCanceled(ctx, a)
	if from != plan.Free {
		l.plugins.EmitPlanChanged(ctx, a, from, plan.Free)
	}
	l.logger.Info("account downgraded", "account_id", a.ID.String(), "from", from)
	return nil
}

// ──────────────────────────────────────────────────
// Entitlements
// ──────────────────────────────────────────────────

// Entitled evaluates action against the account's current snapshot. It
// never records consumption.
func (l *Ledger) Entitled(ctx context.Context, accountID id.AccountID, action entitlement.Action) (entitlement.Result, error) {
	snap, err := l.Snapshot(ctx, accountID)
	if err != nil {
		return entitlement.Result{}, err
	}

	result, err := l.checker.Check(action, snap.Usage, snap.Plan)
	if err != nil {
		return entitlement.Result{}, errors.Join(ErrInvalidInput, err)
	}

	l.plugins.EmitEntitlementChecked(ctx, accountID, result)
	if !result.Allowed {
		l.plugins.EmitQuotaExceeded(ctx, accountID, result)
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Billing events
// ──────────────────────────────────────────────────

// ClaimEvent marks a provider event as processed. It reports false, with a
// nil error, when the event was claimed before.
func (l *Ledger) ClaimEvent(ctx context.Context, r *event.Record) (bool, error) {
	if r.ID == "" {
		return false, ValidationError{Field: "event_id", Message: "must not be empty"}
	}
	if r.ProcessedAt.IsZero() {
		r.ProcessedAt = l.Now()
	}
	return l.store.ClaimEvent(ctx, r)
}

// GetEvent returns the processed-event record for eventID.
func (l *Ledger) GetEvent(ctx context.Context, eventID string) (*event.Record, error) {
	return l.store.GetEvent(ctx, eventID)
}
