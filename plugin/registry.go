package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/rechtskompass/ledger/account"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/usage"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry holds registered plugins and caches them per hook interface so
// dispatch never type-asserts on the hot path.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                  []OnInit
	onShutdown              []OnShutdown
	onAccountRegistered     []OnAccountRegistered
	onPlanChanged           []OnPlanChanged
	onSubscriptionCanceled  []OnSubscriptionCanceled
	onCreditsGranted        []OnCreditsGranted
	onCreditsSpent          []OnCreditsSpent
	onUsageRecorded         []OnUsageRecorded
	onEntitlementChecked    []OnEntitlementChecked
	onQuotaExceeded         []OnQuotaExceeded
	onBillingEventProcessed []OnBillingEventProcessed
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin and caches the hook interfaces it implements.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnAccountRegistered); ok {
		r.onAccountRegistered = append(r.onAccountRegistered, v)
	}
	if v, ok := p.(OnPlanChanged); ok {
		r.onPlanChanged = append(r.onPlanChanged, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnCreditsGranted); ok {
		r.onCreditsGranted = append(r.onCreditsGranted, v)
	}
	if v, ok := p.(OnCreditsSpent); ok {
		r.onCreditsSpent = append(r.onCreditsSpent, v)
	}
	if v, ok := p.(OnUsageRecorded); ok {
		r.onUsageRecorded = append(r.onUsageRecorded, v)
	}
	if v, ok := p.(OnEntitlementChecked); ok {
		r.onEntitlementChecked = append(r.onEntitlementChecked, v)
	}
	if v, ok := p.(OnQuotaExceeded); ok {
		r.onQuotaExceeded = append(r.onQuotaExceeded, v)
	}
	if v, ok := p.(OnBillingEventProcessed); ok {
		r.onBillingEventProcessed = append(r.onBillingEventProcessed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedHooks(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnAccountRegistered", reflect.TypeFor[OnAccountRegistered]()},
	{"OnPlanChanged", reflect.TypeFor[OnPlanChanged]()},
	{"OnSubscriptionCanceled", reflect.TypeFor[OnSubscriptionCanceled]()},
	{"OnCreditsGranted", reflect.TypeFor[OnCreditsGranted]()},
	{"OnCreditsSpent", reflect.TypeFor[OnCreditsSpent]()},
	{"OnUsageRecorded", reflect.TypeFor[OnUsageRecorded]()},
	{"OnEntitlementChecked", reflect.TypeFor[OnEntitlementChecked]()},
	{"OnQuotaExceeded", reflect.TypeFor[OnQuotaExceeded]()},
	{"OnBillingEventProcessed", reflect.TypeFor[OnBillingEventProcessed]()},
}

func implementedHooks(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name, or nil.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every plugin in list. Hook errors are logged, never
// returned: plugins must not fail the operation that triggered them.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list []T, fn func(T) error) {
	for _, p := range list {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return fn(p) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func snapshot[T any](r *Registry, list *[]T) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l any) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, l)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitAccountRegistered emits an account registered event.
func (r *Registry) EmitAccountRegistered(ctx context.Context, a *account.Account) {
	emit(ctx, r, "OnAccountRegistered", snapshot(r, &r.onAccountRegistered), func(p OnAccountRegistered) error {
		return p.OnAccountRegistered(ctx, a)
	})
}

// EmitPlanChanged emits a plan changed event.
func (r *Registry) EmitPlanChanged(ctx context.Context, a *account.Account, from, to plan.ID) {
	emit(ctx, r, "OnPlanChanged", snapshot(r, &r.onPlanChanged), func(p OnPlanChanged) error {
		return p.OnPlanChanged(ctx, a, from, to)
	})
}

// EmitSubscriptionCanceled emits a subscription canceled event.
func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, a *account.Account) {
	emit(ctx, r, "OnSubscriptionCanceled", snapshot(r, &r.onSubscriptionCanceled), func(p OnSubscriptionCanceled) error {
		return p.OnSubscriptionCanceled(ctx, a)
	})
}

// EmitCreditsGranted emits a credits granted event.
func (r *Registry) EmitCreditsGranted(ctx context.Context, tx *credit.Transaction) {
	emit(ctx, r, "OnCreditsGranted", snapshot(r, &r.onCreditsGranted), func(p OnCreditsGranted) error {
		return p.OnCreditsGranted(ctx, tx)
	})
}

// EmitCreditsSpent emits a credits spent event.
func (r *Registry) EmitCreditsSpent(ctx context.Context, tx *credit.Transaction) {
	emit(ctx, r, "OnCreditsSpent", snapshot(r, &r.onCreditsSpent), func(p OnCreditsSpent) error {
		return p.OnCreditsSpent(ctx, tx)
	})
}

// EmitUsageRecorded emits a usage recorded event.
func (r *Registry) EmitUsageRecorded(ctx context.Context, accountID id.AccountID, kind usage.Kind) {
	emit(ctx, r, "OnUsageRecorded", snapshot(r, &r.onUsageRecorded), func(p OnUsageRecorded) error {
		return p.OnUsageRecorded(ctx, accountID, kind)
	})
}

// EmitEntitlementChecked emits an entitlement checked event.
func (r *Registry) EmitEntitlementChecked(ctx context.Context, accountID id.AccountID, result entitlement.Result) {
	emit(ctx, r, "OnEntitlementChecked", snapshot(r, &r.onEntitlementChecked), func(p OnEntitlementChecked) error {
		return p.OnEntitlementChecked(ctx, accountID, result)
	})
}

// EmitQuotaExceeded emits a quota exceeded event.
func (r *Registry) EmitQuotaExceeded(ctx context.Context, accountID id.AccountID, result entitlement.Result) {
	emit(ctx, r, "OnQuotaExceeded", snapshot(r, &r.onQuotaExceeded), func(p OnQuotaExceeded) error {
		return p.OnQuotaExceeded(ctx, accountID, result)
	})
}

// EmitBillingEventProcessed emits a billing event processed event.
func (r *Registry) EmitBillingEventProcessed(ctx context.Context, eventID, eventType, outcome string, elapsed time.Duration) {
	emit(ctx, r, "OnBillingEventProcessed", snapshot(r, &r.onBillingEventProcessed), func(p OnBillingEventProcessed) error {
		return p.OnBillingEventProcessed(ctx, eventID, eventType, outcome, elapsed)
	})
}

// callWithTimeout runs fn with the registry timeout so a slow plugin cannot
// stall billing.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
