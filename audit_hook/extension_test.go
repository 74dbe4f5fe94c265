package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/rechtskompass/ledger"
	audithook "github.com/rechtskompass/ledger/audit_hook"
	"github.com/rechtskompass/ledger/billing"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/store/memory"
	"github.com/rechtskompass/ledger/usage"
)

type trail struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (t *trail) Record(_ context.Context, e *audithook.AuditEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
	return nil
}

func (t *trail) actions() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.events))
	for _, e := range t.events {
		out = append(out, e.Action)
	}
	return out
}

func (t *trail) find(action string) *audithook.AuditEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.events {
		if e.Action == action {
			return e
		}
	}
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestAuditTrailForSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	rec := &trail{}
	l := ledger.New(memory.New(),
		ledger.WithLogger(discard),
		ledger.WithPlugin(audithook.New(rec, audithook.WithLogger(discard))),
	)

	a, err := l.RegisterAccount(ctx, "erika@example.de", "Erika")
	if err != nil {
		t.Fatal(err)
	}
	proc := billing.NewProcessor(l, "rechtskompass")
	proc.Process(ctx, billing.CheckoutCompleted{
		Meta:       billing.Meta{ID: "evt_1", Type: "checkout.session.completed", App: "rechtskompass"},
		UserRef:    a.ID.String(),
		PlanID:     string(plan.Profi),
		CustomerID: "cus_1",
	})
	_ = l.Downgrade(ctx, a.ID)

	want := []string{
		audithook.ActionAccountRegistered,
		audithook.ActionCreditsGranted,
		audithook.ActionSubscriptionUpgraded,
		audithook.ActionBillingEventApplied,
		audithook.ActionSubscriptionCanceled,
		audithook.ActionSubscriptionDowngraded,
	}
	if got := rec.actions(); !slices.Equal(got, want) {
		t.Fatalf("actions\n got %v\nwant %v", got, want)
	}

	up := rec.find(audithook.ActionSubscriptionUpgraded)
	if up.ResourceID != a.ID.String() || up.Metadata["to"] != plan.Profi {
		t.Errorf("upgrade event %+v", up)
	}
	grant := rec.find(audithook.ActionCreditsGranted)
	if grant.Metadata["amount"] != int64(60) || grant.Metadata["balance_after"] != int64(60) {
		t.Errorf("grant event %+v", grant)
	}
}

func TestOnlyDenialsAudited(t *testing.T) {
	ctx := context.Background()
	rec := &trail{}
	l := ledger.New(memory.New(),
		ledger.WithLogger(discard),
		ledger.WithPlugin(audithook.New(rec,
			audithook.WithDisabledActions(audithook.ActionAccountRegistered),
		)),
	)
	a, _ := l.RegisterAccount(ctx, "erika@example.de", "Erika")

	_ = l.RecordConsumption(ctx, a.ID, usage.KindScan)
	if _, err := l.Entitled(ctx, a.ID, entitlement.ActionForum); err != nil {
		t.Fatal(err)
	}
	if len(rec.actions()) != 0 {
		t.Fatalf("allowed check audited: %v", rec.actions())
	}

	if _, err := l.Entitled(ctx, a.ID, entitlement.ActionScan); err != nil {
		t.Fatal(err)
	}
	want := []string{audithook.ActionEntitlementDenied, audithook.ActionQuotaExceeded}
	if got := rec.actions(); !slices.Equal(got, want) {
		t.Fatalf("got %v", got)
	}
	if e := rec.find(audithook.ActionQuotaExceeded); e.Reason == "" || e.Severity != audithook.SeverityWarning {
		t.Errorf("quota event %+v", e)
	}
}

func TestEnabledActionsFilter(t *testing.T) {
	rec := &trail{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionBillingEventFailed))

	_ = ext.OnBillingEventProcessed(context.Background(), "evt_1", "invoice.paid", "applied", 0)
	_ = ext.OnBillingEventProcessed(context.Background(), "evt_2", "invoice.paid", "failed", 0)
	_ = ext.OnBillingEventProcessed(context.Background(), "evt_3", "invoice.paid", "duplicate", 0)

	got := rec.actions()
	if !slices.Equal(got, []string{audithook.ActionBillingEventFailed}) {
		t.Fatalf("got %v", got)
	}
	if e := rec.find(audithook.ActionBillingEventFailed); e.ResourceID != "evt_2" || e.Severity != audithook.SeverityCritical {
		t.Errorf("event %+v", e)
	}
}

func TestRecorderErrorDoesNotFailHook(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}), audithook.WithLogger(discard))

	if err := ext.OnBillingEventProcessed(context.Background(), "evt", "x", "applied", 0); err != nil {
		t.Fatalf("hook returned %v", err)
	}
}
