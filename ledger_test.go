package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/credit"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/store/memory"
	"github.com/rechtskompass/ledger/usage"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newLedger(t *testing.T) (*ledger.Ledger, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, time.April, 1, 10, 0, 0, 0, time.UTC)}
	l := ledger.New(memory.New(),
		ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		ledger.WithClock(clk.Now),
	)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l, clk
}

func register(t *testing.T, l *ledger.Ledger, email string) id.AccountID {
	t.Helper()
	a, err := l.RegisterAccount(context.Background(), email, "")
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	return a.ID
}

func TestRegisterAccount(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	a, err := l.RegisterAccount(ctx, "Max@Example.de", "Max")
	if err != nil {
		t.Fatalf("RegisterAccount: %v", err)
	}
	if a.PlanID != plan.Free || a.Email != "max@example.de" {
		t.Fatalf("unexpected account %+v", a)
	}

	if _, err := l.RegisterAccount(ctx, "max@example.DE", ""); !errors.Is(err, ledger.ErrEmailTaken) {
		t.Errorf("duplicate email: got %v, want ErrEmailTaken", err)
	}
	if _, err := l.RegisterAccount(ctx, "not-an-address", ""); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Errorf("invalid email: got %v, want ErrInvalidInput", err)
	}

	snap, err := l.Snapshot(ctx, a.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Usage.Credits != 0 || snap.Plan.ID != plan.Free {
		t.Errorf("new snapshot: %+v", snap)
	}
	if got := snap.Usage.PeriodEnd.Sub(snap.Usage.PeriodStart); got != usage.PeriodLength {
		t.Errorf("period length %v", got)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.GetAccount(context.Background(), id.NewAccountID())
	if !ledger.IsNotFound(err) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestRecordConsumption(t *testing.T) {
	l, clk := newLedger(t)
	ctx := context.Background()
	acct := register(t, l, "a@example.de")

	for _, k := range []usage.Kind{usage.KindChat, usage.KindChat, usage.KindLetter, usage.KindScan} {
		if err := l.RecordConsumption(ctx, acct, k); err != nil {
			t.Fatalf("RecordConsumption(%s): %v", k, err)
		}
	}
	if err := l.RecordConsumption(ctx, acct, "upload"); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Errorf("unknown kind: got %v", err)
	}

	snap, _ := l.Snapshot(ctx, acct)
	if snap.Usage.MessagesToday != 2 || snap.Usage.LettersGenerated != 1 || snap.Usage.ScansUsed != 1 {
		t.Fatalf("counters: %+v", snap.Usage)
	}

	clk.Advance(24 * time.Hour)
	snap, _ = l.Snapshot(ctx, acct)
	if snap.Usage.MessagesToday != 0 {
		t.Errorf("chat counter must roll over, got %d", snap.Usage.MessagesToday)
	}
	if snap.Usage.LettersGenerated != 1 {
		t.Errorf("letters must not roll over, got %d", snap.Usage.LettersGenerated)
	}
}

func TestConcurrentConsumption(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	acct := register(t, l, "a@example.de")

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.RecordConsumption(ctx, acct, usage.KindScan)
		}()
	}
	wg.Wait()

	snap, _ := l.Snapshot(ctx, acct)
	if snap.Usage.ScansUsed != 50 {
		t.Fatalf("lost updates: ScansUsed = %d", snap.Usage.ScansUsed)
	}
}

func TestGrantThenResetPeriod(t *testing.T) {
	l, clk := newLedger(t)
	ctx := context.Background()
	acct := register(t, l, "a@example.de")

	_ = l.RecordConsumption(ctx, acct, usage.KindLetter)
	_ = l.RecordConsumption(ctx, acct, usage.KindChat)
	clk.Advance(10 * 24 * time.Hour)

	tx, err := l.GrantCredits(ctx, acct, 42, credit.KindSubscriptionRenewal, "test")
	if err != nil {
		t.Fatalf("GrantCredits: %v", err)
	}
	if err := l.ResetPeriodCounters(ctx, acct); err != nil {
		t.Fatalf("ResetPeriodCounters: %v", err)
	}

	snap, _ := l.Snapshot(ctx, acct)
	u := snap.Usage
	if u.Credits != 42 || tx.BalanceAfter != 42 {
		t.Errorf("credits %d, balance_after %d, want 42", u.Credits, tx.BalanceAfter)
	}
	if u.MessagesToday != 0 || u.LettersGenerated != 0 || u.ScansUsed != 0 {
		t.Errorf("counters not zero: %+v", u)
	}
	if !u.PeriodStart.Equal(clk.Now()) || u.PeriodEnd.Sub(u.PeriodStart) != 30*24*time.Hour {
		t.Errorf("period %v .. %v", u.PeriodStart, u.PeriodEnd)
	}

	// a second grant replaces the balance
	_, _ = l.GrantCredits(ctx, acct, 10, credit.KindSubscriptionRenewal, "test")
	snap, _ = l.Snapshot(ctx, acct)
	if snap.Usage.Credits != 10 {
		t.Errorf("grants must not accumulate, got %d", snap.Usage.Credits)
	}

	if _, err := l.GrantCredits(ctx, acct, -1, credit.KindPurchase, ""); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("negative grant: got %v", err)
	}
}

func TestSpendAndAddCredits(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	acct := register(t, l, "a@example.de")

	if _, err := l.SpendCredits(ctx, acct, 1, "Brief"); !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("spend on empty balance: got %v", err)
	}

	if _, err := l.AddCredits(ctx, acct, 5, "Paket"); err != nil {
		t.Fatalf("AddCredits: %v", err)
	}
	tx, err := l.SpendCredits(ctx, acct, 3, "Brief")
	if err != nil {
		t.Fatalf("SpendCredits: %v", err)
	}
	if tx.Amount != -3 || tx.BalanceAfter != 2 || tx.Kind != credit.KindConsumption {
		t.Errorf("unexpected tx %+v", tx)
	}
	if _, err := l.SpendCredits(ctx, acct, 3, "Brief"); !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Errorf("overspend: got %v", err)
	}

	txs, err := l.Transactions(ctx, acct, credit.ListOpts{})
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 2 || txs[0].Kind != credit.KindConsumption || txs[1].Kind != credit.KindPurchase {
		t.Fatalf("transactions newest first: %+v", txs)
	}
}

func TestAssignPlanKaempfer(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	acct := register(t, l, "a@example.de")
	_ = l.RecordConsumption(ctx, acct, usage.KindScan)

	tx, err := l.AssignPlan(ctx, acct, plan.Kaempfer, ledger.ProviderRefs{CustomerID: "cus_1", SubscriptionID: "sub_1"})
	if err != nil {
		t.Fatalf("AssignPlan: %v", err)
	}
	if tx.Amount != 25 || tx.BalanceAfter != 25 || tx.Kind != credit.KindSubscriptionCredit {
		t.Errorf("unexpected tx %+v", tx)
	}

	snap, _ := l.Snapshot(ctx, acct)
	if snap.Account.PlanID != plan.Kaempfer || snap.Account.CustomerID != "cus_1" || snap.Account.SubscriptionID != "sub_1" {
		t.Errorf("account %+v", snap.Account)
	}
	if snap.Usage.Credits != 25 || snap.Usage.ScansUsed != 0 {
		t.Errorf("usage %+v", snap.Usage)
	}

	txs, _ := l.Transactions(ctx, acct, credit.ListOpts{})
	if len(txs) != 1 {
		t.Errorf("want exactly one transaction, got %d", len(txs))
	}

	if _, err := l.AssignPlan(ctx, acct, "gold", ledger.ProviderRefs{}); !errors.Is(err, ledger.ErrUnknownPlan) {
		t.Errorf("unknown plan: got %v", err)
	}
}

func TestRenewPlan(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	acct := register(t, l, "a@example.de")

	if _, err := l.RenewPlan(ctx, acct); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("renewing free: got %v", err)
	}

	_, _ = l.AssignPlan(ctx, acct, plan.Basis, ledger.ProviderRefs{CustomerID: "cus_1"})
	_, _ = l.SpendCredits(ctx, acct, 7, "Brief")
	_ = l.RecordConsumption(ctx, acct, usage.KindLetter)

	tx, err := l.RenewPlan(ctx, acct)
	if err != nil {
		t.Fatalf("RenewPlan: %v", err)
	}
	if tx.Kind != credit.KindSubscriptionRenewal || tx.BalanceAfter != 10 {
		t.Errorf("unexpected tx %+v", tx)
	}
	snap, _ := l.Snapshot(ctx, acct)
	if snap.Usage.Credits != 10 || snap.Usage.LettersGenerated != 0 {
		t.Errorf("usage %+v", snap.Usage)
	}
}

func TestDowngrade(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	acct := register(t, l, "a@example.de")

	_, _ = l.AssignPlan(ctx, acct, plan.Profi, ledger.ProviderRefs{CustomerID: "cus_1", SubscriptionID: "sub_1"})
	_ = l.RecordConsumption(ctx, acct, usage.KindChat)
	before, _ := l.Transactions(ctx, acct, credit.ListOpts{})

	if err := l.Downgrade(ctx, acct); err != nil {
		t.Fatalf("Downgrade: %v", err)
	}

	snap, _ := l.Snapshot(ctx, acct)
	if snap.Account.PlanID != plan.Free || snap.Account.SubscriptionID != "" {
		t.Errorf("account %+v", snap.Account)
	}
	if snap.Account.CustomerID != "cus_1" {
		t.Errorf("customer ref must survive so a later checkout can resolve it")
	}
	if snap.Usage.Credits != 0 || snap.Usage.MessagesToday != 0 {
		t.Errorf("usage %+v", snap.Usage)
	}
	after, _ := l.Transactions(ctx, acct, credit.ListOpts{})
	if len(after) != len(before) {
		t.Errorf("downgrade appended %d transactions", len(after)-len(before))
	}
}

func TestEntitled(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	acct := register(t, l, "a@example.de")

	for range 3 {
		res, err := l.Entitled(ctx, acct, entitlement.ActionChat)
		if err != nil || !res.Allowed {
			t.Fatalf("chat should be allowed: %+v %v", res, err)
		}
		_ = l.RecordConsumption(ctx, acct, usage.KindChat)
	}

	res, err := l.Entitled(ctx, acct, entitlement.ActionChat)
	if err != nil {
		t.Fatalf("Entitled: %v", err)
	}
	if res.Allowed || !strings.Contains(res.Reason, "Basis") {
		t.Fatalf("4th chat: %+v", res)
	}

	res, _ = l.Entitled(ctx, acct, entitlement.ActionLetter)
	if !res.Allowed || !res.Cost.Equal(ledger.EUR(299)) {
		t.Errorf("free letter: %+v", res)
	}

	if _, err := l.Entitled(ctx, acct, "vote"); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Errorf("unknown action: got %v", err)
	}
}
