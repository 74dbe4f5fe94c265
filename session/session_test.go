package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/session"
	"github.com/rechtskompass/ledger/store/memory"
	"github.com/rechtskompass/ledger/usage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type flakyFetcher struct {
	l    *ledger.Ledger
	fail bool
}

func (f *flakyFetcher) Snapshot(ctx context.Context, accountID id.AccountID) (*ledger.Snapshot, error) {
	if f.fail {
		return nil, errors.New("network down")
	}
	return f.l.Snapshot(ctx, accountID)
}

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(memory.New(), ledger.WithLogger(discard))
	t.Cleanup(func() { _ = l.Stop() })
	return l
}

func TestFallbackForNewAccount(t *testing.T) {
	f := &flakyFetcher{l: newLedger(t), fail: true}
	ident := session.Identity{AccountID: id.NewAccountID(), Email: " Neu@Example.de "}
	p := session.NewProvider(f, ident, session.WithLogger(discard))

	if p.Loaded() {
		t.Fatal("provider loaded before refresh")
	}
	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if !p.Loaded() {
		t.Fatal("fallback not installed")
	}

	s := p.State()
	if !s.Synthetic || s.Account.PlanID != plan.Free || s.Plan.ID != plan.Free {
		t.Errorf("fallback state %+v", s)
	}
	if s.Account.Email != "neu@example.de" || s.Account.ID != ident.AccountID {
		t.Errorf("identity not carried: %+v", s.Account)
	}
	if s.Usage.Credits != 0 || s.Usage.MessagesToday != 0 {
		t.Errorf("fallback usage %+v", s.Usage)
	}
	if d := p.CanSendChatMessage(); !d.Allowed {
		t.Errorf("fallback must allow the first free message: %+v", d)
	}
}

func TestRefreshFailureKeepsCachedState(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a, err := l.RegisterAccount(ctx, "erika@example.de", "Erika")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.AssignPlan(ctx, a.ID, plan.Basis, ledger.ProviderRefs{CustomerID: "cus_1"}); err != nil {
		t.Fatal(err)
	}

	f := &flakyFetcher{l: l}
	p := session.NewProvider(f, session.Identity{AccountID: a.ID}, session.WithLogger(discard))
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if p.Credits() != 10 || p.State().Synthetic {
		t.Fatalf("state %+v", p.State())
	}

	f.fail = true
	if err := p.Refresh(ctx); err == nil {
		t.Fatal("expected error")
	}
	if s := p.State(); s.Synthetic || s.Account.PlanID != plan.Basis || s.Usage.Credits != 10 {
		t.Errorf("cached state replaced: %+v", s)
	}
}

func TestRefreshAfterConsumption(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a, _ := l.RegisterAccount(ctx, "erika@example.de", "Erika")
	p := session.NewProvider(l, session.Identity{AccountID: a.ID}, session.WithLogger(discard))
	_ = p.Refresh(ctx)

	for range 3 {
		if d := p.CanSendChatMessage(); !d.Allowed {
			t.Fatalf("denied early: %+v", d)
		}
		if err := l.RecordConsumption(ctx, a.ID, usage.KindChat); err != nil {
			t.Fatal(err)
		}
		if err := p.Refresh(ctx); err != nil {
			t.Fatal(err)
		}
	}

	d := p.CanSendChatMessage()
	if d.Allowed || d.Reason == "" {
		t.Errorf("fourth free message: %+v", d)
	}
	if res, err := p.Check(entitlement.ActionChat); err != nil || res.Allowed || res.Remaining() != 0 {
		t.Errorf("Check: %+v, %v", res, err)
	}
}

func TestCachedCounterRollsOverAtMidnight(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	l := ledger.New(memory.New(), ledger.WithLogger(discard), ledger.WithClock(clock))
	a, _ := l.RegisterAccount(ctx, "erika@example.de", "Erika")
	for range 3 {
		_ = l.RecordConsumption(ctx, a.ID, usage.KindChat)
	}

	p := session.NewProvider(l, session.Identity{AccountID: a.ID},
		session.WithLogger(discard), session.WithClock(clock))
	_ = p.Refresh(ctx)
	if p.CanSendChatMessage().Allowed {
		t.Fatal("limit not reached")
	}

	now = now.Add(2 * time.Hour)
	if d := p.CanSendChatMessage(); !d.Allowed {
		t.Errorf("stale day counter still applied: %+v", d)
	}
}

func TestLetterAndForumDelegation(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	a, _ := l.RegisterAccount(ctx, "erika@example.de", "Erika")
	p := session.NewProvider(l, session.Identity{AccountID: a.ID}, session.WithLogger(discard))
	_ = p.Refresh(ctx)

	if d := p.CanGenerateLetter(); !d.Allowed || d.Cost != plan.Default().Fallback().LetterPrice {
		t.Errorf("free letter %+v", d)
	}
	if !p.CanPostInForum().Allowed {
		t.Error("forum denied")
	}
	if d := p.CanScanDocument(); !d.Allowed {
		t.Errorf("first free scan denied: %+v", d)
	}
}

func TestContext(t *testing.T) {
	if _, ok := session.FromContext(context.Background()); ok {
		t.Fatal("empty context returned a provider")
	}
	p := session.NewProvider(newLedger(t), session.Identity{})
	got, ok := session.FromContext(session.NewContext(context.Background(), p))
	if !ok || got != p {
		t.Fatal("provider not round-tripped")
	}
}
