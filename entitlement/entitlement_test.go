package entitlement_test

import (
	"strings"
	"testing"

	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/types"
	"github.com/rechtskompass/ledger/usage"
)

var catalog = plan.Default()

func TestUnlimitedChatIgnoresCounter(t *testing.T) {
	for _, p := range catalog.Plans() {
		if !p.DailyMessages.IsUnlimited() {
			continue
		}
		for _, n := range []int64{0, 1, 1_000, 1 << 50} {
			d := entitlement.CanSendChatMessage(usage.Ledger{MessagesToday: n}, p)
			if !d.Allowed {
				t.Errorf("%s with %d messages: denied (%s)", p.ID, n, d.Reason)
			}
		}
	}
}

func TestFreeChatFourthMessageDenied(t *testing.T) {
	free := catalog.Lookup(plan.Free)

	for n := int64(0); n < 3; n++ {
		if d := entitlement.CanSendChatMessage(usage.Ledger{MessagesToday: n}, free); !d.Allowed {
			t.Fatalf("message %d denied: %s", n+1, d.Reason)
		}
	}

	d := entitlement.CanSendChatMessage(usage.Ledger{MessagesToday: 3}, free)
	if d.Allowed {
		t.Fatal("4th free message must be denied")
	}
	for _, want := range []string{"3", "Basis", "4,99 €"} {
		if !strings.Contains(d.Reason, want) {
			t.Errorf("reason %q does not mention %q", d.Reason, want)
		}
	}
}

func TestBasisChatUpgradeNamesKaempfer(t *testing.T) {
	basis := catalog.Lookup(plan.Basis)
	d := entitlement.CanSendChatMessage(usage.Ledger{MessagesToday: 20}, basis)
	if d.Allowed {
		t.Fatal("21st basis message must be denied")
	}
	if !strings.Contains(d.Reason, "Kämpfer") || !strings.Contains(d.Reason, "unbegrenzt") {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestFreeLettersAlwaysCharged(t *testing.T) {
	free := catalog.Lookup(plan.Free)
	for _, n := range []int64{0, 1, 10, 500} {
		d := entitlement.CanGenerateLetter(usage.Ledger{LettersGenerated: n}, free)
		if !d.Allowed {
			t.Fatalf("free letter %d denied", n)
		}
		if !d.Cost.Equal(free.LetterPrice) {
			t.Errorf("free letter %d: cost %v, want %v", n, d.Cost, free.LetterPrice)
		}
	}
}

func TestPaidLettersChargedAfterQuota(t *testing.T) {
	for _, id := range []plan.ID{plan.Basis, plan.Kaempfer} {
		p := catalog.Lookup(id)
		quota := int64(p.MonthlyLetters)

		t.Run(string(id), func(t *testing.T) {
			// generation k sees k-1 prior letters
			for k := int64(1); k <= quota; k++ {
				d := entitlement.CanGenerateLetter(usage.Ledger{LettersGenerated: k - 1}, p)
				if !d.Allowed || !d.Cost.IsZero() {
					t.Errorf("letter %d: allowed=%v cost=%v, want free", k, d.Allowed, d.Cost)
				}
			}
			d := entitlement.CanGenerateLetter(usage.Ledger{LettersGenerated: quota}, p)
			if !d.Allowed {
				t.Fatalf("letter %d denied", quota+1)
			}
			if !d.Cost.Equal(p.LetterPrice) {
				t.Errorf("letter %d: cost %v, want %v", quota+1, d.Cost, p.LetterPrice)
			}
		})
	}
}

func TestUnlimitedLettersFree(t *testing.T) {
	profi := catalog.Lookup(plan.Profi)
	d := entitlement.CanGenerateLetter(usage.Ledger{LettersGenerated: 9999}, profi)
	if !d.Allowed || !d.Cost.IsZero() {
		t.Fatalf("profi letters must be free, got %+v", d)
	}
}

func TestScanDeniedOnExhaustion(t *testing.T) {
	free := catalog.Lookup(plan.Free)
	if d := entitlement.CanScanDocument(usage.Ledger{}, free); !d.Allowed {
		t.Fatal("first free scan must be allowed")
	}
	d := entitlement.CanScanDocument(usage.Ledger{ScansUsed: 1}, free)
	if d.Allowed {
		t.Fatal("second free scan must be denied")
	}
	if !strings.Contains(d.Reason, "Basis") {
		t.Errorf("reason %q lacks upgrade", d.Reason)
	}
}

func TestForumUnconditional(t *testing.T) {
	if !entitlement.CanPostInForum().Allowed {
		t.Fatal("forum posting must be allowed")
	}
}

func TestCheckerUsesOwnCatalog(t *testing.T) {
	free := plan.Plan{ID: plan.Free, Name: "Gratis", MonthlyPrice: types.EUR(0), DailyMessages: plan.Limit(1)}
	profi := plan.Plan{ID: plan.Profi, Name: "Voll", MonthlyPrice: types.EUR(5000), DailyMessages: plan.Unlimited}
	c := entitlement.NewChecker(plan.MustCatalog(free, profi))

	d := c.CanSendChatMessage(usage.Ledger{MessagesToday: 1}, free)
	if d.Allowed || !strings.Contains(d.Reason, "Voll") {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestCheck(t *testing.T) {
	basis := catalog.Lookup(plan.Basis)
	u := usage.Ledger{MessagesToday: 5, LettersGenerated: 2, ScansUsed: 5}

	tests := []struct {
		action    entitlement.Action
		allowed   bool
		remaining int64
		charged   bool
	}{
		{entitlement.ActionChat, true, 15, false},
		{entitlement.ActionLetter, true, 0, true},
		{entitlement.ActionScan, false, 0, false},
		{entitlement.ActionForum, true, -1, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			r, err := entitlement.Check(tt.action, u, basis)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if r.Allowed != tt.allowed {
				t.Errorf("Allowed: got %v, want %v", r.Allowed, tt.allowed)
			}
			if r.Remaining() != tt.remaining {
				t.Errorf("Remaining: got %d, want %d", r.Remaining(), tt.remaining)
			}
			if r.Cost.IsPositive() != tt.charged {
				t.Errorf("Cost: got %v", r.Cost)
			}
		})
	}

	if _, err := entitlement.Check("vote", u, basis); err == nil {
		t.Error("expected error for unknown action")
	}
}
