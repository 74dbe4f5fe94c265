package ledger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/rechtskompass/ledger"
	"github.com/rechtskompass/ledger/entitlement"
	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/store/memory"
	"github.com/rechtskompass/ledger/types"
	"github.com/rechtskompass/ledger/usage"
)

// TestDocumentationExamples verifies that the package documentation examples run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()

		l := ledger.New(memory.New(), ledger.WithLogger(slog.Default()))
		if err := l.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer l.Stop()

		acct, err := l.RegisterAccount(ctx, "erika@example.de", "Erika")
		if err != nil {
			t.Fatal(err)
		}

		res, err := l.Entitled(ctx, acct.ID, entitlement.ActionChat)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("first chat denied: %s", res.Reason)
		}
		if err := l.RecordConsumption(ctx, acct.ID, usage.KindChat); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("LetterPriceOnFreeTier", func(t *testing.T) {
		ctx := context.Background()
		l := ledger.New(memory.New())

		acct, err := l.RegisterAccount(ctx, "max@example.de", "")
		if err != nil {
			t.Fatal(err)
		}
		res, err := l.Entitled(ctx, acct.ID, entitlement.ActionLetter)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed || !res.Cost.IsPositive() {
			t.Errorf("free letters are allowed at a price, got %+v", res)
		}
	})

	t.Run("PlanTransitions", func(t *testing.T) {
		ctx := context.Background()
		l := ledger.New(memory.New())

		acct, err := l.RegisterAccount(ctx, "erika@example.de", "Erika")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := l.AssignPlan(ctx, acct.ID, plan.Basis, ledger.ProviderRefs{CustomerID: "cus_1", SubscriptionID: "sub_1"}); err != nil {
			t.Fatal(err)
		}
		if _, err := l.RenewPlan(ctx, acct.ID); err != nil {
			t.Fatal(err)
		}
		if err := l.Downgrade(ctx, acct.ID); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		basis := types.EUR(499)
		if got := basis.Multiply(2).String(); got != "9,98 €" {
			t.Errorf("got %q", got)
		}
	})
}
