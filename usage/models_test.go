package usage_test

import (
	"testing"
	"time"

	"github.com/rechtskompass/ledger/id"
	"github.com/rechtskompass/ledger/usage"
)

var t0 = time.Date(2026, time.March, 3, 9, 30, 0, 0, time.UTC)

func TestNewOpensPeriod(t *testing.T) {
	l := usage.New(id.NewAccountID(), t0)
	if got := l.PeriodEnd.Sub(l.PeriodStart); got != 30*24*time.Hour {
		t.Fatalf("period length: got %v, want 30 days", got)
	}
	if l.Credits != 0 || l.MessagesToday != 0 || l.LettersGenerated != 0 || l.ScansUsed != 0 {
		t.Fatalf("new ledger not empty: %+v", l)
	}
}

func TestRecord(t *testing.T) {
	l := usage.New(id.NewAccountID(), t0)

	for _, k := range []usage.Kind{usage.KindChat, usage.KindChat, usage.KindLetter, usage.KindScan} {
		if err := l.Record(k, t0); err != nil {
			t.Fatalf("Record(%s): %v", k, err)
		}
	}
	if l.MessagesToday != 2 || l.LettersGenerated != 1 || l.ScansUsed != 1 {
		t.Fatalf("unexpected counters: %+v", l)
	}
	if err := l.Record("forum", t0); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestChatCounterRollsOverDaily(t *testing.T) {
	l := usage.New(id.NewAccountID(), t0)
	_ = l.Record(usage.KindChat, t0)
	_ = l.Record(usage.KindLetter, t0)

	tomorrow := t0.Add(24 * time.Hour)
	_ = l.Record(usage.KindChat, tomorrow)

	if l.MessagesToday != 1 {
		t.Errorf("MessagesToday after rollover: got %d, want 1", l.MessagesToday)
	}
	if l.LettersGenerated != 1 {
		t.Errorf("period counters must not roll over daily, letters = %d", l.LettersGenerated)
	}
}

func TestGrantThenReset(t *testing.T) {
	l := usage.New(id.NewAccountID(), t0)
	l.Credits = 7
	_ = l.Record(usage.KindChat, t0)
	_ = l.Record(usage.KindScan, t0)

	later := t0.Add(31 * 24 * time.Hour)
	l.Grant(25)
	l.ResetPeriod(later)

	if l.Credits != 25 {
		t.Errorf("Credits: got %d, want 25 (grants replace, not add)", l.Credits)
	}
	if l.MessagesToday != 0 || l.LettersGenerated != 0 || l.ScansUsed != 0 {
		t.Errorf("counters not reset: %+v", l)
	}
	if !l.PeriodStart.Equal(later) || l.PeriodEnd.Sub(l.PeriodStart) != usage.PeriodLength {
		t.Errorf("period window wrong: %v .. %v", l.PeriodStart, l.PeriodEnd)
	}
}

func TestExpiryDoesNotReset(t *testing.T) {
	l := usage.New(id.NewAccountID(), t0)
	_ = l.Record(usage.KindLetter, t0)

	after := l.PeriodEnd.Add(time.Hour)
	if !l.Expired(after) {
		t.Fatal("expected period to be expired")
	}
	l.Normalize(after)
	if l.LettersGenerated != 1 {
		t.Fatalf("passive expiry must not reset counters, letters = %d", l.LettersGenerated)
	}
}

func TestClear(t *testing.T) {
	l := usage.New(id.NewAccountID(), t0)
	l.Grant(10)
	_ = l.Record(usage.KindScan, t0)
	l.Clear(t0)
	if l.Credits != 0 || l.ScansUsed != 0 {
		t.Fatalf("Clear left state: %+v", l)
	}
	l.Grant(-3)
	if l.Credits != 0 {
		t.Fatalf("Grant must clamp negatives, got %d", l.Credits)
	}
}
