// Package usage models the per-account usage ledger: credit balance, the
// daily chat counter and the period counters for letters and scans.
//
// The methods on Ledger are the in-memory form of the transitions; stores
// apply the same transitions atomically at the persistence layer.
package usage

import (
	"fmt"
	"time"

	"github.com/rechtskompass/ledger/id"
)

// PeriodLength is the window between two credit grants.
const PeriodLength = 30 * 24 * time.Hour

// Kind names a consumable action.
type Kind string

const (
	KindChat   Kind = "chat"
	KindLetter Kind = "letter"
	KindScan   Kind = "scan"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindLetter, KindScan:
		return true
	}
	return false
}

// Ledger is the mutable usage record owned by exactly one account.
type Ledger struct {
	AccountID id.AccountID `json:"account_id"`
	Credits   int64        `json:"credits"`

	// MessagesToday counts chat messages on MessagesDay (UTC midnight).
	MessagesToday int64     `json:"messages_today"`
	MessagesDay   time.Time `json:"messages_day"`

	LettersGenerated int64     `json:"letters_generated"`
	ScansUsed        int64     `json:"scans_used"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// New returns an empty ledger whose first period starts at now.
func New(accountID id.AccountID, now time.Time) *Ledger {
	l := &Ledger{AccountID: accountID}
	l.ResetPeriod(now)
	return l
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Normalize zeroes the chat counter when it belongs to an earlier day.
// Period counters are untouched: they only reset on renewal.
func (l *Ledger) Normalize(now time.Time) {
	if !Day(now).Equal(Day(l.MessagesDay)) {
		l.MessagesToday = 0
		l.MessagesDay = Day(now)
	}
}

// Record adds one unit of kind.
func (l *Ledger) Record(kind Kind, now time.Time) error {
	switch kind {
	case KindChat:
		l.Normalize(now)
		l.MessagesToday++
	case KindLetter:
		l.LettersGenerated++
	case KindScan:
		l.ScansUsed++
	default:
		return fmt.Errorf("usage: unknown kind %q", kind)
	}
	l.UpdatedAt = now.UTC()
	return nil
}

// Grant replaces the credit balance. Monthly grants do not accumulate.
func (l *Ledger) Grant(amount int64) {
	if amount < 0 {
		amount = 0
	}
	l.Credits = amount
}

// ResetPeriod zeroes all counters and opens a new period at now.
func (l *Ledger) ResetPeriod(now time.Time) {
	now = now.UTC()
	l.MessagesToday = 0
	l.MessagesDay = Day(now)
	l.LettersGenerated = 0
	l.ScansUsed = 0
	l.PeriodStart = now
	l.PeriodEnd = now.Add(PeriodLength)
	l.UpdatedAt = now
}

// Clear zeroes credits and counters without opening a new period.
func (l *Ledger) Clear(now time.Time) {
	l.Credits = 0
	l.MessagesToday = 0
	l.LettersGenerated = 0
	l.ScansUsed = 0
	l.UpdatedAt = now.UTC()
}

// Expired reports whether the period window has passed. Expiry alone never
// resets anything; callers only use it for display.
func (l *Ledger) Expired(now time.Time) bool {
	return !l.PeriodEnd.IsZero() && !now.Before(l.PeriodEnd)
}
