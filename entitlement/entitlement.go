// Package entitlement decides whether an account may perform a guarded
// action. Every decision is a pure function of a usage snapshot and a plan,
// so it can run against a cached snapshot without touching storage.
//
// Chat and scan overflow is denied. Letter overflow is never denied; it is
// charged at the plan's per-letter price instead.
package entitlement

import (
	"fmt"

	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/types"
	"github.com/rechtskompass/ledger/usage"
)

// Decision is the answer for a deny-on-exhaustion action.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// LetterDecision is the answer for letter generation. Allowed is always
// true; Cost is zero while the letter is covered by the plan.
type LetterDecision struct {
	Allowed bool        `json:"allowed"`
	Cost    types.Money `json:"cost"`
}

// Checker evaluates decisions against a catalog, which is only consulted to
// name the cheapest upgrade in denial reasons.
type Checker struct {
	catalog *plan.Catalog
}

// NewChecker returns a checker bound to catalog. A nil catalog means
// plan.Default().
func NewChecker(catalog *plan.Catalog) *Checker {
	if catalog == nil {
		catalog = plan.Default()
	}
	return &Checker{catalog: catalog}
}

// CanSendChatMessage allows a message while MessagesToday is under the daily
// quota. Callers pass a snapshot normalized to the current day.
func (c *Checker) CanSendChatMessage(u usage.Ledger, p plan.Plan) Decision {
	if p.DailyMessages.Allows(u.MessagesToday) {
		return Decision{Allowed: true}
	}

	reason := fmt.Sprintf("Tageslimit erreicht: Im Tarif %s sind %s Chat-Nachrichten pro Tag enthalten.",
		p.Name, p.DailyMessages)
	up, ok := c.catalog.CheapestUpgrade(p, func(o plan.Plan) bool {
		return o.DailyMessages.Exceeds(p.DailyMessages)
	})
	if ok {
		reason += fmt.Sprintf(" Mit %s (%s/Monat) erhältst du %s Nachrichten pro Tag.",
			up.Name, up.MonthlyPrice, up.DailyMessages)
	} else {
		reason += " Morgen kannst du wieder schreiben."
	}
	return Decision{Reason: reason}
}

// CanGenerateLetter never denies. Unlimited plans pay nothing, the free tier
// always pays LetterPrice, and other plans pay once the monthly quota is
// used up.
func (c *Checker) CanGenerateLetter(u usage.Ledger, p plan.Plan) LetterDecision {
	switch {
	case p.MonthlyLetters.IsUnlimited():
		return LetterDecision{Allowed: true, Cost: types.Zero(p.LetterPrice.Currency)}
	case p.IsFree():
		return LetterDecision{Allowed: true, Cost: p.LetterPrice}
	case p.MonthlyLetters.Allows(u.LettersGenerated):
		return LetterDecision{Allowed: true, Cost: types.Zero(p.LetterPrice.Currency)}
	default:
		return LetterDecision{Allowed: true, Cost: p.LetterPrice}
	}
}

// CanScanDocument allows a scan while ScansUsed is under the monthly quota.
func (c *Checker) CanScanDocument(u usage.Ledger, p plan.Plan) Decision {
	if p.MonthlyScans.Allows(u.ScansUsed) {
		return Decision{Allowed: true}
	}

	reason := fmt.Sprintf("Scan-Kontingent erreicht: Im Tarif %s sind %s Dokument-Scans pro Monat enthalten.",
		p.Name, p.MonthlyScans)
	up, ok := c.catalog.CheapestUpgrade(p, func(o plan.Plan) bool {
		return o.MonthlyScans.Exceeds(p.MonthlyScans)
	})
	if ok {
		reason += fmt.Sprintf(" Mit %s (%s/Monat) erhältst du %s Scans pro Monat.",
			up.Name, up.MonthlyPrice, up.MonthlyScans)
	}
	return Decision{Reason: reason}
}

// CanPostInForum is unconditional for now.
func (c *Checker) CanPostInForum() Decision {
	return Decision{Allowed: true}
}

var std = NewChecker(nil)

// CanSendChatMessage is Checker.CanSendChatMessage on the default catalog.
func CanSendChatMessage(u usage.Ledger, p plan.Plan) Decision {
	return std.CanSendChatMessage(u, p)
}

// CanGenerateLetter is Checker.CanGenerateLetter on the default catalog.
func CanGenerateLetter(u usage.Ledger, p plan.Plan) LetterDecision {
	return std.CanGenerateLetter(u, p)
}

// CanScanDocument is Checker.CanScanDocument on the default catalog.
func CanScanDocument(u usage.Ledger, p plan.Plan) Decision {
	return std.CanScanDocument(u, p)
}

// CanPostInForum is Checker.CanPostInForum on the default catalog.
func CanPostInForum() Decision {
	return std.CanPostInForum()
}
