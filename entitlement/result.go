package entitlement

import (
	"fmt"

	"github.com/rechtskompass/ledger/plan"
	"github.com/rechtskompass/ledger/types"
	"github.com/rechtskompass/ledger/usage"
)

// Action names a guarded action.
type Action string

const (
	ActionChat   Action = "chat"
	ActionLetter Action = "letter"
	ActionScan   Action = "scan"
	ActionForum  Action = "forum"
)

// ParseAction reports whether s names a known action.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionChat, ActionLetter, ActionScan, ActionForum:
		return a, true
	}
	return "", false
}

// UsageKind maps an action to the counter it consumes. Forum posts consume
// nothing.
func (a Action) UsageKind() (usage.Kind, bool) {
	switch a {
	case ActionChat:
		return usage.KindChat, true
	case ActionLetter:
		return usage.KindLetter, true
	case ActionScan:
		return usage.KindScan, true
	}
	return "", false
}

// Result is the uniform form of a decision.
type Result struct {
	Action  Action      `json:"action"`
	Allowed bool        `json:"allowed"`
	Used    int64       `json:"used"`
	Limit   plan.Quota  `json:"limit"`
	Cost    types.Money `json:"cost"`
	Reason  string      `json:"reason,omitempty"`
}

// Remaining is the number of units left, or -1 when unlimited.
func (r Result) Remaining() int64 {
	if r.Limit.IsUnlimited() {
		return -1
	}
	return max(int64(r.Limit)-r.Used, 0)
}

// Check dispatches to the decision for action.
func (c *Checker) Check(action Action, u usage.Ledger, p plan.Plan) (Result, error) {
	zero := types.Zero(p.LetterPrice.Currency)
	switch action {
	case ActionChat:
		d := c.CanSendChatMessage(u, p)
		return Result{Action: action, Allowed: d.Allowed, Used: u.MessagesToday, Limit: p.DailyMessages, Cost: zero, Reason: d.Reason}, nil
	case ActionLetter:
		d := c.CanGenerateLetter(u, p)
		return Result{Action: action, Allowed: d.Allowed, Used: u.LettersGenerated, Limit: p.MonthlyLetters, Cost: d.Cost}, nil
	case ActionScan:
		d := c.CanScanDocument(u, p)
		return Result{Action: action, Allowed: d.Allowed, Used: u.ScansUsed, Limit: p.MonthlyScans, Cost: zero, Reason: d.Reason}, nil
	case ActionForum:
		d := c.CanPostInForum()
		return Result{Action: action, Allowed: d.Allowed, Limit: plan.Unlimited, Cost: zero}, nil
	}
	return Result{}, fmt.Errorf("entitlement: unknown action %q", action)
}

// Check is Checker.Check on the default catalog.
func Check(action Action, u usage.Ledger, p plan.Plan) (Result, error) {
	return std.Check(action, u, p)
}
